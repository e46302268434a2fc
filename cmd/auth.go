package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/skyroll/internal/lifecycle"
	"github.com/desertthunder/skyroll/internal/manager"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/server"
	"github.com/desertthunder/skyroll/internal/shared"
	"github.com/urfave/cli/v3"
)

const authTimeout = 2 * time.Minute

// AuthLogin runs the browser authorization flow for an existing instance.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	providerType, idx, err := instanceArgs(cmd)
	if err != nil {
		return err
	}

	m, err := r.Manager(ctx)
	if err != nil {
		return err
	}

	ref := models.InstanceRef{ProviderType: providerType, InstanceIndex: idx}
	if err := r.doOAuth(ctx, m, ref, cmd.Bool("no-browser")); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n", r.config.Credentials.EnvFile)
	r.writePlain("%d image(s) indexed for %s\n", m.Merger().Count(providerType, idx), ref)
	return nil
}

// AuthRefresh forces a token refresh for one instance.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	providerType, idx, err := instanceArgs(cmd)
	if err != nil {
		return err
	}

	m, err := r.Manager(ctx)
	if err != nil {
		return err
	}

	if err := m.RefreshToken(ctx, providerType, idx); err != nil {
		if errors.Is(err, shared.ErrReauthRequired) {
			r.writePlain("⚠ The refresh token was rejected. Run: skyroll auth login %s %d\n", providerType, idx)
		}
		return err
	}

	r.writePlain("✓ Access token refreshed for %s:%d\n", providerType, idx)
	return nil
}

// callbackAddr returns the local address the redirect URI points at.
func callbackAddr(redirectURI, fallback string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return fallback
	}
	return u.Host
}

// doOAuth starts an authorization for ref and serves the OAuth callback on a temporary local server
// until the callback completes, the context ends or the flow times out.
func (r *Runner) doOAuth(ctx context.Context, m *manager.Manager, ref models.InstanceRef, noBrowser bool) error {
	authURL, err := m.AuthorizationURL(ref.ProviderType, ref.InstanceIndex)
	if err != nil {
		return err
	}

	oauthHandler := server.NewOAuthHandler(m, lifecycle.EncodeState(ref))
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	serverAddr := callbackAddr(r.config.Credentials.RedirectURI, r.config.Server.Addr())
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for %s at %v", ref, serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	if noBrowser {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser to authorize %s...\n", ref)
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	var waitErr error

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		waitErr = fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		waitErr = fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if waitErr != nil {
		return waitErr
	}
	if err := result.Error(); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}
	return nil
}
