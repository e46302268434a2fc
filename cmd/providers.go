package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/skyroll/internal/formatter"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
	"github.com/urfave/cli/v3"
)

// render writes data produced by a formatter, terminating JSON with a newline.
func (r *Runner) render(data []byte, format formatter.Format) error {
	if err := r.writeBytes(data); err != nil {
		return err
	}
	if format == formatter.JSON {
		return r.writePlain("\n")
	}
	return nil
}

// ProvidersList prints every instance with its state, image count and account.
func (r *Runner) ProvidersList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	m, err := r.Manager(ctx)
	if err != nil {
		return err
	}

	statuses := m.Providers(ctx, !cmd.Bool("no-account"))
	if len(statuses) == 0 && format == formatter.Text {
		return r.writePlain("No providers connected. Run: skyroll providers add dropbox --app-key KEY --app-secret SECRET\n")
	}

	data, err := formatter.RenderProviders(statuses, format)
	if err != nil {
		return err
	}
	return r.render(data, format)
}

// ProvidersAdd stores app credentials under the next free index and, unless skipped, authorizes the
// new instance in the browser.
func (r *Runner) ProvidersAdd(ctx context.Context, cmd *cli.Command) error {
	providerType := cmd.StringArg("type")
	if providerType == "" {
		return fmt.Errorf("%w: provider type", shared.ErrMissingArgument)
	}

	m, err := r.Manager(ctx)
	if err != nil {
		return err
	}

	inst, idx, err := m.Connect(ctx, providerType, cmd.String("app-key"), cmd.String("app-secret"))
	if err != nil {
		return err
	}

	ref := models.InstanceRef{ProviderType: providerType, InstanceIndex: idx}
	r.writePlain("✓ Stored credentials for %s (%s)\n", ref, inst.Auth.State())

	if cmd.Bool("skip-login") {
		r.writePlain("Authorize later with: skyroll auth login %s %d\n", providerType, idx)
		return nil
	}

	if err := r.doOAuth(ctx, m, ref, cmd.Bool("no-browser")); err != nil {
		r.writePlain("⚠ Authorization did not complete. Retry with: skyroll auth login %s %d\n", providerType, idx)
		return err
	}

	r.writePlainln("✓ Connected %s", ref)
	r.writePlain("%d image(s) indexed\n", m.Merger().Count(providerType, idx))
	return nil
}

// ProvidersRemove deletes an instance's credentials and shifts later instances down by one.
func (r *Runner) ProvidersRemove(ctx context.Context, cmd *cli.Command) error {
	providerType, idx, err := instanceArgs(cmd)
	if err != nil {
		return err
	}

	m, err := r.Manager(ctx)
	if err != nil {
		return err
	}

	if err := m.RemoveProvider(ctx, providerType, idx); err != nil {
		return err
	}

	r.writePlain("✓ Removed %s:%d\n", providerType, idx)
	if remaining := m.Count(providerType); remaining > idx {
		r.writePlain("Instances %d..%d of %s were renumbered\n", idx, remaining-1, providerType)
	}
	return nil
}

// ProvidersStorage prints the quota of one instance.
func (r *Runner) ProvidersStorage(ctx context.Context, cmd *cli.Command) error {
	providerType, idx, err := instanceArgs(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	m, err := r.Manager(ctx)
	if err != nil {
		return err
	}

	usage, err := m.Storage(ctx, providerType, idx)
	if err != nil {
		return err
	}

	data, err := formatter.RenderStorage(models.InstanceRef{ProviderType: providerType, InstanceIndex: idx}, usage, format)
	if err != nil {
		return err
	}
	return r.render(data, format)
}
