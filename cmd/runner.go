package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/skyroll/internal/envstore"
	"github.com/desertthunder/skyroll/internal/gallery"
	"github.com/desertthunder/skyroll/internal/manager"
	"github.com/desertthunder/skyroll/internal/providers"
	"github.com/desertthunder/skyroll/internal/repositories"
	"github.com/desertthunder/skyroll/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	registry   *providers.Registry
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	manager *manager.Manager
	db      *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Registry   *providers.Registry // Overrides the built-in providers
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		registry:   opts.Registry,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, providersCommand, authCommand, galleryCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger. Used by the TUI to move logs off the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig reads path when it exists and keeps the defaults otherwise.
func (r *Runner) loadConfig(path string) error {
	r.configPath = path
	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return err
	}
	r.config = config
	return nil
}

// openDatabase opens the cache database and applies migrations.
func (r *Runner) openDatabase() (*sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	if r.config.Database.Path != ":memory:" {
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func (r *Runner) providerRegistry() *providers.Registry {
	if r.registry != nil {
		return r.registry
	}

	limits := r.config.Limits
	var limiter *rate.Limiter
	if limits.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), max(limits.Burst, 1))
	}

	return providers.DefaultRegistry(providers.Options{
		HTTPClient:    r.httpClient,
		Limiter:       limiter,
		Logger:        r.logger,
		ThumbnailSize: r.config.Gallery.ThumbnailSize,
	})
}

// Manager builds the provider manager on first use and restores every instance from the credential store.
//
// The thumbnail cache and listing snapshots are optional; when the database cannot be opened the
// manager runs without them.
func (r *Runner) Manager(ctx context.Context) (*manager.Manager, error) {
	if r.manager != nil {
		return r.manager, nil
	}

	gc := r.config.Gallery
	opts := manager.Options{
		Store:         envstore.New(r.config.Credentials.EnvFile),
		Registry:      r.providerRegistry(),
		Merger:        gallery.NewMerger(),
		Logger:        r.logger,
		RedirectURI:   r.config.Credentials.RedirectURI,
		RootPath:      gc.RootPath,
		Recursive:     gc.Recursive,
		ListLimit:     gc.ListLimit,
		ThumbnailSize: gc.ThumbnailSize,
	}

	if db, err := r.openDatabase(); err != nil {
		r.logger.Warn("thumbnail cache disabled", "path", r.config.Database.Path, "error", err)
	} else {
		r.db = db
		opts.Cache = repositories.NewThumbnailRepository(db)
		opts.Snapshots = repositories.NewSnapshotRepository(db)
	}

	m, err := manager.New(opts)
	if err != nil {
		return nil, err
	}
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}

	r.manager = m
	return m, nil
}

// Close releases the database opened by [Runner.Manager].
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// instanceArgs reads the "type" and "index" positional arguments.
func instanceArgs(cmd *cli.Command) (string, int, error) {
	providerType := cmd.StringArg("type")
	raw := cmd.StringArg("index")
	if providerType == "" || raw == "" {
		return "", 0, fmt.Errorf("%w: provider type and instance index", shared.ErrMissingArgument)
	}

	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("%w: instance index must be a non-negative integer, got %q", shared.ErrInvalidArgument, raw)
	}
	return providerType, idx, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
