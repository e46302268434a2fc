package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/skyroll/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase creates the config file when missing, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if config, err := shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load created config, using defaults", "error", err)
		} else {
			r.config = config
			r.logger.Info("config file created", "path", configPath)
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := r.openDatabase()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	version, err := shared.MigrationVersion(db)
	if err != nil {
		return err
	}
	r.logger.Infof("setup complete for database: %v (schema version %d)", r.config.Database.Path, version)
	return nil
}

// SetupEnv creates an empty credential file readable only by the current user.
func (r *Runner) SetupEnv(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Credentials.EnvFile
	if _, err := os.Stat(path); err == nil {
		r.writePlain("✓ Credential file already exists: %s\n", path)
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create credential directory: %w", err)
		}
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		return fmt.Errorf("failed to create credential file: %w", err)
	}

	r.logger.Info("credential file created", "path", path)
	r.writePlain("✓ Created %s\n", path)
	r.writePlain("Next: skyroll providers add dropbox --app-key KEY --app-secret SECRET\n")
	return nil
}
