// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func instanceArguments() []cli.Argument {
	return []cli.Argument{
		&cli.StringArg{Name: "type", UsageText: "provider type, e.g. dropbox"},
		&cli.StringArg{Name: "index", UsageText: "0-based instance index"},
	}
}

func formatFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, csv, markdown or txt",
		Value:   value,
	}
}

// setupCommand handles setup operations for the config, database and credential file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create config.toml if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "env",
				Usage:  "Create the credential env file if missing",
				Action: r.SetupEnv,
			},
		},
	}
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the gallery API and OAuth callback over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (default: server.host from config)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (default: server.port from config)",
			},
			&cli.DurationFlag{
				Name:  "request-timeout",
				Usage: "Per-request timeout, 0 disables",
				Value: defaultRequestTimeout,
			},
		},
		Action: r.Serve,
	}
}

// providersCommand manages provider instances.
func providersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "providers",
		Aliases: []string{"p"},
		Usage:   "Manage connected provider accounts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List every instance with its state and image count",
				Flags: []cli.Flag{
					formatFlag("txt"),
					&cli.BoolFlag{
						Name:  "no-account",
						Usage: "Skip fetching account details",
					},
				},
				Action: r.ProvidersList,
			},
			{
				Name:  "add",
				Usage: "Store an app key and secret under the next free index, then authorize it",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "type", UsageText: "provider type, e.g. dropbox"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "app-key",
						Usage:    "OAuth app key",
						Sources:  cli.EnvVars("SKYROLL_APP_KEY"),
						Required: true,
					},
					&cli.StringFlag{
						Name:     "app-secret",
						Usage:    "OAuth app secret",
						Sources:  cli.EnvVars("SKYROLL_APP_SECRET"),
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "skip-login",
						Usage: "Only store the credentials",
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.ProvidersAdd,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove an instance and renumber the ones after it",
				Arguments: instanceArguments(),
				Action:    r.ProvidersRemove,
			},
			{
				Name:      "storage",
				Usage:     "Show an instance's storage quota",
				Arguments: instanceArguments(),
				Flags:     []cli.Flag{formatFlag("txt")},
				Action:    r.ProvidersStorage,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:      "login",
				Usage:     "Authorize an instance in the browser",
				Arguments: instanceArguments(),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:      "refresh",
				Usage:     "Exchange an instance's refresh token for a new access token",
				Arguments: instanceArguments(),
				Action:    r.AuthRefresh,
			},
		},
	}
}

// galleryCommand reads and rebuilds the merged gallery index.
func galleryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "gallery",
		Aliases: []string{"g"},
		Usage:   "Browse and refresh the merged gallery",
		Commands: []*cli.Command{
			{
				Name:  "page",
				Usage: "Print one page of the gallery, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "index",
						Aliases: []string{"i"},
						Usage:   "Offset of the first image from the newest",
					},
					&cli.IntFlag{
						Name:    "size",
						Aliases: []string{"n"},
						Usage:   "Page size (default: gallery.page_size from config)",
					},
					formatFlag("txt"),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the page to a file instead of stdout",
					},
				},
				Action: r.GalleryPage,
			},
			{
				Name:  "refresh",
				Usage: "Relist every instance concurrently",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Only refresh instances of this provider type",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent listings (max 10)",
						Value: 4,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Listings started per second",
						Value: 5,
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write a refresh report to this path",
					},
					formatFlag("json"),
				},
				Action: r.GalleryRefresh,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for browsing the gallery.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive gallery browser",
		Action:  r.TUI,
	}
}
