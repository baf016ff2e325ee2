// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand creates the config file and the local cache.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml and initialize the local cache",
		Action: r.Setup,
	}
}

// loginCommand runs the QR handshake in the terminal.
func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in by scanning a QR code with the Bilibili app",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the QR code image in the browser",
			},
			&cli.BoolFlag{
				Name:  "no-qr",
				Usage: "Do not draw the QR code in the terminal",
			},
		},
		Action: r.Login,
	}
}

// logoutCommand ends the server session and clears the local cache.
func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Sign out and clear cached identity and tasks",
		Action: r.Logout,
	}
}

// statusCommand reports the signed-in identity.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the signed-in account (falls back to the cache when offline)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// tasksCommand handles task list and task operations.
func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tasks",
		Aliases: []string{"task", "t"},
		Usage:   "Pipeline task operations",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List tasks by status category",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "category",
						Usage: "Category filter (all, pending, preparing, ready, uploading, completed, failed, unknown)",
						Value: "all",
					},
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page number",
						Value: 1,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (table, json, csv, markdown)",
						Value:   "table",
					},
					&cli.BoolFlag{
						Name:  "cached",
						Usage: "Read the last cached snapshot instead of the server",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: stdout)",
					},
				},
				Action: r.TasksList,
			},
			{
				Name:  "show",
				Usage: "Show a task with its steps and progress",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TasksShow,
			},
			{
				Name:  "retry",
				Usage: "Retry a failed step of a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "step"},
				},
				Action: r.TasksRetry,
			},
			{
				Name:  "trigger",
				Usage: "Start the video or subtitle upload of a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "stage"},
				},
				Action: r.TasksTrigger,
			},
			{
				Name:  "files",
				Usage: "List the artifacts produced for a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TasksFiles,
			},
		},
	}
}

// cacheCommand inspects and clears the local cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the local cache",
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the cached identity and snapshots",
				Action: r.CacheInfo,
			},
			{
				Name:   "clear",
				Usage:  "Delete the cached identity and snapshots",
				Action: r.CacheClear,
			},
		},
	}
}

// watchCommand returns the top-level TUI command.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch the interactive task dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the dashboard owns the terminal",
				Value: "./tmp/upsync-tui.log",
			},
		},
		Action: r.Watch,
	}
}

// serveCommand runs the local read API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the synced task state over a local HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (default: api.port from the config)",
			},
			&cli.StringFlag{
				Name:  "cors-origin",
				Usage: "Allowed CORS origin",
				Value: "*",
			},
		},
		Action: r.Serve,
	}
}
