package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/dms/internal"
	"github.com/starford/dms/internal/review"
	pkgconfig "github.com/starford/dms/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}
	if root := cmd.String("root"); root != "" {
		opts = append(opts, internal.WithRoot(root))
	}
	return opts, nil
}

func newApp(cmd *cli.Command) (*internal.App, error) {
	opts, err := options(cmd)
	if err != nil {
		return nil, err
	}
	return internal.New(opts...)
}

// stage adapts an App method to a cli action.
func stage(fn func(ctx context.Context, cmd *cli.Command, app *internal.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		return fn(ctx, cmd, app)
	}
}

func deleteEntryCommand() *cli.Command {
	flags := func() []cli.Flag {
		return []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Actually delete the matching entries"},
			&cli.BoolFlag{Name: "render", Usage: "Rebuild the document after deleting"},
		}
	}
	run := func(mode string) cli.ActionFunc {
		return stage(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			target := cmd.Args().First()
			if (mode == internal.DeletePath || mode == internal.DeletePattern) && target == "" {
				return fmt.Errorf("delete-entry %s: argument required", cmd.Name)
			}
			return app.DeleteEntry(ctx, internal.DeleteOptions{
				Mode:      mode,
				Target:    target,
				WordsOver: int(cmd.Int("words-over")),
				Yes:       cmd.Bool("yes"),
				Render:    cmd.Bool("render"),
			})
		})
	}
	return &cli.Command{
		Name:  "delete-entry",
		Usage: "List or remove ledger entries",
		Commands: []*cli.Command{
			{Name: "list", Usage: "List every tracked entry", Action: run(internal.DeleteList)},
			{Name: "delete", Usage: "Delete the entry at a path", ArgsUsage: "<path>", Flags: flags(), Action: run(internal.DeletePath)},
			{
				Name:      "by-pattern",
				Usage:     "Delete entries whose path contains a pattern",
				ArgsUsage: "<pattern>",
				Flags: append(flags(), &cli.IntFlag{
					Name:  "words-over",
					Usage: "Only match entries whose summary is longer than this many words",
				}),
				Action: run(internal.DeletePattern),
			},
			{Name: "missing", Usage: "Delete entries the last scan reported missing", Flags: flags(), Action: run(internal.DeleteMissing)},
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "dms",
		Usage:   "Keep a rendered document index in sync with a folder of files",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "dms.yaml",
				Value:       "dms.yaml",
				Sources:     cli.EnvVars("DMS_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Document root, overrides root.path",
				Sources: cli.EnvVars("DMS_ROOT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "Compare the root against the ledger and write the change report",
				Action: stage(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
					_, err := app.Scan(ctx)
					return err
				}),
			},
			{
				Name:  "ocr",
				Usage: "Write text sidecars for images with tesseract",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Redo images that already have a sidecar"},
				},
				Action: stage(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					return app.OCR(ctx, cmd.Bool("force"))
				}),
			},
			{
				Name:  "summarize",
				Usage: "Draft summaries for new and changed files",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Print summaries without saving them"},
					&cli.StringFlag{Name: "model", Usage: "Override the configured model"},
				},
				Action: stage(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					return app.Summarize(ctx, internal.SummarizeOptions{
						DryRun: cmd.Bool("dry-run"),
						Model:  cmd.String("model"),
					})
				}),
			},
			{
				Name:  "review",
				Usage: "Approve, edit or reject drafted summaries",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "approve-all", Usage: "Approve every draft without prompting"},
					&cli.StringSliceFlag{Name: "approve", Usage: "Approve the draft for a path"},
					&cli.StringSliceFlag{Name: "reject", Usage: "Reject the draft for a path"},
				},
				Action: stage(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					opts := review.Options{
						ApproveAll: cmd.Bool("approve-all"),
						Approve:    cmd.StringSlice("approve"),
						Reject:     cmd.StringSlice("reject"),
					}
					interactive := !opts.ApproveAll && len(opts.Approve) == 0 && len(opts.Reject) == 0
					return app.Review(ctx, internal.ReviewOptions{Interactive: interactive, Options: opts})
				}),
			},
			{
				Name:  "apply",
				Usage: "Merge approved summaries into the document",
				Action: stage(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
					_, err := app.Apply(ctx)
					return err
				}),
			},
			{
				Name:  "render",
				Usage: "Rebuild the document from the ledger",
				Action: stage(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
					_, err := app.Render(ctx)
					return err
				}),
			},
			{
				Name:  "cleanup",
				Usage: "Drop entries whose file no longer exists",
				Action: stage(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
					return app.Cleanup(ctx)
				}),
			},
			{
				Name:  "migrate",
				Usage: "Create the ledger from a document with an embedded snapshot",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing ledger"},
				},
				Action: stage(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					return app.Migrate(ctx, cmd.Bool("force"))
				}),
			},
			{
				Name:  "bootstrap",
				Usage: "Reconstruct the ledger from the document's entries",
				Action: stage(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
					return app.Bootstrap(ctx)
				}),
			},
			{
				Name:  "status",
				Usage: "Show coverage, checkpoints and the next step",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
				},
				Action: stage(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					return app.Status(ctx, cmd.Bool("json"))
				}),
			},
			deleteEntryCommand(),
			{
				Name:      "search",
				Usage:     "Search titles, summaries and paths",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum number of results"},
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
				},
				Action: stage(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					if cmd.Args().Len() == 0 {
						return fmt.Errorf("search: query required")
					}
					return app.Search(ctx, cmd.Args().First(), int(cmd.Int("limit")), cmd.Bool("json"))
				}),
			},
			{
				Name:  "serve",
				Usage: "Serve the document, the read-only API and metrics",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Rescan on file changes"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					opts = append(opts, internal.WithWatcher(cmd.Bool("watch")))
					if err := internal.Run(ctx, opts...); err != nil {
						return fmt.Errorf("app run error: %w", err)
					}
					return nil
				},
			},
			{
				Name:  "watch",
				Usage: "Rescan on file changes without serving",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.Watch(ctx, opts...)
				},
			},
			{
				Name:  "mcp",
				Usage: "Serve catalog tools over MCP stdio",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.ServeMCP(ctx, opts...)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
