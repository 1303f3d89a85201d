package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/cardsync/internal"
	pkgconfig "github.com/starford/cardsync/pkg/config"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadIfExists(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if cmd.IsSet("anki-url") {
		cfg.Anki.URL = cmd.String("anki-url")
	}
	if cmd.IsSet("log-level") {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// positional returns the n required arguments or a usage error.
func positional(cmd *cli.Command, n int) ([]string, error) {
	if cmd.Args().Len() != n {
		return nil, fmt.Errorf("expected %d argument(s): %s", n, cmd.ArgsUsage)
	}
	return cmd.Args().Slice(), nil
}

func commonOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithOutput(cmd.Root().Writer),
	}, nil
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	args, err := positional(cmd, 2)
	if err != nil {
		return err
	}
	opts, err := commonOptions(cmd)
	if err != nil {
		return err
	}
	opts = append(opts,
		internal.WithTarget(args[0]),
		internal.WithVault(args[1]),
		internal.WithDeck(cmd.String("deck")),
		internal.WithDryRun(cmd.Bool("dry-run")),
		internal.WithWatch(cmd.Bool("watch")),
	)

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runExtract(ctx context.Context, cmd *cli.Command) error {
	args, err := positional(cmd, 2)
	if err != nil {
		return err
	}
	opts, err := commonOptions(cmd)
	if err != nil {
		return err
	}
	opts = append(opts, internal.WithTarget(args[0]), internal.WithVault(args[1]))
	return internal.Extract(ctx, opts...)
}

func runHistory(ctx context.Context, cmd *cli.Command) error {
	opts, err := commonOptions(cmd)
	if err != nil {
		return err
	}
	opts = append(opts,
		internal.WithDeck(cmd.String("deck")),
		internal.WithLimit(int(cmd.Int("limit"))),
	)
	return internal.History(ctx, opts...)
}

func runCleanup(ctx context.Context, cmd *cli.Command) error {
	opts, err := commonOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Cleanup(ctx, opts...)
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	args, err := positional(cmd, 1)
	if err != nil {
		return err
	}
	opts, err := commonOptions(cmd)
	if err != nil {
		return err
	}
	opts = append(opts, internal.WithVault(args[0]))
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:      "cardsync",
		Usage:     "Sync flashcards from a graph of linked Obsidian notes into Anki",
		ArgsUsage: "<note_or_directory> <vault_root>",
		Version:   version,
		Action:    runSync,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "anki-url",
				Usage:   "AnkiConnect endpoint",
				Sources: cli.EnvVars("ANKI_CONNECT_URL"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "deck",
				Usage: "Deck name (defaults to the note or directory name)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the planned changes without modifying Anki",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Keep running and re-sync when notes change",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "Print the flashcards reachable from a note or directory without contacting Anki",
				ArgsUsage: "<note_or_directory> <vault_root>",
				Action:    runExtract,
			},
			{
				Name:   "history",
				Usage:  "List recent sync runs (filter with --deck)",
				Action: runHistory,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs",
						Value: 20,
					},
				},
			},
			{
				Name:   "cleanup",
				Usage:  "Remove stale staged import files",
				Action: runCleanup,
			},
			{
				Name:      "mcp",
				Usage:     "Serve cardsync tools over MCP on stdin/stdout",
				ArgsUsage: "<vault_root>",
				Action:    runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
