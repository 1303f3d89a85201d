// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/cardsync/internal/anki"
	"github.com/starford/cardsync/internal/history"
	"github.com/starford/cardsync/internal/mcpserver"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/reconcile"
	"github.com/starford/cardsync/internal/staging"
	"github.com/starford/cardsync/internal/storage"
	"github.com/starford/cardsync/internal/syncservice"
	"github.com/starford/cardsync/internal/watch"
)

// Run syncs the target's flashcards into Anki. In watch mode it keeps
// re-syncing after vault changes until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg)

	logger.Info("Configuration loaded",
		slog.String("target", app.target),
		slog.String("vault_path", app.vault),
		slog.String("anki_url", cfg.Anki.URL),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("dry_run", app.dryRun),
		slog.Bool("watch", app.watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	client := anki.New(cfg.Anki.Options(), logger)
	svc, store, closeFn, err := app.service(logger, client)
	if err != nil {
		return err
	}
	defer closeFn()

	if !app.dryRun {
		if err := checkAnki(ctx, client, cfg.Anki.URL, logger); err != nil {
			return err
		}
	}

	rep, err := svc.Sync(ctx, app.target, app.deck, app.dryRun)
	if err != nil {
		return err
	}
	printReport(app.out, rep)

	if !app.watch {
		return nil
	}
	return app.watchAndSync(ctx, svc, store.Root(), logger)
}

// Extract prints the target's flashcards without contacting Anki.
func Extract(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config)

	svc, _, closeFn, err := app.service(logger, anki.New(app.config.Anki.Options(), logger))
	if err != nil {
		return err
	}
	defer closeFn()

	ex, err := svc.Extract(ctx, app.target)
	if err != nil {
		return err
	}
	printCards(app.out, ex.Cards)
	return nil
}

// History prints recent sync runs from the ledger.
func History(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	newLogger(cfg)

	if !cfg.SQLite.Enabled() {
		return errors.New("history is disabled: sqlite.path is empty")
	}
	db, err := history.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer db.Close()

	runs, err := db.Runs(app.deck, app.limit)
	if err != nil {
		return err
	}
	printRuns(app.out, runs)
	return nil
}

// Cleanup removes staged import files older than the configured max age.
func Cleanup(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg)

	stager := staging.New(cfg.Staging.Dir)
	removed, err := stager.Sweep(cfg.Staging.MaxAge, time.Now())
	if err != nil {
		return err
	}
	for _, p := range removed {
		logger.Info("cleanup: removed staged file", slog.String("path", p))
	}
	fmt.Fprintf(app.out, "Removed %d staged file(s) from %s\n", len(removed), stager.Dir())
	return nil
}

// ServeMCP runs the MCP server on stdin/stdout for the configured vault.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config)

	svc, store, closeFn, err := app.service(logger, anki.New(app.config.Anki.Options(), logger))
	if err != nil {
		return err
	}
	defer closeFn()

	logger.Info("MCP server starting", slog.String("vault_path", store.Root()))
	return mcpserver.New(svc, app.version).ServeStdio()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger installs the default logger. Logs go to stderr; stdout carries
// command output and the MCP transport.
func newLogger(cfg *Config) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.App.LogLevel}
	var h slog.Handler
	if cfg.App.LogFormat == LogFormatText {
		h = slog.NewTextHandler(os.Stderr, hopts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, hopts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// service wires storage, the gateway, staging, and the optional ledger.
// The vault is validated before anything else is touched.
func (a *application) service(logger *slog.Logger, gw reconcile.Gateway) (*syncservice.Service, *storage.FS, func(), error) {
	cfg := a.config

	store, err := storage.NewFS(a.vault, storage.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []syncservice.Option{
		syncservice.WithExtension(cfg.Vault.Extension),
		syncservice.WithWorkers(cfg.Vault.Workers),
		syncservice.WithSweepAge(cfg.Staging.MaxAge),
	}
	closeFn := func() {}
	if cfg.SQLite.Enabled() {
		db, err := history.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init history: %w", err)
		}
		opts = append(opts, syncservice.WithLedger(db))
		closeFn = func() { db.Close() }
	}

	svc := syncservice.New(store, gw, staging.New(cfg.Staging.Dir), logger, opts...)
	return svc, store, closeFn, nil
}

// checkAnki fails fast when AnkiConnect cannot be reached.
func checkAnki(ctx context.Context, client *anki.Client, url string, logger *slog.Logger) error {
	v, err := client.Version(ctx)
	if err != nil {
		return fmt.Errorf("anki: not reachable at %s: %w", url, err)
	}
	logger.Debug("anki: connected", slog.Int("version", v))
	return nil
}

func (a *application) watchAndSync(ctx context.Context, svc *syncservice.Service, root string, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return watch.Watch(gCtx, root, a.config.Vault.Extension, watch.DefaultDebounce, logger,
			func(ctx context.Context, paths []string) {
				logger.Info("watch: re-syncing", slog.Int("changed", len(paths)))
				rep, err := svc.Sync(ctx, a.target, a.deck, a.dryRun)
				if err != nil {
					logger.Error("watch: sync failed", slog.String("error", err.Error()))
					return
				}
				printReport(a.out, rep)
			})
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Watcher stopped successfully")
	return nil
}

func printCards(w io.Writer, cards []models.Flashcard) {
	if len(cards) == 0 {
		fmt.Fprintln(w, "No flashcards found.")
		return
	}
	fmt.Fprintln(w, "Found flashcards:")
	for _, c := range cards {
		fmt.Fprintf(w, "Q: %s\nA: %s\n\n", c.Question, c.Answer)
	}
}

func printReport(w io.Writer, rep *syncservice.Report) {
	printCards(w, rep.Cards)
	if rep.Result == nil {
		return
	}
	created, updated, unchanged := rep.Counts()
	suffix := ""
	if rep.Result.DryRun {
		suffix = " (dry run)"
	}
	fmt.Fprintf(w, "Deck %q: %d created, %d updated, %d unchanged%s\n", rep.Deck, created, updated, unchanged, suffix)
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDECK\tTARGET\tCREATED\tUPDATED\tUNCHANGED\tDRY RUN\tFINISHED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%t\t%s\n",
			r.ID, r.Deck, r.Target, r.Created, r.Updated, r.Unchanged, r.DryRun,
			r.FinishedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}
