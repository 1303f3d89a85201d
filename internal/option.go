package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	target  string
	vault   string
	deck    string
	dryRun  bool
	watch   bool
	limit   int
	version string
	out     io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithTarget sets the start note name or vault directory.
func WithTarget(target string) Option {
	return func(a *application) {
		a.target = target
	}
}

// WithVault sets the vault root directory.
func WithVault(path string) Option {
	return func(a *application) {
		a.vault = path
	}
}

// WithDeck overrides the deck name. Empty keeps the target-derived default.
// For history it filters runs by deck.
func WithDeck(deck string) Option {
	return func(a *application) {
		a.deck = deck
	}
}

// WithDryRun plans without modifying Anki.
func WithDryRun(dry bool) Option {
	return func(a *application) {
		a.dryRun = dry
	}
}

// WithWatch keeps running after the first sync and re-syncs on vault changes.
func WithWatch(watch bool) Option {
	return func(a *application) {
		a.watch = watch
	}
}

// WithLimit caps the number of history rows printed.
func WithLimit(n int) Option {
	return func(a *application) {
		a.limit = n
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithOutput sets where cards, summaries, and tables are printed.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}
