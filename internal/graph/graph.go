// Package graph walks the wikilink graph of a vault breadth-first and
// collects the flashcards of every reachable note.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/parser"
	"github.com/starford/cardsync/internal/resolver"
	"github.com/starford/cardsync/internal/storage"
)

// Traverser discovers notes by following links. It holds no per-run state;
// every call to Traverse owns its own frontier and visited set.
type Traverser struct {
	store    storage.Provider
	resolver resolver.Resolver
	logger   *slog.Logger
	ext      string
	workers  int
}

// Option configures a Traverser.
type Option func(*Traverser)

// WithExtension sets the note extension used for link normalisation (default ".md").
func WithExtension(ext string) Option {
	return func(t *Traverser) { t.ext = ext }
}

// WithWorkers bounds how many seeds TraverseEach walks at once (default 1).
func WithWorkers(n int) Option {
	return func(t *Traverser) {
		if n > 0 {
			t.workers = n
		}
	}
}

// New creates a Traverser over store using res for link resolution.
func New(store storage.Provider, res resolver.Resolver, logger *slog.Logger, opts ...Option) *Traverser {
	t := &Traverser{
		store:    store,
		resolver: res,
		logger:   logger,
		ext:      parser.DefaultExtension,
		workers:  1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Seeds resolves seed note names to vault paths. An unknown name is fatal.
func (t *Traverser) Seeds(names ...string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		p, err := t.resolver.Resolve(name)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, fmt.Errorf("%w: %q not found in %s", apperr.ErrStartNodeNotFound, name, t.store.Root())
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SeedsInDir returns every note directly inside the vault directory dir.
func (t *Traverser) SeedsInDir(dir string) ([]string, error) {
	return t.store.ListNotes(dir, t.ext)
}

// Visit reads and parses one note. The returned links are vault paths;
// links that do not resolve are logged and left out.
func (t *Traverser) Visit(path string) ([]models.Flashcard, []string, error) {
	data, err := t.store.Read(path)
	if err != nil {
		return nil, nil, err
	}
	res := parser.ParseWithExtension(data, t.ext)

	links := make([]string, 0, len(res.Links))
	for _, name := range res.Links {
		p, err := t.resolver.Resolve(name)
		if err != nil {
			t.logger.Warn("graph: could not resolve link",
				slog.String("note", path),
				slog.String("link", name))
			continue
		}
		links = append(links, p)
	}
	return res.Cards, links, nil
}

// Traverse walks breadth-first from seeds and returns flashcards in discovery
// order, duplicates included. Each note is parsed at most once, so cycles and
// diamonds terminate.
func (t *Traverser) Traverse(ctx context.Context, seeds []string) ([]models.Flashcard, error) {
	queue := make([]string, 0, len(seeds))
	visited := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		if _, ok := visited[s]; ok {
			continue
		}
		visited[s] = struct{}{}
		queue = append(queue, s)
	}

	var cards []models.Flashcard
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := queue[0]
		queue = queue[1:]

		found, links, err := t.Visit(path)
		if err != nil {
			t.logger.Warn("graph: read failed", slog.String("note", path), slog.String("error", err.Error()))
			continue
		}
		t.logger.Debug("graph: visited",
			slog.String("note", path),
			slog.Int("cards", len(found)),
			slog.Int("links", len(links)))
		cards = append(cards, found...)

		for _, l := range links {
			if _, ok := visited[l]; ok {
				continue
			}
			visited[l] = struct{}{}
			queue = append(queue, l)
		}
	}

	t.logger.Debug("graph: traversal done",
		slog.Int("notes", len(visited)),
		slog.Int("cards", len(cards)))
	return cards, nil
}

// TraverseEach walks every seed independently and returns the deduplicated
// union. Seeds run concurrently up to the configured worker count; the
// result order follows seed order, not completion order.
func (t *Traverser) TraverseEach(ctx context.Context, seeds []string) ([]models.Flashcard, error) {
	results := make([][]models.Flashcard, len(seeds))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i, seed := range seeds {
		g.Go(func() error {
			cards, err := t.Traverse(gCtx, []string{seed})
			if err != nil {
				return fmt.Errorf("graph: traverse %s: %w", seed, err)
			}
			results[i] = cards
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.Flashcard
	for _, r := range results {
		all = append(all, r...)
	}
	return models.Dedup(all), nil
}
