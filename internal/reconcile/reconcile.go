package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/cardsync/internal/anki"
	"github.com/starford/cardsync/internal/models"
)

// Gateway is the subset of AnkiConnect the reconciler needs.
type Gateway interface {
	DeckNames(ctx context.Context) ([]string, error)
	CreateDeck(ctx context.Context, deck string) (int64, error)
	NotesInfo(ctx context.Context, query string) ([]models.RemoteNote, error)
	UpdateNoteFields(ctx context.Context, id int64, front, back string) error
	GUIImportFile(ctx context.Context, path string) error
}

// Stager writes and removes bulk import files.
type Stager interface {
	Write(deck string, cards []models.Flashcard) (string, error)
	Remove(path string) error
}

// Result describes one reconciliation.
type Result struct {
	Deck   string
	Plan   Plan
	DryRun bool
}

// Reconciler syncs flashcards into a deck.
type Reconciler struct {
	gw     Gateway
	stager Stager
	logger *slog.Logger
	dryRun bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDryRun plans without issuing any mutating request.
func WithDryRun(dry bool) Option {
	return func(r *Reconciler) { r.dryRun = dry }
}

// New creates a Reconciler.
func New(gw Gateway, stager Stager, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{gw: gw, stager: stager, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sync brings deck in line with cards. Mutations are not transactional: if a
// request fails, those already sent stay applied and the error is returned.
func (r *Reconciler) Sync(ctx context.Context, deck string, cards []models.Flashcard) (*Result, error) {
	names, err := r.gw.DeckNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list decks: %w", err)
	}
	exists := slices.Contains(names, deck)

	var remote []models.RemoteNote
	if exists {
		remote, err = r.gw.NotesInfo(ctx, anki.DeckQuery(deck))
		if err != nil {
			return nil, fmt.Errorf("reconcile: fetch notes: %w", err)
		}
	}

	plan := NewPlan(cards, remote, exists)
	res := &Result{Deck: deck, Plan: plan, DryRun: r.dryRun}
	r.logger.Info("reconcile: planned",
		slog.String("deck", deck),
		slog.Bool("create_deck", plan.CreateDeck),
		slog.Int("remote", len(remote)),
		slog.Int("new", len(plan.New)),
		slog.Int("update", len(plan.Updates)),
		slog.Int("unchanged", len(plan.Unchanged)),
		slog.Bool("dry_run", r.dryRun))

	if r.dryRun {
		return res, nil
	}
	if err := r.apply(ctx, deck, plan); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, deck string, plan Plan) error {
	if plan.CreateDeck {
		if _, err := r.gw.CreateDeck(ctx, deck); err != nil {
			return fmt.Errorf("reconcile: create deck: %w", err)
		}
		r.logger.Info("reconcile: created deck", slog.String("deck", deck))
	}

	for _, u := range plan.Updates {
		if err := r.gw.UpdateNoteFields(ctx, u.NoteID, u.Front, u.Back); err != nil {
			return fmt.Errorf("reconcile: update note %d: %w", u.NoteID, err)
		}
		r.logger.Info("reconcile: updated note",
			slog.Int64("note_id", u.NoteID),
			slog.String("front", u.Front),
			slog.String("back", u.Back))
	}

	if len(plan.New) == 0 {
		r.logger.Debug("reconcile: nothing to import", slog.String("deck", deck))
		return nil
	}
	path, err := r.stager.Write(deck, plan.New)
	if err != nil {
		return fmt.Errorf("reconcile: stage import: %w", err)
	}
	defer func() {
		if err := r.stager.Remove(path); err != nil {
			r.logger.Warn("reconcile: remove staged file", slog.String("path", path), slog.String("error", err.Error()))
		}
	}()
	if err := r.gw.GUIImportFile(ctx, path); err != nil {
		return fmt.Errorf("reconcile: import: %w", err)
	}
	r.logger.Info("reconcile: imported", slog.String("deck", deck), slog.Int("cards", len(plan.New)))
	return nil
}
