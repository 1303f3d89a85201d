// Package syncservice ties vault traversal, reconciliation, and the history
// ledger together. It is shared by the CLI, watch mode, and the MCP server.
package syncservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/graph"
	"github.com/starford/cardsync/internal/history"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/parser"
	"github.com/starford/cardsync/internal/reconcile"
	"github.com/starford/cardsync/internal/resolver"
	"github.com/starford/cardsync/internal/staging"
	"github.com/starford/cardsync/internal/storage"
)

// Target is a note name or vault directory resolved to traversal seeds.
type Target struct {
	Input string
	Seeds []string
	Dir   bool
	Deck  string // default deck name
}

// Extraction is the outcome of walking a target.
type Extraction struct {
	Target Target
	Cards  []models.Flashcard
}

// Report is the outcome of one sync. Result is nil when no cards were found.
type Report struct {
	Target Target
	Deck   string
	Cards  []models.Flashcard
	Result *reconcile.Result
	RunID  int64
}

// Counts returns created, updated, and unchanged card counts.
func (r *Report) Counts() (created, updated, unchanged int) {
	if r.Result == nil {
		return 0, 0, 0
	}
	p := r.Result.Plan
	return len(p.New), len(p.Updates), len(p.Unchanged)
}

// Service runs extractions and syncs against one vault.
type Service struct {
	store    storage.Provider
	gw       reconcile.Gateway
	stager   *staging.Stager
	ledger   history.Ledger
	logger   *slog.Logger
	ext      string
	workers  int
	sweepAge time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithExtension sets the note file extension.
func WithExtension(ext string) Option {
	return func(s *Service) { s.ext = ext }
}

// WithWorkers bounds concurrent seed traversals in directory mode.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

// WithLedger records every sync in l.
func WithLedger(l history.Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithSweepAge removes staged files older than d before each sync. Zero disables the sweep.
func WithSweepAge(d time.Duration) Option {
	return func(s *Service) { s.sweepAge = d }
}

// New creates a Service.
func New(store storage.Provider, gw reconcile.Gateway, stager *staging.Stager, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		gw:      gw,
		stager:  stager,
		logger:  logger,
		ext:     parser.DefaultExtension,
		workers: 4,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract walks target without contacting the store.
func (s *Service) Extract(ctx context.Context, target string) (*Extraction, error) {
	idx, err := resolver.Build(s.store)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("syncservice: index built", slog.Int("files", idx.Len()))

	tr := graph.New(s.store, idx, s.logger, graph.WithExtension(s.ext), graph.WithWorkers(s.workers))
	t, err := s.resolveTarget(tr, target)
	if err != nil {
		return nil, err
	}

	var cards []models.Flashcard
	if t.Dir {
		cards, err = tr.TraverseEach(ctx, t.Seeds)
	} else {
		cards, err = tr.Traverse(ctx, t.Seeds)
	}
	if err != nil {
		return nil, err
	}
	cards = models.Dedup(cards)
	s.logger.Info("syncservice: extracted",
		slog.String("target", target),
		slog.Int("seeds", len(t.Seeds)),
		slog.Int("cards", len(cards)))
	return &Extraction{Target: *t, Cards: cards}, nil
}

// Sync extracts target and reconciles its cards into deck. An empty deck uses
// the target's default deck name. No store call is made when no cards are found.
func (s *Service) Sync(ctx context.Context, target, deck string, dryRun bool) (*Report, error) {
	started := s.now()
	s.sweep(started)

	ex, err := s.Extract(ctx, target)
	if err != nil {
		return nil, err
	}
	if deck == "" {
		deck = ex.Target.Deck
	}
	rep := &Report{Target: ex.Target, Deck: deck, Cards: ex.Cards}
	if len(ex.Cards) == 0 {
		s.logger.Warn("syncservice: no flashcards found", slog.String("target", target))
		return rep, nil
	}

	rec := reconcile.New(s.gw, s.stager, s.logger, reconcile.WithDryRun(dryRun))
	res, err := rec.Sync(ctx, deck, ex.Cards)
	if err != nil {
		return nil, err
	}
	rep.Result = res

	if s.ledger != nil {
		id, err := s.record(rep, started)
		if err != nil {
			s.logger.Warn("syncservice: record history", slog.String("error", err.Error()))
		} else {
			rep.RunID = id
		}
	}
	return rep, nil
}

// Runs lists recent runs, newest first. It fails when history is disabled.
func (s *Service) Runs(deck string, limit int) ([]history.Run, error) {
	if s.ledger == nil {
		return nil, errors.New("syncservice: history is disabled")
	}
	return s.ledger.Runs(deck, limit)
}

// LastActions returns, for each card, the most recent action recorded for it
// in deck. Cards without history, or all cards when history is disabled, get "".
func (s *Service) LastActions(deck string, cards []models.Flashcard) ([]models.Action, error) {
	out := make([]models.Action, len(cards))
	if s.ledger == nil {
		return out, nil
	}
	for i, c := range cards {
		o, err := s.ledger.LastOutcome(deck, c)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = o.Action
	}
	return out, nil
}

func (s *Service) sweep(now time.Time) {
	if s.sweepAge <= 0 {
		return
	}
	removed, err := s.stager.Sweep(s.sweepAge, now)
	if err != nil {
		s.logger.Warn("syncservice: sweep staging dir", slog.String("error", err.Error()))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("syncservice: removed stale staged files", slog.Int("count", len(removed)))
	}
}

func (s *Service) record(rep *Report, started time.Time) (int64, error) {
	created, updated, unchanged := rep.Counts()
	run := history.Run{
		Deck:       rep.Deck,
		Target:     rep.Target.Input,
		DryRun:     rep.Result.DryRun,
		Created:    created,
		Updated:    updated,
		Unchanged:  unchanged,
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	return s.ledger.RecordRun(run, Outcomes(rep.Result.Plan))
}

// Outcomes lists the action taken for every card in plan.
func Outcomes(plan reconcile.Plan) []history.CardOutcome {
	out := make([]history.CardOutcome, 0, len(plan.New)+len(plan.Updates)+len(plan.Unchanged))
	for _, c := range plan.New {
		out = append(out, history.CardOutcome{Card: c, Action: models.ActionCreated})
	}
	for _, u := range plan.Updates {
		out = append(out, history.CardOutcome{Card: u.Card, Action: models.ActionUpdated})
	}
	for _, c := range plan.Unchanged {
		out = append(out, history.CardOutcome{Card: c, Action: models.ActionUnchanged})
	}
	return out
}

// resolveTarget treats target as a vault directory when one exists at that
// path (absolute, relative to the working directory, or relative to the
// vault root) and as a note name otherwise.
func (s *Service) resolveTarget(tr *graph.Traverser, target string) (*Target, error) {
	if dir, ok, err := s.findDir(target); err != nil {
		return nil, err
	} else if ok {
		seeds, err := tr.SeedsInDir(dir)
		if err != nil {
			return nil, err
		}
		deck := filepath.Base(filepath.Join(s.store.Root(), dir))
		return &Target{Input: target, Seeds: seeds, Dir: true, Deck: deck}, nil
	}

	name := parser.NormalizeLink(filepath.Base(target), s.ext)
	if name == "" {
		return nil, fmt.Errorf("syncservice: empty note name %q", target)
	}
	seeds, err := tr.Seeds(name)
	if err != nil {
		return nil, err
	}
	return &Target{Input: target, Seeds: seeds, Deck: strings.TrimSuffix(name, s.ext)}, nil
}

func (s *Service) findDir(target string) (string, bool, error) {
	candidates := []string{target}
	if !filepath.IsAbs(target) {
		candidates = append(candidates, filepath.Join(s.store.Root(), target))
	}
	var outside error
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil || !info.IsDir() {
			continue
		}
		rel, err := s.store.Rel(c)
		if err != nil {
			if outside == nil {
				outside = err
			}
			continue
		}
		return rel, true, nil
	}
	return "", false, outside
}
