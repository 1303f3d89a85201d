package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/checksum"
	"github.com/starford/cardsync/internal/models"
)

// Ledger defines the interface for recording and reading sync history.
type Ledger interface {
	RecordRun(run Run, cards []CardOutcome) (int64, error)
	Runs(deck string, limit int) ([]Run, error)
	LastOutcome(deck string, card models.Flashcard) (*CardOutcome, error)
	Close() error
}

// Verify *DB satisfies Ledger at compile time.
var _ Ledger = (*DB)(nil)

// Run is one sync invocation against a deck.
type Run struct {
	ID         int64     `json:"id"`
	Deck       string    `json:"deck"`
	Target     string    `json:"target"`
	DryRun     bool      `json:"dry_run"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// CardOutcome is what a run did with one card.
type CardOutcome struct {
	Card     models.Flashcard
	Action   models.Action
	RunID    int64
	SyncedAt time.Time
}

// RecordRun stores run and, unless it was a dry run, the outcome of each card,
// replacing earlier outcomes for the same card in the same deck.
func (db *DB) RecordRun(run Run, cards []CardOutcome) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`
		INSERT INTO runs (deck, target, dry_run, created, updated, unchanged, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Deck, run.Target, run.DryRun, run.Created, run.Updated, run.Unchanged,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("history: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: run id: %w", err)
	}

	if !run.DryRun && len(cards) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO cards (deck, checksum, question, answer, action, run_id, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(deck, checksum) DO UPDATE SET
				action    = excluded.action,
				run_id    = excluded.run_id,
				synced_at = excluded.synced_at
		`)
		if err != nil {
			return 0, fmt.Errorf("history: prepare card upsert: %w", err)
		}
		defer stmt.Close()
		for _, c := range cards {
			if _, err := stmt.Exec(run.Deck, checksum.Card(c.Card), c.Card.Question, c.Card.Answer,
				string(c.Action), id, run.FinishedAt.UTC()); err != nil {
				return 0, fmt.Errorf("history: upsert card: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit: %w", err)
	}
	return id, nil
}

// Runs returns the most recent runs, newest first. An empty deck lists all decks.
func (db *DB) Runs(deck string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, deck, target, dry_run, created, updated, unchanged, started_at, finished_at
		FROM runs
		WHERE ? = '' OR deck = ?
		ORDER BY id DESC
		LIMIT ?
	`, deck, deck, limit)
	if err != nil {
		return nil, fmt.Errorf("history: runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Deck, &r.Target, &r.DryRun, &r.Created, &r.Updated, &r.Unchanged,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastOutcome returns the most recent recorded outcome of card in deck,
// or apperr.ErrNotFound.
func (db *DB) LastOutcome(deck string, card models.Flashcard) (*CardOutcome, error) {
	out := CardOutcome{Card: card}
	var action string
	err := db.conn.QueryRow(`
		SELECT action, run_id, synced_at FROM cards WHERE deck = ? AND checksum = ?
	`, deck, checksum.Card(card)).Scan(&action, &out.RunID, &out.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: last outcome: %w", err)
	}
	out.Action = models.Action(action)
	return &out, nil
}
