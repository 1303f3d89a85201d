// Package reconcile decides which local flashcards must be created or updated
// in an Anki deck and applies those mutations.
package reconcile

import "github.com/starford/cardsync/internal/models"

// Update rewrites an existing remote note so it matches a local card.
type Update struct {
	NoteID   int64
	Front    string
	Back     string
	Card     models.Flashcard
	Previous models.RemoteNote
}

// Plan is the minimal set of mutations for one deck.
type Plan struct {
	CreateDeck bool
	Updates    []Update
	New        []models.Flashcard
	Unchanged  []models.Flashcard
}

// Empty reports whether applying the plan would change nothing.
func (p Plan) Empty() bool {
	return !p.CreateDeck && len(p.Updates) == 0 && len(p.New) == 0
}

// NewPlan classifies local cards against the notes already in the deck.
//
// Every remote note is consumed by at most one local card:
//  1. a card whose question and answer both equal an unconsumed note is unchanged;
//  2. a remaining card sharing exactly one side with an unconsumed note updates
//     that note to the card's values;
//  3. everything else is new.
//
// Within each pass, cards and notes are taken in the order given, so the first
// match wins.
func NewPlan(local []models.Flashcard, remote []models.RemoteNote, deckExists bool) Plan {
	local = models.Dedup(local)

	var plan Plan
	if !deckExists {
		plan.CreateDeck = true
		remote = nil
	}

	consumed := make([]bool, len(remote))
	matched := make([]bool, len(local))

	for i, c := range local {
		for j, n := range remote {
			if consumed[j] || n.Front != c.Question || n.Back != c.Answer {
				continue
			}
			consumed[j] = true
			matched[i] = true
			plan.Unchanged = append(plan.Unchanged, c)
			break
		}
	}

	for i, c := range local {
		if matched[i] {
			continue
		}
		for j, n := range remote {
			if consumed[j] || (n.Front == c.Question) == (n.Back == c.Answer) {
				continue
			}
			consumed[j] = true
			matched[i] = true
			plan.Updates = append(plan.Updates, Update{
				NoteID:   n.ID,
				Front:    c.Question,
				Back:     c.Answer,
				Card:     c,
				Previous: n,
			})
			break
		}
	}

	for i, c := range local {
		if !matched[i] {
			plan.New = append(plan.New, c)
		}
	}
	return plan
}
