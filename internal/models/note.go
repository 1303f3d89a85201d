// Package models defines the domain types for cardsync.
package models

// Note is a Markdown file read from the vault. It is never written back.
type Note struct {
	Path    string `json:"path"` // relative to vault root
	Content []byte `json:"-"`
}

// Flashcard is a question/answer pair extracted from a note.
// Two flashcards are equal when both fields are equal.
type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Key returns a string suitable for set membership of structurally equal cards.
func (f Flashcard) Key() string {
	return f.Question + "\x00" + f.Answer
}

// RemoteNote is an existing note in an Anki deck.
type RemoteNote struct {
	ID    int64  `json:"id"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Action records what a sync did with a local card.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Dedup drops structurally equal flashcards, keeping the first occurrence.
func Dedup(cards []Flashcard) []Flashcard {
	seen := make(map[Flashcard]struct{}, len(cards))
	out := make([]Flashcard, 0, len(cards))
	for _, c := range cards {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
