package anki

import (
	"context"
	"strings"

	"github.com/starford/cardsync/internal/models"
)

// Field names of the Basic note type that cards map onto.
const (
	FieldFront = "Front"
	FieldBack  = "Back"
)

// Version returns the AnkiConnect protocol version.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	err := c.Invoke(ctx, "version", nil, &v)
	return v, err
}

// DeckNames lists every deck in the collection.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.Invoke(ctx, "deckNames", nil, &names)
	return names, err
}

// CreateDeck creates a deck and returns its id. Creating an existing deck is a no-op in Anki.
func (c *Client) CreateDeck(ctx context.Context, deck string) (int64, error) {
	var id int64
	err := c.Invoke(ctx, "createDeck", map[string]any{"deck": deck}, &id)
	return id, err
}

type noteInfo struct {
	NoteID int64 `json:"noteId"`
	Fields map[string]struct {
		Value string `json:"value"`
		Order int    `json:"order"`
	} `json:"fields"`
}

// NotesInfo returns the notes matching an Anki search query.
// Notes without Front/Back fields map those sides to "".
func (c *Client) NotesInfo(ctx context.Context, query string) ([]models.RemoteNote, error) {
	var infos []noteInfo
	if err := c.Invoke(ctx, "notesInfo", map[string]any{"query": query}, &infos); err != nil {
		return nil, err
	}
	out := make([]models.RemoteNote, 0, len(infos))
	for _, n := range infos {
		out = append(out, models.RemoteNote{
			ID:    n.NoteID,
			Front: n.Fields[FieldFront].Value,
			Back:  n.Fields[FieldBack].Value,
		})
	}
	return out, nil
}

// UpdateNoteFields overwrites the Front and Back fields of note id.
func (c *Client) UpdateNoteFields(ctx context.Context, id int64, front, back string) error {
	return c.Invoke(ctx, "updateNoteFields", map[string]any{
		"note": map[string]any{
			"id": id,
			"fields": map[string]string{
				FieldFront: front,
				FieldBack:  back,
			},
		},
	}, nil)
}

// GUIImportFile asks Anki to import a text file through its import dialog.
func (c *Client) GUIImportFile(ctx context.Context, path string) error {
	return c.Invoke(ctx, "guiImportFile", map[string]any{"path": path}, nil)
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `*`, `\*`, `_`, `\_`)

// DeckQuery builds a search query matching the notes of deck itself.
// "deck:X" also matches subdecks (X::child), so those are excluded.
func DeckQuery(deck string) string {
	d := queryEscaper.Replace(deck)
	return `"deck:` + d + `" -"deck:` + d + `::*"`
}
