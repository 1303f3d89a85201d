package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/cardsync/internal/anki"
	"github.com/starford/cardsync/internal/anki/ankitest"
	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/staging"
	"github.com/starford/cardsync/internal/testutil"
)

type call struct {
	Action string
	Arg    string
}

// fakeGateway records calls and serves a fixed deck listing.
type fakeGateway struct {
	decks    []string
	notes    []models.RemoteNote
	calls    []call
	imported [][]byte
	failOn   string
}

func (f *fakeGateway) record(action, arg string) error {
	f.calls = append(f.calls, call{Action: action, Arg: arg})
	if f.failOn == action {
		return fmt.Errorf("%w: %s failed", apperr.ErrStoreProtocol, action)
	}
	return nil
}

func (f *fakeGateway) DeckNames(ctx context.Context) ([]string, error) {
	return f.decks, f.record("deckNames", "")
}

func (f *fakeGateway) CreateDeck(ctx context.Context, deck string) (int64, error) {
	return 1, f.record("createDeck", deck)
}

func (f *fakeGateway) NotesInfo(ctx context.Context, query string) ([]models.RemoteNote, error) {
	return f.notes, f.record("notesInfo", query)
}

func (f *fakeGateway) UpdateNoteFields(ctx context.Context, id int64, front, back string) error {
	return f.record("updateNoteFields", fmt.Sprintf("%d:%s:%s", id, front, back))
}

func (f *fakeGateway) GUIImportFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.imported = append(f.imported, data)
	return f.record("guiImportFile", "")
}

func (f *fakeGateway) count(action string) int {
	n := 0
	for _, c := range f.calls {
		if c.Action == action {
			n++
		}
	}
	return n
}

func card(q, a string) models.Flashcard { return models.Flashcard{Question: q, Answer: a} }

func TestNewPlan_Classification(t *testing.T) {
	remote := []models.RemoteNote{{ID: 1, Front: "X", Back: "Y"}}

	p := NewPlan([]models.Flashcard{card("X", "Y")}, remote, true)
	if !p.Empty() || len(p.Unchanged) != 1 {
		t.Errorf("exact match: plan = %+v", p)
	}

	p = NewPlan([]models.Flashcard{card("X", "Z")}, remote, true)
	wantUpdate := []Update{{NoteID: 1, Front: "X", Back: "Z", Card: card("X", "Z"), Previous: remote[0]}}
	if diff := cmp.Diff(wantUpdate, p.Updates); diff != "" {
		t.Errorf("back differs (-want +got):\n%s", diff)
	}

	p = NewPlan([]models.Flashcard{card("W", "Y")}, remote, true)
	if len(p.Updates) != 1 || p.Updates[0].Front != "W" || p.Updates[0].Back != "Y" {
		t.Errorf("front differs: updates = %+v", p.Updates)
	}

	p = NewPlan([]models.Flashcard{card("Q", "A")}, remote, true)
	if diff := cmp.Diff([]models.Flashcard{card("Q", "A")}, p.New); diff != "" {
		t.Errorf("no match (-want +got):\n%s", diff)
	}
	if len(p.Updates) != 0 {
		t.Errorf("unexpected updates %+v", p.Updates)
	}
}

func TestNewPlan_DeckMissingAllNew(t *testing.T) {
	local := []models.Flashcard{card("a", "1"), card("b", "2"), card("a", "1")}
	p := NewPlan(local, []models.RemoteNote{{ID: 9, Front: "a", Back: "1"}}, false)
	if !p.CreateDeck {
		t.Error("CreateDeck = false")
	}
	if diff := cmp.Diff([]models.Flashcard{card("a", "1"), card("b", "2")}, p.New); diff != "" {
		t.Errorf("new mismatch (-want +got):\n%s", diff)
	}
}

func TestNewPlan_ExactMatchConsumesNote(t *testing.T) {
	remote := []models.RemoteNote{{ID: 1, Front: "X", Back: "Y"}}
	// (X,W) would partially match the note, but (X,Y) already owns it.
	p := NewPlan([]models.Flashcard{card("X", "W"), card("X", "Y")}, remote, true)
	if len(p.Updates) != 0 {
		t.Errorf("updates = %+v, want none", p.Updates)
	}
	if diff := cmp.Diff([]models.Flashcard{card("X", "W")}, p.New); diff != "" {
		t.Errorf("new mismatch (-want +got):\n%s", diff)
	}
}

func TestNewPlan_OneUpdatePerRemoteNote(t *testing.T) {
	remote := []models.RemoteNote{{ID: 1, Front: "X", Back: "Y"}}
	p := NewPlan([]models.Flashcard{card("X", "A"), card("X", "B")}, remote, true)
	if len(p.Updates) != 1 || p.Updates[0].Back != "A" {
		t.Fatalf("updates = %+v, want single update to A", p.Updates)
	}
	if diff := cmp.Diff([]models.Flashcard{card("X", "B")}, p.New); diff != "" {
		t.Errorf("new mismatch (-want +got):\n%s", diff)
	}
}

func TestNewPlan_NoDuplicateCreates(t *testing.T) {
	local := []models.Flashcard{card("q", "a"), card("q", "a"), card("q", "a")}
	p := NewPlan(local, nil, true)
	if len(p.New) != 1 {
		t.Errorf("len(New) = %d, want 1", len(p.New))
	}
}

func TestSync_DeckMissing(t *testing.T) {
	gw := &fakeGateway{decks: []string{"Default"}}
	r := New(gw, staging.New(t.TempDir()), testutil.Logger())

	res, err := r.Sync(context.Background(), "Bio", []models.Flashcard{card("a", "1"), card("b", "2")})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	wantCalls := []call{
		{Action: "deckNames"},
		{Action: "createDeck", Arg: "Bio"},
		{Action: "guiImportFile"},
	}
	if diff := cmp.Diff(wantCalls, gw.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if string(gw.imported[0]) != "#deck:Bio\n#separator:Semicolon\na;1\nb;2\n" {
		t.Errorf("import file = %q", gw.imported[0])
	}
	if !res.Plan.CreateDeck || len(res.Plan.New) != 2 {
		t.Errorf("result = %+v", res.Plan)
	}
}

func TestSync_UnchangedIssuesNoMutations(t *testing.T) {
	gw := &fakeGateway{
		decks: []string{"Bio"},
		notes: []models.RemoteNote{{ID: 7, Front: "X", Back: "Y"}},
	}
	r := New(gw, staging.New(t.TempDir()), testutil.Logger())
	if _, err := r.Sync(context.Background(), "Bio", []models.Flashcard{card("X", "Y")}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	wantCalls := []call{{Action: "deckNames"}, {Action: "notesInfo", Arg: anki.DeckQuery("Bio")}}
	if diff := cmp.Diff(wantCalls, gw.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSync_UpdateAndImport(t *testing.T) {
	gw := &fakeGateway{
		decks: []string{"Bio"},
		notes: []models.RemoteNote{{ID: 7, Front: "X", Back: "Y"}},
	}
	dir := t.TempDir()
	r := New(gw, staging.New(dir), testutil.Logger())
	if _, err := r.Sync(context.Background(), "Bio", []models.Flashcard{card("X", "Z"), card("new", "card")}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if gw.count("updateNoteFields") != 1 || gw.calls[2].Arg != "7:X:Z" {
		t.Errorf("calls = %+v", gw.calls)
	}
	if gw.count("guiImportFile") != 1 {
		t.Errorf("guiImportFile calls = %d, want 1", gw.count("guiImportFile"))
	}
	left, _ := os.ReadDir(dir)
	if len(left) != 0 {
		t.Errorf("staged files left behind: %v", left)
	}
}

func TestSync_DryRunIssuesNoMutations(t *testing.T) {
	gw := &fakeGateway{decks: []string{"Default"}}
	r := New(gw, staging.New(t.TempDir()), testutil.Logger(), WithDryRun(true))
	res, err := r.Sync(context.Background(), "Bio", []models.Flashcard{card("a", "1")})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(gw.calls) != 1 || !res.DryRun || len(res.Plan.New) != 1 {
		t.Errorf("calls = %+v result = %+v", gw.calls, res)
	}
}

func TestSync_StoreErrorAborts(t *testing.T) {
	gw := &fakeGateway{
		decks:  []string{"Bio"},
		notes:  []models.RemoteNote{{ID: 7, Front: "X", Back: "Y"}},
		failOn: "updateNoteFields",
	}
	r := New(gw, staging.New(t.TempDir()), testutil.Logger())
	_, err := r.Sync(context.Background(), "Bio", []models.Flashcard{card("X", "Z"), card("n", "c")})
	if !errors.Is(err, apperr.ErrStoreProtocol) {
		t.Fatalf("err = %v, want ErrStoreProtocol", err)
	}
	if gw.count("guiImportFile") != 0 {
		t.Error("import must not run after a failed update")
	}
}

func TestSync_AgainstFakeServerIsIdempotent(t *testing.T) {
	srv := ankitest.New()
	defer srv.Close()
	gw := anki.New(anki.Options{URL: srv.URL, Timeout: 5 * time.Second}, testutil.Logger())
	r := New(gw, staging.New(t.TempDir()), testutil.Logger())
	cards := []models.Flashcard{card("2+2?", "4"), card("semi;colon", "multi\nline")}

	if _, err := r.Sync(context.Background(), "Math", cards); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if got := srv.Notes("Math"); len(got) != 2 {
		t.Fatalf("notes after first sync = %+v", got)
	}

	res, err := r.Sync(context.Background(), "Math", cards)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if !res.Plan.Empty() || len(res.Plan.Unchanged) != 2 {
		t.Errorf("second plan = %+v, want no mutations", res.Plan)
	}
	if n := srv.CallCount("guiImportFile"); n != 1 {
		t.Errorf("guiImportFile calls = %d, want 1", n)
	}
	if n := srv.CallCount("createDeck"); n != 1 {
		t.Errorf("createDeck calls = %d, want 1", n)
	}
}
