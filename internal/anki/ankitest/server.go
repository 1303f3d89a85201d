// Package ankitest provides an in-memory AnkiConnect server for tests.
package ankitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsync/internal/staging"
)

// Note is a stored note.
type Note struct {
	ID    int64
	Deck  string
	Front string
	Back  string
}

// Server is a fake AnkiConnect endpoint backed by memory. It understands the
// actions cardsync issues and records every call.
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	decks  map[string]int64
	notes  []*Note
	nextID int64
	calls  []string
	fail   map[string]string
	raw    map[string]string
}

// New starts a fake server. Call Close when done.
func New() *Server {
	s := &Server{
		decks:  map[string]int64{"Default": 1},
		nextID: 1000,
		fail:   make(map[string]string),
		raw:    make(map[string]string),
	}
	r := chi.NewRouter()
	r.Post("/", s.handle)
	s.Server = httptest.NewServer(r)
	return s
}

// AddDeck creates a deck directly.
func (s *Server) AddDeck(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addDeckLocked(name)
}

// AddNote stores a note directly and returns its id.
func (s *Server) AddNote(deck, front, back string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addDeckLocked(deck)
	return s.addNoteLocked(deck, front, back)
}

// FailAction makes action reply with the given error message.
func (s *Server) FailAction(action, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[action] = msg
}

// RawReply makes action reply with body verbatim.
func (s *Server) RawReply(action, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[action] = body
}

// Calls returns the actions received so far, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns how often action was received.
func (s *Server) CallCount(action string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == action {
			n++
		}
	}
	return n
}

// Notes returns a copy of the notes in deck ordered by id.
func (s *Server) Notes(deck string) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Note
	for _, n := range s.notes {
		if n.Deck == deck {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasDeck reports whether deck exists.
func (s *Server) HasDeck(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.decks[name]
	return ok
}

func (s *Server) addDeckLocked(name string) int64 {
	if id, ok := s.decks[name]; ok {
		return id
	}
	s.nextID++
	s.decks[name] = s.nextID
	return s.nextID
}

func (s *Server) addNoteLocked(deck, front, back string) int64 {
	s.nextID++
	s.notes = append(s.notes, &Note{ID: s.nextID, Deck: deck, Front: front, Back: back})
	return s.nextID
}

type request struct {
	Action  string          `json:"action"`
	Params  json.RawMessage `json:"params"`
	Version int             `json:"version"`
}

type reply struct {
	Result any `json:"result"`
	Error  any `json:"error"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeReply(w, nil, "invalid request: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req.Action)

	if body, ok := s.raw[req.Action]; ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
		return
	}
	if msg, ok := s.fail[req.Action]; ok {
		writeReply(w, nil, msg)
		return
	}
	if req.Version != 6 {
		writeReply(w, nil, fmt.Sprintf("unsupported version %d", req.Version))
		return
	}

	result, err := s.dispatchLocked(req)
	if err != nil {
		writeReply(w, nil, err.Error())
		return
	}
	writeReply(w, result, nil)
}

func (s *Server) dispatchLocked(req request) (any, error) {
	switch req.Action {
	case "version":
		return 6, nil

	case "deckNames":
		names := make([]string, 0, len(s.decks))
		for n := range s.decks {
			names = append(names, n)
		}
		sort.Strings(names)
		return names, nil

	case "createDeck":
		var p struct {
			Deck string `json:"deck"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return s.addDeckLocked(p.Deck), nil

	case "notesInfo":
		var p struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		terms := parseQuery(p.Query)
		out := []map[string]any{}
		for _, n := range s.notes {
			if !matchAll(terms, n.Deck) {
				continue
			}
			out = append(out, map[string]any{
				"noteId":    n.ID,
				"modelName": "Basic",
				"tags":      []string{},
				"fields": map[string]any{
					"Front": map[string]any{"value": n.Front, "order": 0},
					"Back":  map[string]any{"value": n.Back, "order": 1},
				},
			})
		}
		return out, nil

	case "updateNoteFields":
		var p struct {
			Note struct {
				ID     int64             `json:"id"`
				Fields map[string]string `json:"fields"`
			} `json:"note"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		for _, n := range s.notes {
			if n.ID == p.Note.ID {
				if v, ok := p.Note.Fields["Front"]; ok {
					n.Front = v
				}
				if v, ok := p.Note.Fields["Back"]; ok {
					n.Back = v
				}
				return nil, nil
			}
		}
		return nil, fmt.Errorf("note was not found: %d", p.Note.ID)

	case "guiImportFile":
		var p struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		f, err := os.Open(p.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		deck, cards, err := staging.Decode(f)
		if err != nil {
			return nil, err
		}
		if deck == "" {
			deck = "Default"
		}
		s.addDeckLocked(deck)
		for _, c := range cards {
			s.addNoteLocked(deck, c.Question, c.Answer)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported action: %s", req.Action)
}

// term is one deck:<name> clause of a search query.
type term struct {
	negate bool
	deck   string
	prefix bool // name ended in an unescaped *
}

// parseQuery reads the space-separated, optionally quoted and negated
// deck:<name> clauses that anki.DeckQuery produces.
func parseQuery(q string) []term {
	var terms []term
	rs := []rune(q)
	for i := 0; i < len(rs); {
		if rs[i] == ' ' {
			i++
			continue
		}
		var t term
		if rs[i] == '-' {
			t.negate = true
			i++
		}
		quoted := i < len(rs) && rs[i] == '"'
		if quoted {
			i++
		}
		var b strings.Builder
		for ; i < len(rs); i++ {
			r := rs[i]
			if r == '\\' && i+1 < len(rs) {
				i++
				b.WriteRune(rs[i])
				t.prefix = false
				continue
			}
			if (quoted && r == '"') || (!quoted && r == ' ') {
				i++
				break
			}
			b.WriteRune(r)
			t.prefix = r == '*'
		}
		name := strings.TrimPrefix(b.String(), "deck:")
		if t.prefix {
			name = strings.TrimSuffix(name, "*")
		}
		t.deck = name
		terms = append(terms, t)
	}
	return terms
}

// matchAll applies Anki's deck search semantics: deck:X matches X and its
// subdecks, deck:X* matches by prefix.
func matchAll(terms []term, deck string) bool {
	for _, t := range terms {
		var hit bool
		if t.prefix {
			hit = strings.HasPrefix(deck, t.deck)
		} else {
			hit = deck == t.deck || strings.HasPrefix(deck, t.deck+"::")
		}
		if hit == t.negate {
			return false
		}
	}
	return true
}

func writeReply(w http.ResponseWriter, result, errMsg any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply{Result: result, Error: errMsg})
}
