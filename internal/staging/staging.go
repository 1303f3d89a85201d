// Package staging writes the transient text files Anki imports new cards from.
//
// File layout:
//
//	#deck:<deck name>
//	#separator:Semicolon
//	<question>;<answer>
//	...
//
// Fields containing the separator, quotes, line breaks, or a leading "#"
// are double-quoted with embedded quotes doubled.
package staging

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/starford/cardsync/internal/models"
)

const (
	// Prefix names every staged file so stale ones can be found again.
	Prefix = "cardsync-import-"
	suffix = ".txt"

	deckHeader      = "#deck:"
	separatorHeader = "#separator:Semicolon"
)

// Stager owns a directory of staged import files.
type Stager struct {
	dir string
}

// New returns a Stager writing to dir, or the OS temp dir when dir is empty.
func New(dir string) *Stager {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Stager{dir: dir}
}

// Dir returns the staging directory.
func (s *Stager) Dir() string { return s.dir }

// Write stages cards for deck and returns the absolute file path.
func (s *Stager) Write(deck string, cards []models.Flashcard) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("staging: mkdir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(s.dir, Prefix+uuid.NewString()+suffix))
	if err != nil {
		return "", fmt.Errorf("staging: resolve path: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(Encode(deck, cards))); err != nil {
		return "", fmt.Errorf("staging: write: %w", err)
	}
	return path, nil
}

// Remove deletes a staged file. A file that is already gone is not an error.
func (s *Stager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("staging: remove: %w", err)
	}
	return nil
}

// Sweep removes staged files last modified before now-maxAge, returning their paths.
// Left-over files come from runs that failed between staging and removal.
func (s *Stager) Sweep(maxAge time.Duration, now time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, Prefix+"*"+suffix))
	if err != nil {
		return nil, fmt.Errorf("staging: glob: %w", err)
	}
	cutoff := now.Add(-maxAge)
	var removed []string
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := s.Remove(p); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

// Encode renders the import file for deck.
func Encode(deck string, cards []models.Flashcard) []byte {
	var b bytes.Buffer
	b.WriteString(deckHeader + deck + "\n")
	b.WriteString(separatorHeader + "\n")
	for _, c := range cards {
		b.WriteString(quote(c.Question))
		b.WriteByte(';')
		b.WriteString(quote(c.Answer))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func quote(field string) string {
	if !strings.ContainsAny(field, ";\"\r\n") && !strings.HasPrefix(field, "#") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// Decode parses an import file produced by Encode.
func Decode(r io.Reader) (string, []models.Flashcard, error) {
	br := bufio.NewReader(r)
	var deck string
	for {
		peek, err := br.Peek(1)
		if err != nil || peek[0] != '#' {
			break
		}
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", nil, fmt.Errorf("staging: read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, deckHeader) {
			deck = strings.TrimPrefix(line, deckHeader)
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = ';'
	cr.FieldsPerRecord = 2
	records, err := cr.ReadAll()
	if err != nil {
		return "", nil, fmt.Errorf("staging: read records: %w", err)
	}
	cards := make([]models.Flashcard, 0, len(records))
	for _, rec := range records {
		cards = append(cards, models.Flashcard{Question: rec[0], Answer: rec[1]})
	}
	return deck, cards, nil
}
