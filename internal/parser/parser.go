// Package parser extracts flashcards and wikilinks from Markdown content.
package parser

import (
	"regexp"
	"strings"

	"github.com/starford/cardsync/internal/models"
)

const (
	// DefaultExtension is appended to link targets that do not already end with it.
	DefaultExtension = ".md"

	// PreambleMarker starts a connection-selection banner that some exporters
	// prepend to notes. The banner line and everything before it is ignored.
	PreambleMarker = "Select Connection:"

	// FlashcardTag opens a flashcard block.
	FlashcardTag = "#[flashcard]"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	blockRe    = regexp.MustCompile(`(?s)^\s*Q:\s*(.*?)\s*A:\s*(.*)$`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Cards []models.Flashcard
	Links []string
}

// Parse extracts flashcards and link targets from raw Markdown bytes,
// normalising link targets with DefaultExtension.
func Parse(data []byte) *Result {
	return ParseWithExtension(data, DefaultExtension)
}

// ParseWithExtension is Parse with a custom note extension (including the dot).
func ParseWithExtension(data []byte, ext string) *Result {
	body := stripPreamble(string(data))
	return &Result{
		Cards: extractCards(body),
		Links: extractLinks(body, ext),
	}
}

// stripPreamble drops everything up to and including the line holding
// PreambleMarker. Without the marker the text is returned as is.
func stripPreamble(text string) string {
	i := strings.Index(text, PreambleMarker)
	if i < 0 {
		return text
	}
	nl := strings.IndexByte(text[i:], '\n')
	if nl < 0 {
		return ""
	}
	return text[i+nl+1:]
}

// extractCards splits body at every FlashcardTag and parses each block.
// Blocks without both Q: and A:, or with an empty side, are skipped.
func extractCards(body string) []models.Flashcard {
	parts := strings.Split(body, FlashcardTag)
	if len(parts) < 2 {
		return nil
	}
	var out []models.Flashcard
	// parts[0] precedes the first tag.
	for _, block := range parts[1:] {
		m := blockRe.FindStringSubmatch(block)
		if m == nil {
			continue
		}
		q := strings.TrimSpace(m[1])
		a := strings.TrimSpace(m[2])
		if q == "" || a == "" {
			continue
		}
		out = append(out, models.Flashcard{Question: q, Answer: a})
	}
	return out
}

// extractLinks returns deduplicated wikilink targets as file names.
// [[Target|Alias]] and [[Target#Heading]] both yield Target.
func extractLinks(body, ext string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := NormalizeLink(m[1], ext)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// NormalizeLink converts the inside of a [[...]] link to a file name by
// appending ext unless the name already ends with it, so [[Node.js]] names
// Node.js.md. It returns "" when nothing but an alias or anchor is left.
func NormalizeLink(raw, ext string) string {
	target := raw
	if i := strings.IndexAny(target, "|#"); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	if !strings.HasSuffix(target, ext) {
		target += ext
	}
	return target
}
