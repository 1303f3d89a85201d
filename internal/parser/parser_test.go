package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/cardsync/internal/models"
)

func TestParse_PreambleDiscarded(t *testing.T) {
	r := Parse([]byte("Select Connection:\nSELF\n#[flashcard] Q: 2+2? A: 4"))
	want := []models.Flashcard{{Question: "2+2?", Answer: "4"}}
	if diff := cmp.Diff(want, r.Cards); diff != "" {
		t.Errorf("cards mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_PreambleDropsEarlierCards(t *testing.T) {
	input := "#[flashcard] Q: hidden A: yes\nSelect Connection: db1\n#[flashcard] Q: shown A: ok"
	r := Parse([]byte(input))
	want := []models.Flashcard{{Question: "shown", Answer: "ok"}}
	if diff := cmp.Diff(want, r.Cards); diff != "" {
		t.Errorf("cards mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_PreambleWithoutNewline(t *testing.T) {
	r := Parse([]byte("#[flashcard] Q: a A: b Select Connection:"))
	if len(r.Cards) != 0 {
		t.Errorf("expected no cards, got %v", r.Cards)
	}
}

func TestParse_MultilineAnswer(t *testing.T) {
	input := "# Title\n#[flashcard]\nQ: What is Go?\nA: A language.\nCompiled.\n\n#[flashcard] Q: Second?\nA: Yes\n"
	r := Parse([]byte(input))
	want := []models.Flashcard{
		{Question: "What is Go?", Answer: "A language.\nCompiled."},
		{Question: "Second?", Answer: "Yes"},
	}
	if diff := cmp.Diff(want, r.Cards); diff != "" {
		t.Errorf("cards mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_MalformedBlocksSkipped(t *testing.T) {
	input := "#[flashcard] Q: no answer here\n#[flashcard] A: no question\n#[flashcard] Q:   A: empty q\n#[flashcard] Q: ok A: fine"
	r := Parse([]byte(input))
	want := []models.Flashcard{{Question: "ok", Answer: "fine"}}
	if diff := cmp.Diff(want, r.Cards); diff != "" {
		t.Errorf("cards mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_CaseSensitiveTag(t *testing.T) {
	r := Parse([]byte("#[Flashcard] Q: a A: b\n#[flashcard] q: a a: b"))
	if len(r.Cards) != 0 {
		t.Errorf("expected no cards, got %v", r.Cards)
	}
}

func TestParse_Idempotent(t *testing.T) {
	input := []byte("#[flashcard] Q: x A: y\n[[a]] [[b|B]]")
	first := Parse(input)
	second := Parse(input)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-parse differs:\n%s", diff)
	}
}

func TestExtractLinks_AliasAndAnchor(t *testing.T) {
	links := extractLinks("See [[Note]], [[Note|Alias]], [[Note#Heading]] and [[Other#H|A]].", DefaultExtension)
	want := []string{"Note.md", "Other.md"}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractLinks_EmptyTarget(t *testing.T) {
	links := extractLinks("see [[ ]] and [[|alias]] and [[#Heading]]", DefaultExtension)
	if len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestNormalizeLink_Extension(t *testing.T) {
	cases := map[string]string{
		"child":          "child.md",
		"child.md":       "child.md",
		"Node.js":        "Node.js.md",
		"2024.01.notes":  "2024.01.notes.md",
		"diagram.png":    "diagram.png.md",
		"Release v1.2":   "Release v1.2.md",
		"Ch. 1 Intro":    "Ch. 1 Intro.md",
		" spaced ":       "spaced.md",
		"Dr. Who|Doctor": "Dr. Who.md",
	}
	for in, want := range cases {
		if got := NormalizeLink(in, DefaultExtension); got != want {
			t.Errorf("NormalizeLink(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseWithExtension(t *testing.T) {
	r := ParseWithExtension([]byte("[[page]]"), ".markdown")
	if len(r.Links) != 1 || r.Links[0] != "page.markdown" {
		t.Errorf("links = %v", r.Links)
	}
}
