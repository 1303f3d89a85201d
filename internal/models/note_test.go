package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDedup_KeepsFirst(t *testing.T) {
	in := []Flashcard{{"a", "1"}, {"b", "2"}, {"a", "1"}, {"a", "2"}}
	want := []Flashcard{{"a", "1"}, {"b", "2"}, {"a", "2"}}
	if diff := cmp.Diff(want, Dedup(in)); diff != "" {
		t.Errorf("dedup mismatch (-want +got):\n%s", diff)
	}
}

func TestDedup_Empty(t *testing.T) {
	if got := Dedup(nil); len(got) != 0 {
		t.Errorf("Dedup(nil) = %v, want empty", got)
	}
}
