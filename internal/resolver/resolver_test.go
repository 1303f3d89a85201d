package resolver

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/testutil"
)

func TestResolve_Nested(t *testing.T) {
	store := testutil.Vault(t, map[string]string{
		"root.md":           "",
		"deep/er/child.md":  "",
		"assets/figure.png": "",
	})
	idx, err := Build(store)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := idx.Resolve("child.md")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join("deep", "er", "child.md"); got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
	if idx.Len() != 3 {
		t.Errorf("Len = %d, want 3", idx.Len())
	}
}

func TestResolve_FirstInWalkOrderWins(t *testing.T) {
	store := testutil.Vault(t, map[string]string{
		"b/dup.md": "",
		"a/dup.md": "",
		"dup.md":   "",
	})
	idx, err := Build(store)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, _ := idx.Resolve("dup.md")
	if want := filepath.Join("a", "dup.md"); got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}

func TestResolve_CaseSensitive(t *testing.T) {
	store := testutil.Vault(t, map[string]string{"Child.md": ""})
	idx, _ := Build(store)
	if _, err := idx.Resolve("child.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolve_NotFound(t *testing.T) {
	store := testutil.Vault(t, nil)
	idx, _ := Build(store)
	if _, err := idx.Resolve("nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
