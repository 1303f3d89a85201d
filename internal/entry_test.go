package internal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/cardsync/internal/anki/ankitest"
	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/staging"
	"github.com/starford/cardsync/internal/testutil"
)

func testConfig(t *testing.T, ankiURL string) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.App.LogLevel = 12 // above error: silence test output
	cfg.Anki.URL = ankiURL
	cfg.Anki.Timeout = 5 * time.Second
	cfg.Anki.Retries = 0
	cfg.Staging.Dir = t.TempDir()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

func testVault(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"Biology.md":       "Select Connection: [[Ignored]]\n#[flashcard] Q: Cell unit? A: Cell\n[[Genetics|genes]]",
		"deep/Genetics.md": "#[flashcard] Q: DNA shape? A: Double helix",
	})
	return dir
}

func TestRun_SyncAndSummary(t *testing.T) {
	srv := ankitest.New()
	defer srv.Close()
	cfg := testConfig(t, srv.URL)
	vault := testVault(t)

	var out bytes.Buffer
	err := Run(context.Background(),
		WithConfig(cfg), WithTarget("Biology.md"), WithVault(vault), WithOutput(&out))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "Found flashcards:\n" +
		"Q: Cell unit?\nA: Cell\n[[Genetics|genes]]\n\n" +
		"Q: DNA shape?\nA: Double helix\n\n" +
		"Deck \"Biology\": 2 created, 0 updated, 0 unchanged\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if n := len(srv.Notes("Biology")); n != 2 {
		t.Errorf("remote notes = %d, want 2", n)
	}

	out.Reset()
	if err := Run(context.Background(),
		WithConfig(cfg), WithTarget("Biology"), WithVault(vault), WithOutput(&out)); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !strings.HasSuffix(out.String(), "0 created, 0 updated, 2 unchanged\n") {
		t.Errorf("second output = %q", out.String())
	}

	out.Reset()
	if err := History(context.Background(), WithConfig(cfg), WithDeck("Biology"), WithOutput(&out)); err != nil {
		t.Fatalf("History: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("history output = %q", out.String())
	}
}

func TestRun_InvalidVault(t *testing.T) {
	srv := ankitest.New()
	defer srv.Close()
	err := Run(context.Background(),
		WithConfig(testConfig(t, srv.URL)),
		WithTarget("Biology.md"),
		WithVault(filepath.Join(t.TempDir(), "missing")),
		WithOutput(&bytes.Buffer{}))
	if !errors.Is(err, apperr.ErrInvalidVaultPath) {
		t.Fatalf("err = %v, want ErrInvalidVaultPath", err)
	}
	if calls := srv.Calls(); len(calls) != 0 {
		t.Errorf("store contacted before vault check: %v", calls)
	}
}

func TestRun_UnknownStartNote(t *testing.T) {
	srv := ankitest.New()
	defer srv.Close()
	err := Run(context.Background(),
		WithConfig(testConfig(t, srv.URL)),
		WithTarget("Physics.md"),
		WithVault(testVault(t)),
		WithOutput(&bytes.Buffer{}))
	if !errors.Is(err, apperr.ErrStartNodeNotFound) {
		t.Fatalf("err = %v, want ErrStartNodeNotFound", err)
	}
}

func TestRun_DryRunLeavesStoreUntouched(t *testing.T) {
	srv := ankitest.New()
	defer srv.Close()
	var out bytes.Buffer
	err := Run(context.Background(),
		WithConfig(testConfig(t, srv.URL)),
		WithTarget("Biology.md"), WithVault(testVault(t)),
		WithDeck("Bio"), WithDryRun(true), WithOutput(&out))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if srv.HasDeck("Bio") {
		t.Error("dry run created the deck")
	}
	if !strings.HasSuffix(out.String(), "Deck \"Bio\": 2 created, 0 updated, 0 unchanged (dry run)\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExtract_NoFlashcards(t *testing.T) {
	vault := t.TempDir()
	testutil.WriteFiles(t, vault, map[string]string{"Plain.md": "just text"})
	var out bytes.Buffer
	err := Extract(context.Background(),
		WithConfig(testConfig(t, "http://127.0.0.1:1")),
		WithTarget("Plain"), WithVault(vault), WithOutput(&out))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.String() != "No flashcards found.\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestHistory_Disabled(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.SQLite.Path = ""
	if err := History(context.Background(), WithConfig(cfg), WithOutput(&bytes.Buffer{})); err == nil {
		t.Fatal("expected error when history is disabled")
	}
}

func TestCleanup_RemovesStaleFiles(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Staging.MaxAge = time.Hour

	stale := filepath.Join(cfg.Staging.Dir, staging.Prefix+"stale.txt")
	fresh := filepath.Join(cfg.Staging.Dir, staging.Prefix+"fresh.txt")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("#deck:x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Cleanup(context.Background(), WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file removed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Removed 1 staged file(s)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRun_UnreachableAnkiFailsBeforeSync(t *testing.T) {
	srv := ankitest.New()
	url := srv.URL
	srv.Close()

	var out bytes.Buffer
	err := Run(context.Background(),
		WithConfig(testConfig(t, url)),
		WithTarget("Biology.md"), WithVault(testVault(t)), WithOutput(&out))
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("err = %v, want unreachable error", err)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing printed", out.String())
	}
}

func TestRun_ChecksVersionFirst(t *testing.T) {
	srv := ankitest.New()
	defer srv.Close()
	if err := Run(context.Background(),
		WithConfig(testConfig(t, srv.URL)),
		WithTarget("Biology.md"), WithVault(testVault(t)), WithOutput(&bytes.Buffer{})); err != nil {
		t.Fatalf("Run: %v", err)
	}
	calls := srv.Calls()
	if len(calls) == 0 || calls[0] != "version" {
		t.Errorf("calls = %v, want version first", calls)
	}
}
