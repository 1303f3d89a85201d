package storage

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root   string // absolute path to vault directory
	logger *slog.Logger
}

// Option configures an FS.
type Option func(*FS)

// WithLogger sets the logger used for skipped directories during Walk.
func WithLogger(l *slog.Logger) Option {
	return func(f *FS) { f.logger = l }
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve root: %v", apperr.ErrInvalidVaultPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidVaultPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", apperr.ErrInvalidVaultPath, abs)
	}
	f := &FS{root: abs, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute vault root.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !f.contains(abs) {
		return "", fmt.Errorf("storage: %w: %s", apperr.ErrOutsideVault, rel)
	}
	return abs, nil
}

func (f *FS) contains(abs string) bool {
	return abs == f.root || strings.HasPrefix(abs, f.root+string(os.PathSeparator))
}

// Rel converts path to a vault-relative path. Absolute paths and paths
// relative to the working directory must lie inside the vault.
func (f *FS) Rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !f.contains(abs) {
		return "", fmt.Errorf("storage: %w: %s", apperr.ErrOutsideVault, path)
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: rel: %w", err)
	}
	if rel == "." {
		return "", nil
	}
	return rel, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Walk visits every regular file under the vault in lexical pre-order.
// Directories whose name starts with "." are skipped, as are entries that
// cannot be read. Only a failure on the root itself is returned.
func (f *FS) Walk(fn func(path string) error) error {
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == f.root {
				return walkErr
			}
			f.logger.Warn("storage: skipping unreadable path",
				slog.String("path", p),
				slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != f.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		return fn(rel)
	})
	if err != nil {
		return fmt.Errorf("storage: walk: %w", err)
	}
	return nil
}

// ListNotes returns the files ending in ext directly inside dir (not recursive).
func (f *FS) ListNotes(dir, ext string) ([]string, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

var _ Provider = (*FS)(nil)
