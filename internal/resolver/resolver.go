// Package resolver maps wikilink file names to vault paths.
package resolver

import (
	"fmt"
	"path/filepath"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/storage"
)

// Resolver finds the vault path of a file by its exact base name.
type Resolver interface {
	Resolve(name string) (string, error)
}

// Index is a Resolver backed by a name -> path map built from a single walk.
// When several files share a base name, the first in walk order wins.
type Index struct {
	paths map[string]string
}

// Build walks the vault once and indexes every file by base name.
func Build(store storage.Provider) (*Index, error) {
	idx := &Index{paths: make(map[string]string)}
	err := store.Walk(func(path string) error {
		name := filepath.Base(path)
		if _, ok := idx.paths[name]; !ok {
			idx.paths[name] = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolver: build index: %w", err)
	}
	return idx, nil
}

// Resolve returns the vault path for name. Matching is case-sensitive.
func (i *Index) Resolve(name string) (string, error) {
	if p, ok := i.paths[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("resolver: %q: %w", name, apperr.ErrNotFound)
}

// Len reports the number of distinct names indexed.
func (i *Index) Len() int { return len(i.paths) }

var _ Resolver = (*Index)(nil)
