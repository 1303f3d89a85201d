// Package storage defines the read-only vault file-system abstraction.
package storage

// Provider is the interface for vault file access. All paths are relative
// to the vault root and use the host separator.
type Provider interface {
	// Root returns the absolute vault root.
	Root() string
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Walk calls fn for every regular file under the vault in lexical pre-order,
	// skipping hidden directories.
	Walk(fn func(path string) error) error
	// ListNotes returns files with extension ext directly inside dir, sorted.
	ListNotes(dir, ext string) ([]string, error)
	// Rel converts an absolute or working-directory-relative path to a vault path.
	Rel(path string) (string, error)
}
