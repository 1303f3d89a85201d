package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrStartNodeNotFound = errors.New("start note not found")
	ErrInvalidVaultPath  = errors.New("invalid vault path")
	ErrOutsideVault      = errors.New("path escapes vault root")
	ErrStoreProtocol     = errors.New("store protocol error")
)
