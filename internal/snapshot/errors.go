package snapshot

import (
	"errors"
	"fmt"
)

var (
	ErrServerBusy     = errors.New("server is running")
	ErrNoWorldData    = errors.New("primary world directory does not exist")
	ErrDuplicateName  = errors.New("snapshot name already exists")
	ErrNotFound       = errors.New("snapshot not found")
	ErrFileMissing    = errors.New("snapshot archive is missing")
	ErrCorruptArchive = errors.New("primary world directory missing from archive")
	ErrNameRequired   = errors.New("snapshot name required")
)

// ArchiveError is an I/O failure inside the archive engine.
type ArchiveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// StoreError is a catalog failure that is not a lookup miss or a name clash.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
