// Package filestore abstracts the blocking, byte-addressable file used
// by the pager, the stress sink and the journal. It exists so those
// components never call os.Open directly: tests run against Memory,
// production code runs against Local.
package filestore

import "io"

// OpenOptions mirrors the create/read/write intent the core needs from
// a file store. A store is free to interpret Create as create-if-missing.
type OpenOptions struct {
	Create bool
	Read   bool
	Write  bool
}

// Handle is a scoped random-access file. Every read/write/seek call may
// block; no cancellation is offered.
type Handle interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Sync flushes buffered writes to stable storage.
	Sync() error

	// Truncate resizes the file, growing with zero bytes if needed.
	Truncate(size int64) error

	// Size returns the current file size.
	Size() (int64, error)
}

// Store is the file-system collaborator the core depends on.
type Store interface {
	Open(path string, opts OpenOptions) (Handle, error)
	Exists(path string) bool
	Delete(path string) error
}
