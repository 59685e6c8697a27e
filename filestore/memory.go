package filestore

import (
	"errors"
	"sync"
)

// Memory is an in-process Store over byte slices: a map of named
// buffers standing in for files, used so pager/journal/stress-sink
// tests don't touch disk.
type Memory struct {
	mu    sync.Mutex
	files map[string]*memFile
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]*memFile)}
}

type memFile struct {
	mu   sync.Mutex
	data []byte
}

func (m *Memory) Open(path string, opts OpenOptions) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[path]
	if !ok {
		if !opts.Create {
			return nil, errors.New("filestore: file does not exist: " + path)
		}
		f = &memFile{}
		m.files[path] = f
	}
	return &memHandle{f: f}, nil
}

func (m *Memory) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *Memory) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

type memHandle struct {
	f *memFile
}

func (h *memHandle) ReadAt(p []byte, off int64) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()

	if off < 0 {
		return 0, errors.New("filestore: negative offset")
	}
	if off >= int64(len(h.f.data)) {
		return 0, errors.New("filestore: EOF")
	}
	n := copy(p, h.f.data[off:])
	if n < len(p) {
		return n, errors.New("filestore: short read")
	}
	return n, nil
}

func (h *memHandle) WriteAt(p []byte, off int64) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(h.f.data)) {
		grown := make([]byte, end)
		copy(grown, h.f.data)
		h.f.data = grown
	}
	copy(h.f.data[off:end], p)
	return len(p), nil
}

func (h *memHandle) Close() error { return nil }
func (h *memHandle) Sync() error  { return nil }

func (h *memHandle) Truncate(size int64) error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()

	if size <= int64(len(h.f.data)) {
		h.f.data = h.f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, h.f.data)
	h.f.data = grown
	return nil
}

func (h *memHandle) Size() (int64, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	return int64(len(h.f.data)), nil
}
