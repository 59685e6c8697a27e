package filestore

import "os"

// Local implements Store over the host filesystem using os.File.
type Local struct{}

// NewLocal returns a Store backed by the real filesystem.
func NewLocal() *Local { return &Local{} }

func (Local) Open(path string, opts OpenOptions) (Handle, error) {
	var flag int
	switch {
	case opts.Read && opts.Write:
		flag = os.O_RDWR
	case opts.Write:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}
	if opts.Create {
		flag |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	return &localHandle{f: f}, nil
}

func (Local) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (Local) Delete(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

type localHandle struct {
	f *os.File
}

func (h *localHandle) ReadAt(p []byte, off int64) (int, error)  { return h.f.ReadAt(p, off) }
func (h *localHandle) WriteAt(p []byte, off int64) (int, error) { return h.f.WriteAt(p, off) }
func (h *localHandle) Close() error                             { return h.f.Close() }
func (h *localHandle) Sync() error                              { return h.f.Sync() }
func (h *localHandle) Truncate(size int64) error                { return h.f.Truncate(size) }

func (h *localHandle) Size() (int64, error) {
	info, err := h.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
