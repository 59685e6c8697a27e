package pager

import "sync/atomic"

// frameFlags tracks a frame's new/dirty bits as an atomic bitset so
// tryGet/iterDirty never take a lock.
type frameFlags uint32

const (
	flagNew frameFlags = 1 << iota
	flagDirty
)

// Frame is one resident page image, arena-owned by the BufferPool.
// Outsiders only ever hold non-owning handles (ReadHandle/WriteHandle)
// whose Release decrements the counters below; the pool itself is the
// only thing that frees the backing buffer.
type Frame struct {
	tag Tag
	buf []byte

	flags atomic.Uint32

	// useCount is bumped on every access and drives eviction's
	// lowest-use-counter tie-break.
	useCount atomic.Uint64

	// rw < 0 means an exclusive writer holds the frame; rw > 0 counts
	// concurrent readers. CAS-driven, never blocking.
	rw atomic.Int32

	// refCount is the number of outstanding pins (borrows currently in
	// flight). A frame is evictable only when this is <= 0 and rw == 0.
	refCount atomic.Int32
}

func newFrame(tag Tag, buf []byte, dirtyOnCreate bool) *Frame {
	f := &Frame{tag: tag, buf: buf}
	if dirtyOnCreate {
		f.flags.Store(uint32(flagNew | flagDirty))
	}
	return f
}

func (f *Frame) Tag() Tag { return f.tag }

func (f *Frame) isNew() bool   { return frameFlags(f.flags.Load())&flagNew != 0 }
func (f *Frame) isDirty() bool { return frameFlags(f.flags.Load())&flagDirty != 0 }

func (f *Frame) markDirty() {
	for {
		old := f.flags.Load()
		if frameFlags(old)&flagDirty != 0 {
			return
		}
		if f.flags.CompareAndSwap(old, old|uint32(flagDirty)) {
			return
		}
	}
}

func (f *Frame) clearNewAndDirty() {
	for {
		old := f.flags.Load()
		next := old &^ uint32(flagNew|flagDirty)
		if f.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// tryAcquireRead attempts to CAS rw from >= 0 to rw+1.
func (f *Frame) tryAcquireRead() bool {
	for {
		cur := f.rw.Load()
		if cur < 0 {
			return false
		}
		if f.rw.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (f *Frame) releaseRead() { f.rw.Add(-1) }

// tryAcquireWrite CAS's rw 0 -> -1.
func (f *Frame) tryAcquireWrite() bool {
	return f.rw.CompareAndSwap(0, -1)
}

func (f *Frame) releaseWrite() { f.rw.Store(0) }

func (f *Frame) pin() int32   { return f.refCount.Add(1) }
func (f *Frame) unpin() int32 { return f.refCount.Add(-1) }

// evictable reports whether the frame can be reclaimed: no outstanding
// external handle and no active reader/writer.
func (f *Frame) evictable() bool {
	return f.refCount.Load() <= 0 && f.rw.Load() == 0
}

// ReadHandle is a pinned, shared-read view of a frame's bytes.
type ReadHandle struct {
	frame *Frame
	pool  *BufferPool
}

// Bytes returns the frame's page buffer. It must not be retained past
// Release.
func (h *ReadHandle) Bytes() []byte { return h.frame.buf }

func (h *ReadHandle) Tag() Tag { return h.frame.tag }

// Release drops the read lock and unpins the frame.
func (h *ReadHandle) Release() {
	h.frame.releaseRead()
	h.pool.unpin(h.frame)
}

// WriteHandle is a pinned, exclusive-write view of a frame's bytes.
type WriteHandle struct {
	frame *Frame
	pool  *BufferPool
	dry   bool
}

// Bytes returns the mutable frame buffer.
func (h *WriteHandle) Bytes() []byte { return h.frame.buf }

func (h *WriteHandle) Tag() Tag { return h.frame.tag }

// Release drops the write lock, marking the frame dirty unless the
// handle was acquired dry.
func (h *WriteHandle) Release() {
	if !h.dry {
		h.frame.markDirty()
	}
	h.frame.releaseWrite()
	h.pool.unpin(h.frame)
}
