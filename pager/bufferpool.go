package pager

import (
	"sync"

	"github.com/corta-db/jardb/jarerrors"
)

// BufferPool holds up to a fixed number of bytes of page frames in
// memory, indexed by Tag, and is the sole source of truth for page
// contents between commits.
//
// The index itself is a sync.Map so lookups never block each other;
// allocation (which may need to scan for an eviction candidate and
// then insert) is the one operation serialized behind allocMu.
type BufferPool struct {
	frames   sync.Map // Tag -> *Frame
	pageSize uint32
	capacity int // max resident frames

	allocMu  sync.Mutex
	resident int // protected by allocMu

	stress *StressSink
}

// NewBufferPool creates a pool holding at most capacityBytes worth of
// pageSize frames (at least one frame).
func NewBufferPool(pageSize uint32, capacityBytes int64, stress *StressSink) *BufferPool {
	capacity := int(capacityBytes / int64(pageSize))
	if capacity < 1 {
		capacity = 1
	}
	return &BufferPool{pageSize: pageSize, capacity: capacity, stress: stress}
}

// allocateFrame installs a brand-new frame for tag, pinned and marked
// new+dirty. It fails with ErrPageAlreadyCached if tag is already
// resident, and otherwise evicts to make room when the pool is full.
func (p *BufferPool) allocateFrame(tag Tag) (*Frame, error) {
	p.allocMu.Lock()
	defer p.allocMu.Unlock()

	if _, ok := p.frames.Load(tag); ok {
		return nil, jarerrors.ErrPageAlreadyCached
	}

	if p.resident >= p.capacity {
		if err := p.evictLocked(); err != nil {
			return nil, err
		}
	}

	frame := newFrame(tag, make([]byte, p.pageSize), true)
	frame.pin()
	p.frames.Store(tag, frame)
	p.resident++
	return frame, nil
}

// reuseFrame re-pins and reinitializes an already-resident frame so it
// can serve as a brand-new page, without going through allocateFrame's
// already-cached rejection. This is for NewPage recycling a freelist
// tag that DeletePage left resident (DeletePage unpins but never
// evicts). Returns (nil, nil) if tag is not currently resident, so the
// caller falls back to allocateFrame.
func (p *BufferPool) reuseFrame(tag Tag) (*Frame, error) {
	p.allocMu.Lock()
	defer p.allocMu.Unlock()

	v, ok := p.frames.Load(tag)
	if !ok {
		return nil, nil
	}
	f := v.(*Frame)
	clear(f.buf)
	f.flags.Store(uint32(flagNew | flagDirty))
	f.pin()
	return f, nil
}

// tryGet returns a pinned frame if tag is resident in memory, loading
// it transparently from the stress sink if it was evicted there.
// Returns (nil, nil) if the tag is absent from both.
func (p *BufferPool) tryGet(tag Tag) (*Frame, error) {
	if v, ok := p.frames.Load(tag); ok {
		f := v.(*Frame)
		f.pin()
		f.useCount.Add(1)
		return f, nil
	}

	if p.stress == nil || !p.stress.contains(tag) {
		return nil, nil
	}

	p.allocMu.Lock()
	defer p.allocMu.Unlock()

	// Re-check after acquiring the lock: another goroutine may have
	// already reloaded this tag while we waited.
	if v, ok := p.frames.Load(tag); ok {
		f := v.(*Frame)
		f.pin()
		f.useCount.Add(1)
		return f, nil
	}

	if p.resident >= p.capacity {
		if err := p.evictLocked(); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, p.pageSize)
	dirty, err := p.stress.retrieve(tag, buf)
	if err != nil {
		return nil, err
	}

	frame := newFrame(tag, buf, false)
	if dirty {
		frame.markDirty()
	}
	frame.pin()
	p.frames.Store(tag, frame)
	p.resident++
	return frame, nil
}

// insertLoaded installs a frame whose bytes were just read from the
// main file by the pager on a cache miss. Used only by Pager.load.
func (p *BufferPool) insertLoaded(tag Tag, buf []byte) (*Frame, error) {
	p.allocMu.Lock()
	defer p.allocMu.Unlock()

	if v, ok := p.frames.Load(tag); ok {
		f := v.(*Frame)
		f.pin()
		f.useCount.Add(1)
		return f, nil
	}

	if p.resident >= p.capacity {
		if err := p.evictLocked(); err != nil {
			return nil, err
		}
	}

	frame := newFrame(tag, buf, false)
	frame.pin()
	p.frames.Store(tag, frame)
	p.resident++
	return frame, nil
}

// evictLocked picks a victim frame (clean frames preferred, breaking
// ties by lowest use count) and reclaims it, discharging a dirty
// victim to the stress sink first. Caller must hold allocMu.
func (p *BufferPool) evictLocked() error {
	var cleanCandidate, dirtyCandidate *Frame

	p.frames.Range(func(_, v any) bool {
		f := v.(*Frame)
		if !f.evictable() {
			return true
		}
		if !f.isDirty() {
			if cleanCandidate == nil || f.useCount.Load() < cleanCandidate.useCount.Load() {
				cleanCandidate = f
			}
			return true
		}
		if dirtyCandidate == nil || f.useCount.Load() < dirtyCandidate.useCount.Load() {
			dirtyCandidate = f
		}
		return true
	})

	if cleanCandidate != nil {
		p.frames.Delete(cleanCandidate.tag)
		p.resident--
		return nil
	}

	if dirtyCandidate == nil {
		return jarerrors.ErrBufferFull
	}

	if p.stress == nil {
		return jarerrors.ErrBufferFull
	}
	if err := p.stress.discharge(dirtyCandidate.tag, dirtyCandidate.buf, dirtyCandidate.isDirty()); err != nil {
		return err
	}
	p.frames.Delete(dirtyCandidate.tag)
	p.resident--
	return nil
}

// unpin releases a reference taken by tryGet/allocateFrame/insertLoaded.
func (p *BufferPool) unpin(f *Frame) {
	f.unpin()
}

// borrowShared acquires a read handle on tag, resolving it through
// try_get first. Fails with ErrPageNotCached if absent, or
// ErrPageCurrentlyBorrowed if a writer is active.
func (p *BufferPool) borrowShared(tag Tag) (*ReadHandle, error) {
	f, err := p.tryGet(tag)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, jarerrors.ErrPageNotCached
	}
	if !f.tryAcquireRead() {
		p.unpin(f)
		return nil, jarerrors.ErrPageCurrentlyBorrowed
	}
	return &ReadHandle{frame: f, pool: p}, nil
}

// borrowExclusive acquires a write handle on tag. When dry is true the
// frame is not marked dirty on release (used for loads that only need
// an exclusive view to initialize, not to persist).
func (p *BufferPool) borrowExclusive(tag Tag, dry bool) (*WriteHandle, error) {
	f, err := p.tryGet(tag)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, jarerrors.ErrPageNotCached
	}
	if !f.tryAcquireWrite() {
		p.unpin(f)
		return nil, jarerrors.ErrPageCurrentlyBorrowed
	}
	return &WriteHandle{frame: f, pool: p, dry: dry}, nil
}

// iterDirty calls fn for every currently dirty frame, stopping early if
// fn returns false.
func (p *BufferPool) iterDirty(fn func(*Frame) bool) {
	p.frames.Range(func(_, v any) bool {
		f := v.(*Frame)
		if f.isDirty() {
			return fn(f)
		}
		return true
	})
}
