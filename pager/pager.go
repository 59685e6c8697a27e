package pager

import (
	"fmt"
	"sync"

	"github.com/corta-db/jardb/filestore"
	"github.com/corta-db/jardb/jarerrors"
)

// Config configures a Pager.
type Config struct {
	// Path is the main data file.
	Path string
	// PageSize is the size of every page; defaults to 4096, must be
	// between MinPageSize and MaxPageSize.
	PageSize uint32
	// CacheBytes bounds the buffer pool's resident set.
	CacheBytes int64
}

// DefaultConfig returns sensible defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		PageSize:   4096,
		CacheBytes: 64 * 1024 * 1024,
	}
}

// Pager maps logical PageIds to file offsets, manages the freelist,
// maintains the global page count, and provides crash-atomic commit.
type Pager struct {
	store filestore.Store
	main  filestore.Handle

	jar JarId

	journalPath string
	stressPath  string

	headerMu sync.RWMutex
	header   Header

	pool   *BufferPool
	stress *StressSink

	pageSize uint32
}

// Open opens or creates the jar at cfg.Path on store, replaying any
// pending journal first.
func Open(store filestore.Store, cfg Config) (*Pager, error) {
	if cfg.PageSize == 0 {
		cfg.PageSize = 4096
	}
	if cfg.PageSize < MinPageSize || cfg.PageSize > MaxPageSize {
		return nil, fmt.Errorf("pager: page size %d out of range [%d, %d]", cfg.PageSize, MinPageSize, MaxPageSize)
	}

	journalPath := cfg.Path + ".journal"
	stressPath := cfg.Path + ".stress"

	existed := store.Exists(cfg.Path)

	main, err := store.Open(cfg.Path, filestore.OpenOptions{Create: true, Read: true, Write: true})
	if err != nil {
		return nil, err
	}

	p := &Pager{
		store:       store,
		main:        main,
		jar:         NewJarId(),
		journalPath: journalPath,
		stressPath:  stressPath,
		pageSize:    cfg.PageSize,
	}

	if store.Exists(journalPath) {
		if err := p.recover(); err != nil {
			main.Close()
			return nil, err
		}
	}

	if existed {
		hdr, err := p.readHeaderFromMain()
		if err != nil {
			main.Close()
			return nil, err
		}
		p.header = hdr
		p.pageSize = hdr.PageSize
	} else {
		p.header = newHeader(cfg.PageSize)
		if err := p.writeHeaderToMain(p.header); err != nil {
			main.Close()
			return nil, err
		}
	}

	stress, err := OpenStressSink(store, stressPath, p.pageSize)
	if err != nil {
		main.Close()
		return nil, err
	}
	p.stress = stress
	p.pool = NewBufferPool(p.pageSize, cfg.CacheBytes, stress)

	return p, nil
}

func (p *Pager) readHeaderFromMain() (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := p.main.ReadAt(buf, 0); err != nil {
		return Header{}, err
	}
	return decodeHeader(buf)
}

func (p *Pager) writeHeaderToMain(h Header) error {
	buf := make([]byte, HeaderSize)
	encodeHeader(h, buf)
	_, err := p.main.WriteAt(buf, 0)
	return err
}

// recover replays a pending journal: re-apply the journaled pager
// header and every (PageId, bytes) record, then delete the journal.
func (p *Pager) recover() error {
	jh, err := p.store.Open(p.journalPath, filestore.OpenOptions{Read: true})
	if err != nil {
		return err
	}
	defer jh.Close()

	header, records, err := readJournal(jh)
	if err != nil {
		return err
	}

	if err := p.writeHeaderToMain(header); err != nil {
		return err
	}
	for _, r := range records {
		off := p.offsetFor(r.id)
		if _, err := p.main.WriteAt(r.data, off); err != nil {
			return err
		}
	}
	if err := p.main.Sync(); err != nil {
		return err
	}

	return p.store.Delete(p.journalPath)
}

// offsetFor computes the file offset of page id.
func (p *Pager) offsetFor(id PageId) int64 {
	return int64(HeaderSize) + (int64(id)-1)*int64(p.pageSize)
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() uint32 { return p.pageSize }

// Len returns the current page count (the high-water mark).
func (p *Pager) Len() uint64 {
	p.headerMu.RLock()
	defer p.headerMu.RUnlock()
	return p.header.PageCount
}

func (p *Pager) tag(id PageId) Tag { return Tag{Jar: p.jar, Page: id} }

// TagFor builds the Tag identifying page id within this jar.
func (p *Pager) TagFor(id PageId) Tag { return p.tag(id) }

// JarId returns this pager's jar identity.
func (p *Pager) JarId() JarId { return p.jar }

// NewPage allocates a page: pops the freelist if non-empty, else
// bumps the page count. Returns a write handle to the fresh, pinned
// frame (marked dirty at commit time).
func (p *Pager) NewPage() (Tag, *WriteHandle, error) {
	p.headerMu.Lock()
	var id PageId
	if head, ok := p.header.FreeListHead(); ok {
		id = head

		headTag := p.tag(head)
		resident, err := p.pool.tryGet(headTag)
		if err != nil {
			p.headerMu.Unlock()
			return Tag{}, nil, err
		}
		var nextBuf []byte
		if resident != nil {
			nextBuf = append([]byte(nil), resident.buf...)
			p.pool.unpin(resident)
		} else {
			nextBuf = make([]byte, p.pageSize)
			if _, err := p.main.ReadAt(nextBuf, p.offsetFor(head)); err != nil {
				p.headerMu.Unlock()
				return Tag{}, nil, err
			}
		}
		p.header.SetFreeListHead(readFreeNext(nextBuf))
	} else {
		p.header.PageCount++
		id = PageId(p.header.PageCount)
	}
	p.headerMu.Unlock()

	tag := p.tag(id)

	// A recycled tag may still be resident: DeletePage unpins its frame
	// but never evicts it. Reuse that frame rather than going through
	// allocateFrame, which would reject it as already cached.
	frame, err := p.pool.reuseFrame(tag)
	if err != nil {
		return Tag{}, nil, err
	}
	if frame == nil {
		frame, err = p.pool.allocateFrame(tag)
		if err != nil {
			return Tag{}, nil, err
		}
	}
	if !frame.tryAcquireWrite() {
		// unreachable: a freshly allocated/reused frame always starts unlocked
		p.pool.unpin(frame)
		return Tag{}, nil, jarerrors.ErrPageCurrentlyBorrowed
	}
	return tag, &WriteHandle{frame: frame, pool: p.pool}, nil
}

// DeletePage rewrites tag as a Free page threaded onto the freelist
// head, then updates the head. Requires no outstanding borrows.
func (p *Pager) DeletePage(tag Tag) error {
	frame, err := p.load(tag)
	if err != nil {
		return err
	}
	defer p.pool.unpin(frame)

	if !frame.tryAcquireWrite() {
		return jarerrors.ErrPageCurrentlyBorrowed
	}
	defer frame.releaseWrite()

	p.headerMu.Lock()
	head, _ := p.header.FreeListHead()
	writeFreePage(frame.buf, head)
	p.header.SetFreeListHead(tag.Page)
	p.headerMu.Unlock()

	frame.markDirty()
	return nil
}

// load resolves tag through the buffer pool, reading from the main
// file on a miss.
func (p *Pager) load(tag Tag) (*Frame, error) {
	frame, err := p.pool.tryGet(tag)
	if err != nil {
		return nil, err
	}
	if frame != nil {
		return frame, nil
	}

	p.headerMu.RLock()
	count := p.header.PageCount
	p.headerMu.RUnlock()
	if uint64(tag.Page) == 0 || uint64(tag.Page) > count {
		return nil, &jarerrors.UnexistingPage{Tag: tag}
	}

	buf := make([]byte, p.pageSize)
	if _, err := p.main.ReadAt(buf, p.offsetFor(tag.Page)); err != nil {
		return nil, &jarerrors.PageLoadingFailed{Tag: tag, Source: err}
	}

	return p.pool.insertLoaded(tag, buf)
}

// BorrowShared resolves tag and returns a shared-read handle.
func (p *Pager) BorrowShared(tag Tag) (*ReadHandle, error) {
	frame, err := p.load(tag)
	if err != nil {
		return nil, err
	}
	if !frame.tryAcquireRead() {
		p.pool.unpin(frame)
		return nil, jarerrors.ErrPageCurrentlyBorrowed
	}
	return &ReadHandle{frame: frame, pool: p.pool}, nil
}

// BorrowExclusive resolves tag and returns an exclusive-write handle.
func (p *Pager) BorrowExclusive(tag Tag) (*WriteHandle, error) {
	frame, err := p.load(tag)
	if err != nil {
		return nil, err
	}
	if !frame.tryAcquireWrite() {
		p.pool.unpin(frame)
		return nil, jarerrors.ErrPageCurrentlyBorrowed
	}
	return &WriteHandle{frame: frame, pool: p.pool}, nil
}

// Commit journals originals of dirty, non-new pages and the current
// header, then applies all changes to the main file.
func (p *Pager) Commit() error {
	p.headerMu.Lock()
	defer p.headerMu.Unlock()

	var dirty []*Frame
	p.pool.iterDirty(func(f *Frame) bool {
		dirty = append(dirty, f)
		return true
	})

	jh, err := p.store.Open(p.journalPath, filestore.OpenOptions{Create: true, Read: true, Write: true})
	if err != nil {
		return err
	}

	var records []journalRecord
	for _, f := range dirty {
		if f.isNew() {
			continue
		}
		scratch := make([]byte, p.pageSize)
		if _, err := p.main.ReadAt(scratch, p.offsetFor(f.tag.Page)); err != nil {
			jh.Close()
			return err
		}
		records = append(records, journalRecord{id: f.tag.Page, data: scratch})
	}

	if err := writeJournal(jh, p.pageSize, p.header, records); err != nil {
		jh.Close()
		return err
	}
	if err := jh.Close(); err != nil {
		return err
	}

	for _, f := range dirty {
		if _, err := p.main.WriteAt(f.buf, p.offsetFor(f.tag.Page)); err != nil {
			return p.rollback()
		}
		f.clearNewAndDirty()
	}

	if err := p.writeHeaderToMain(p.header); err != nil {
		return p.rollback()
	}
	if err := p.main.Sync(); err != nil {
		return p.rollback()
	}

	return p.store.Delete(p.journalPath)
}

// rollback re-applies the journaled header/records and discards the
// journal, restoring pre-commit on-disk state.
func (p *Pager) rollback() error {
	jh, err := p.store.Open(p.journalPath, filestore.OpenOptions{Read: true})
	if err != nil {
		return err
	}
	defer jh.Close()

	header, records, err := readJournal(jh)
	if err != nil {
		return err
	}
	if err := p.writeHeaderToMain(header); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := p.main.WriteAt(r.data, p.offsetFor(r.id)); err != nil {
			return err
		}
	}
	if err := p.main.Sync(); err != nil {
		return err
	}
	return p.store.Delete(p.journalPath)
}

// Close releases the pager's file handles. Pending dirty pages are not
// implicitly committed; call Commit first.
func (p *Pager) Close() error {
	if p.stress != nil {
		if err := p.stress.Close(); err != nil {
			return err
		}
	}
	return p.main.Close()
}
