package pager

import (
	"sync"

	"github.com/corta-db/jardb/filestore"
)

// StressSink is the companion file pages are discharged to when the
// buffer pool is under memory pressure but the pages aren't yet
// durable. A tag is resident in memory XOR present in the sink XOR
// absent: discharge/retrieve toggles that state.
type StressSink struct {
	mu       sync.Mutex
	handle   filestore.Handle
	pageSize uint32

	slots    map[Tag]uint64 // tag -> slot index
	freeSlot []uint64       // reusable slot indices
	nextSlot uint64
}

const stressFlagDirty = 1

// OpenStressSink opens (creating if needed) the sink file for pageSize
// pages.
func OpenStressSink(store filestore.Store, path string, pageSize uint32) (*StressSink, error) {
	h, err := store.Open(path, filestore.OpenOptions{Create: true, Read: true, Write: true})
	if err != nil {
		return nil, err
	}
	return &StressSink{handle: h, pageSize: pageSize, slots: make(map[Tag]uint64)}, nil
}

func (s *StressSink) slotSize() int64 { return int64(s.pageSize) + 1 }

// discharge appends or reuses a slot, writing the dirty flag byte then
// the page bytes, and records tag -> slot.
func (s *StressSink) discharge(tag Tag, buf []byte, dirty bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var slot uint64
	if n := len(s.freeSlot); n > 0 {
		slot = s.freeSlot[n-1]
		s.freeSlot = s.freeSlot[:n-1]
	} else {
		slot = s.nextSlot
		s.nextSlot++
	}

	flag := byte(0)
	if dirty {
		flag = stressFlagDirty
	}

	off := int64(slot) * s.slotSize()
	if _, err := s.handle.WriteAt([]byte{flag}, off); err != nil {
		return err
	}
	if _, err := s.handle.WriteAt(buf, off+1); err != nil {
		return err
	}

	s.slots[tag] = slot
	return nil
}

// retrieve reads the slot for tag back into buf, restores the dirty
// flag, and frees the slot. Returns whether the page was dirty.
func (s *StressSink) retrieve(tag Tag, buf []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[tag]
	if !ok {
		return false, nil
	}

	off := int64(slot) * s.slotSize()
	flagBuf := make([]byte, 1)
	if _, err := s.handle.ReadAt(flagBuf, off); err != nil {
		return false, err
	}
	if _, err := s.handle.ReadAt(buf, off+1); err != nil {
		return false, err
	}

	delete(s.slots, tag)
	s.freeSlot = append(s.freeSlot, slot)

	return flagBuf[0]&stressFlagDirty != 0, nil
}

// contains reports whether tag currently holds a slot in the sink.
func (s *StressSink) contains(tag Tag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.slots[tag]
	return ok
}

// Close releases the sink's file handle.
func (s *StressSink) Close() error {
	return s.handle.Close()
}
