package pager

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/corta-db/jardb/filestore"
	"github.com/corta-db/jardb/jarerrors"
)

// journalHeaderSize is the 16-byte journal header: page size (u64),
// logged page count (u64).
const journalHeaderSize = 16

// journalPagerHeaderOffset is where the pager header image sits in the
// journal, right after the journal's own header.
const journalPagerHeaderOffset = journalHeaderSize

const journalRecordsOffset = journalPagerHeaderOffset + HeaderSize

// journalRecord is one (PageId, page bytes) entry.
type journalRecord struct {
	id   PageId
	data []byte
}

func writeJournal(h filestore.Handle, pageSize uint32, header Header, records []journalRecord) error {
	hdrBuf := make([]byte, journalHeaderSize)
	binary.LittleEndian.PutUint64(hdrBuf[0:8], uint64(pageSize))
	binary.LittleEndian.PutUint64(hdrBuf[8:16], uint64(len(records)))
	if _, err := h.WriteAt(hdrBuf, 0); err != nil {
		return err
	}

	pagerHdrBuf := make([]byte, HeaderSize)
	encodeHeader(header, pagerHdrBuf)
	if _, err := h.WriteAt(pagerHdrBuf, journalPagerHeaderOffset); err != nil {
		return err
	}

	recordSize := journalRecordSize(uint64(pageSize))
	off := int64(journalRecordsOffset)
	for _, r := range records {
		buf := make([]byte, recordSize)
		binary.LittleEndian.PutUint64(buf[0:8], uint64(r.id))
		copy(buf[8:8+int64(pageSize)], r.data)
		checksum := crc32.ChecksumIEEE(buf[0 : 8+int64(pageSize)])
		binary.LittleEndian.PutUint32(buf[8+int64(pageSize):], checksum)
		if _, err := h.WriteAt(buf, off); err != nil {
			return err
		}
		off += recordSize
	}

	return h.Sync()
}

// journalRecordSize is the on-disk size of one (PageId, page bytes,
// CRC32) journal record: 8-byte id, pageSize page bytes, 4-byte
// checksum over both, mirroring the teacher's wal.go record trailer.
func journalRecordSize(pageSize uint64) int64 { return 8 + int64(pageSize) + 4 }

// readJournal parses a journal file back into its pager header image
// and record list.
func readJournal(h filestore.Handle) (Header, []journalRecord, error) {
	hdrBuf := make([]byte, journalHeaderSize)
	if _, err := h.ReadAt(hdrBuf, 0); err != nil {
		return Header{}, nil, err
	}
	pageSize := binary.LittleEndian.Uint64(hdrBuf[0:8])
	count := binary.LittleEndian.Uint64(hdrBuf[8:16])

	pagerHdrBuf := make([]byte, HeaderSize)
	if _, err := h.ReadAt(pagerHdrBuf, journalPagerHeaderOffset); err != nil {
		return Header{}, nil, err
	}
	header, err := decodeHeader(pagerHdrBuf)
	if err != nil {
		return Header{}, nil, err
	}

	records := make([]journalRecord, 0, count)
	recordSize := journalRecordSize(pageSize)
	off := int64(journalRecordsOffset)
	for i := uint64(0); i < count; i++ {
		buf := make([]byte, recordSize)
		if _, err := h.ReadAt(buf, off); err != nil {
			return Header{}, nil, err
		}
		want := binary.LittleEndian.Uint32(buf[8+int64(pageSize):])
		got := crc32.ChecksumIEEE(buf[0 : 8+int64(pageSize)])
		if want != got {
			return Header{}, nil, jarerrors.ErrJournalCorrupt
		}
		id := PageId(binary.LittleEndian.Uint64(buf[0:8]))
		data := make([]byte, pageSize)
		copy(data, buf[8:8+int64(pageSize)])
		records = append(records, journalRecord{id: id, data: data})
		off += recordSize
	}

	return header, records, nil
}
