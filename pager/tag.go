package pager

import (
	"fmt"

	"github.com/google/uuid"
)

// PageId identifies a page within a single jar (pager instance). Page 0
// is reserved; ids are handed out from 1 upward.
type PageId uint64

func (id PageId) String() string { return fmt.Sprintf("#%d", uint64(id)) }

// JarId identifies a logical pager instance. Using a uuid rather than a
// small integer lets a single buffer pool index frames from more than
// one open jar without collision.
type JarId = uuid.UUID

// NewJarId mints a fresh jar identity.
func NewJarId() JarId { return uuid.New() }

// Tag is the composite identifier carried through the buffer pool: a
// PageId is only meaningful relative to the jar that allocated it.
type Tag struct {
	Jar  JarId
	Page PageId
}

func (t Tag) String() string {
	return fmt.Sprintf("%s/%s", t.Jar.String(), t.Page)
}
