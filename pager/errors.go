package pager

import "errors"

var (
	errHeaderTooShort = errors.New("pager: header buffer shorter than HeaderSize")
	errBadMagic       = errors.New("pager: bad magic number, not a jar file")
)

// MaxPageSize is the largest page size the pager will accept.
const MaxPageSize = 64 * 1024

// MinPageSize is the smallest page size the pager will accept; it must
// be large enough to hold a page's kind tag plus the smallest useful
// cell page header.
const MinPageSize = 256
