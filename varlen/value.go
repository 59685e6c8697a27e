package varlen

import "github.com/corta-db/jardb/pager"

// Value is a handle to a Var already written into region, letting a
// caller choose between materializing the whole byte string or walking
// it piece by piece.
type Value struct {
	p      *pager.Pager
	region []byte
	hdr    Header
}

// Open wraps an already-decoded header over region for reading.
func Open(p *pager.Pager, region []byte, hdr Header) Value {
	return Value{p: p, region: region, hdr: hdr}
}

// Header returns the underlying Var header.
func (v Value) Header() Header { return v.hdr }

// Len returns the value's total byte length.
func (v Value) Len() uint64 { return v.hdr.TotalSize }

// Spilled reports whether any bytes live outside the host page.
func (v Value) Spilled() bool { return v.hdr.HasSpilled() }

// Bytes materializes the full value.
func (v Value) Bytes() ([]byte, error) { return Read(v.p, v.region, v.hdr) }

// Chunks iterates the value's bytes without materializing them into a
// single allocation; see Chunks for semantics.
func (v Value) Chunks(yield func([]byte) bool) error {
	return Chunks(v.p, v.region, v.hdr, yield)
}
