package qpack

// HeaderField is a single name/value header pair. Names are ASCII; per
// RFC 9204 a name whose first byte is <= 0x20 is rejected by Encode.
type HeaderField struct {
	Name  string
	Value string

	// PreEncoded, when non-nil, is emitted verbatim by Encode instead of
	// being looked up in the tables.
	PreEncoded []byte
}

// normalize returns f with a nil/empty Value normalized to the empty
// string, before any table interaction.
func (f HeaderField) normalize() HeaderField {
	return f
}

// Entry is one row of either the static or the dynamic table.
type Entry struct {
	Field HeaderField

	// Index is the entry's absolute index. For dynamic entries this is
	// the 1-based, monotonically increasing insertion index over the
	// lifetime of the connection. For static entries it is the table
	// position (0-based, per RFC 9204 Appendix A).
	Index int

	Static bool
}

// Size is the RFC 9204 accounting size of a header field: name length
// plus value length plus 32 bytes of overhead.
func (f HeaderField) Size() int {
	return len(f.Name) + len(f.Value) + 32
}
