package qpack

// Instruction is one encoder-stream instruction. Implementations encode
// themselves in the exact bit-exact wire forms of RFC 9204 §4.3.
type Instruction interface {
	// appendTo serializes the instruction onto buf and returns the result.
	appendTo(buf []byte) []byte
}

// InstructionHandler receives a batch of pending encoder-stream
// instructions. It must serialize and write them to the encoder stream,
// in order, and must not reenter the Encoder from within the call.
type InstructionHandler interface {
	OnInstructions(instructions []Instruction) error
}

// InstructionHandlerFunc adapts a function to an InstructionHandler.
type InstructionHandlerFunc func(instructions []Instruction) error

func (f InstructionHandlerFunc) OnInstructions(instructions []Instruction) error {
	return f(instructions)
}

// SetCapacityInstruction sets the dynamic table capacity: `001xxxxx`.
type SetCapacityInstruction struct {
	Capacity uint64
}

func (i *SetCapacityInstruction) appendTo(buf []byte) []byte {
	return appendVarint(buf, 5, 0x20, i.Capacity)
}

// InsertWithNameReferenceInstruction inserts an entry whose name is
// already indexed, with a literal value: `1Txxxxxx`. Index is absolute
// when Dynamic is false (the static table never shifts) and relative to
// the insert count at the time of this instruction when Dynamic is true,
// per RFC 9204 §4.3.3's encoder-stream relative indexing (entry 0 is the
// most recently inserted).
type InsertWithNameReferenceInstruction struct {
	Dynamic bool // T bit: true references the dynamic table, false the static table
	Index   uint64
	Huffman bool
	Value   string
}

func (i *InsertWithNameReferenceInstruction) appendTo(buf []byte) []byte {
	first := byte(0x80)
	if !i.Dynamic {
		first |= 0x40
	}
	buf = appendVarint(buf, 6, first, i.Index)
	return appendString(buf, 7, 0, 0x80, i.Value, i.Huffman)
}

// InsertWithLiteralNameInstruction inserts an entry with both a literal
// name and a literal value: `01Hxxxxx`.
type InsertWithLiteralNameInstruction struct {
	Field   HeaderField
	Huffman bool
}

func (i *InsertWithLiteralNameInstruction) appendTo(buf []byte) []byte {
	buf = appendString(buf, 5, 0x40, 0x20, i.Field.Name, i.Huffman)
	return appendString(buf, 7, 0, 0x80, i.Field.Value, i.Huffman)
}

// DuplicateInstruction duplicates an existing dynamic entry: `000xxxxx`.
// Index is relative to the insert count at the time of this instruction
// (RFC 9204 §4.3.4), not the entry's absolute dynamic-table index.
type DuplicateInstruction struct {
	Index uint64
}

func (i *DuplicateInstruction) appendTo(buf []byte) []byte {
	return appendVarint(buf, 5, 0x00, i.Index)
}
