package qpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	batches [][]Instruction
}

func (h *recordingHandler) OnInstructions(instructions []Instruction) error {
	batch := make([]Instruction, len(instructions))
	copy(batch, instructions)
	h.batches = append(h.batches, batch)
	return nil
}

func (h *recordingHandler) total() int {
	n := 0
	for _, b := range h.batches {
		n += len(b)
	}
	return n
}

// Encoding an all-static-table header set must emit no encoder-stream
// instructions and a zeroed section prefix.
func TestEncodeStaticOnly(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 10})
	require.NoError(t, enc.SetCapacity(0))
	h.batches = nil // SetCapacity(0) itself queues an instruction; reset for the encode-only assertion

	buf, err := enc.Encode(nil, 0, []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "x"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, h.total(), "static-only encode must not touch the encoder stream")
	require.True(t, len(buf) >= 2)
	assert.Equal(t, byte(0x00), buf[0], "encoded insert count must be zero")
	assert.Equal(t, byte(0x00), buf[1], "sign bit clear and delta_base zero")
}

// An opportunistic Insert followed by encoding the same header twice on
// one stream emits exactly one Insert-With-Literal-Name instruction and
// references the single resulting dynamic entry twice.
func TestEncodeDuplicateReference(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 10})
	require.NoError(t, enc.SetCapacity(1024))
	h.batches = nil

	ok, err := enc.Insert(HeaderField{Name: "custom", Value: "value"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, h.total())
	_, isLiteral := h.batches[0][0].(*InsertWithLiteralNameInstruction)
	assert.True(t, isLiteral)

	section := h.batches[0] // keep reference alive for readability
	_ = section

	buf, err := enc.Encode(nil, 0, []HeaderField{
		{Name: "custom", Value: "value"},
		{Name: "custom", Value: "value"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, h.total(), "no new instruction should be emitted for an exact dynamic match")
	assert.NotEmpty(t, buf)

	si := enc.streams[0]
	require.NotNil(t, si)
	require.Len(t, si.sections, 1)
	assert.Equal(t, 1, si.sections[0].requiredInsertCount)
}

// Once the blocked-streams budget is exhausted, a later stream must
// fall back to a non-referencing encoding instead of blocking further.
func TestEncodeBlockingBudget(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 1})
	require.NoError(t, enc.SetCapacity(1024))

	_, err := enc.Encode(nil, 0, []HeaderField{{Name: "a", Value: "1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, enc.blockedStreams)

	si0 := enc.streams[0]
	require.NotNil(t, si0)
	assert.True(t, si0.isBlocked())

	_, err = enc.Encode(nil, 4, []HeaderField{{Name: "a", Value: "1"}})
	require.NoError(t, err)

	// Stream 4 must not have been allowed to block: the budget was
	// already spent by stream 0.
	assert.Equal(t, 1, enc.blockedStreams)
	si4 := enc.streams[4]
	require.NotNil(t, si4)
	assert.False(t, si4.isBlocked())
}

// A SectionAcknowledgement for a blocking stream advances
// knownInsertCount, frees the blocked-stream budget, and drops the
// stream's bookkeeping once its section queue empties.
func TestSectionAcknowledgementUnblocks(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 1})
	require.NoError(t, enc.SetCapacity(1024))

	_, err := enc.Encode(nil, 0, []HeaderField{{Name: "a", Value: "1"}})
	require.NoError(t, err)
	require.Equal(t, 1, enc.blockedStreams)

	require.NoError(t, enc.sectionAcknowledgement(0))

	assert.Equal(t, 1, enc.knownInsertCount)
	assert.Equal(t, 0, enc.blockedStreams)
	_, stillTracked := enc.streams[0]
	assert.False(t, stillTracked)
}

func TestParseInstructionBufferSectionAck(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 1})
	require.NoError(t, enc.SetCapacity(1024))
	_, err := enc.Encode(nil, 2, []HeaderField{{Name: "a", Value: "1"}})
	require.NoError(t, err)

	// Section Acknowledgement for stream 2: 1xxxxxxx, 7-bit prefix = 2.
	require.NoError(t, enc.ParseInstructionBuffer([]byte{0x80 | 2}))
	assert.Equal(t, 0, enc.blockedStreams)
}

func TestParseInstructionBufferUnknownStreamIsSessionException(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 1})
	err := enc.ParseInstructionBuffer([]byte{0x80 | 9})
	require.Error(t, err)
	var sessErr *SessionException
	require.ErrorAs(t, err, &sessErr)
}

func TestInsertCountIncrementOverflowIsSessionException(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 1})
	require.NoError(t, enc.SetCapacity(1024))

	// Insert Count Increment: 00xxxxxx, 6-bit prefix = 5, but nothing was
	// ever inserted so this must be rejected.
	err := enc.ParseInstructionBuffer([]byte{5})
	require.Error(t, err)
	var sessErr *SessionException
	require.ErrorAs(t, err, &sessErr)
}

func TestEncodeRejectsInvalidHeaderName(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 1})
	_, err := enc.Encode(nil, 0, []HeaderField{{Name: "\x01bad", Value: "x"}})
	require.Error(t, err)
	var streamErr *StreamException
	require.ErrorAs(t, err, &streamErr)
}

// A Duplicate instruction's Index must be relative to the insert count
// at the time of the instruction (RFC 9204 §4.3.4), not the duplicated
// entry's absolute dynamic-table index.
func TestDuplicateInstructionUsesRelativeIndex(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 1})
	require.NoError(t, enc.SetCapacity(1024))

	// Consume the single blocked-streams budget slot with an unrelated
	// stream, so the exact-match reference below cannot block and must
	// fall through to step 3 (Duplicate) instead of referencing directly.
	_, err := enc.Encode(nil, 100, []HeaderField{{Name: "filler", Value: "f"}})
	require.NoError(t, err)
	require.Equal(t, 1, enc.blockedStreams)

	// Seed two more entries ahead of the one that will be duplicated, so
	// its absolute index (2) and its eventual relative index diverge.
	_, err = enc.Insert(HeaderField{Name: "first", Value: "1"})
	require.NoError(t, err)
	_, err = enc.Insert(HeaderField{Name: "second", Value: "2"})
	require.NoError(t, err)
	h.batches = nil

	_, err = enc.Encode(nil, 0, []HeaderField{{Name: "first", Value: "1"}})
	require.NoError(t, err)

	require.Equal(t, 1, h.total())
	dup, ok := h.batches[0][0].(*DuplicateInstruction)
	require.True(t, ok, "expected a DuplicateInstruction, got %T", h.batches[0][0])

	// Absolute indices so far: filler=1, first=2, second=3; the Duplicate
	// creates entry 4. Relative to the 3 entries that existed just before
	// it, entry 2 is 1 older than the most recent (3), so its relative
	// index is 1.
	assert.Equal(t, uint64(1), dup.Index)
}

// A name-only match against a dynamic entry must be emitted with an
// encoder-stream-relative index (RFC 9204 §4.3.3), not the entry's
// absolute dynamic-table index.
func TestInsertWithNameReferenceDynamicUsesRelativeIndex(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 10})
	require.NoError(t, enc.SetCapacity(1024))
	h.batches = nil

	_, err := enc.Insert(HeaderField{Name: "custom-name", Value: "old"})
	require.NoError(t, err)
	_, err = enc.Insert(HeaderField{Name: "filler", Value: "x"})
	require.NoError(t, err)
	h.batches = nil

	_, err = enc.Encode(nil, 0, []HeaderField{{Name: "custom-name", Value: "new"}})
	require.NoError(t, err)

	require.Equal(t, 1, h.total())
	ref, ok := h.batches[0][0].(*InsertWithNameReferenceInstruction)
	require.True(t, ok, "expected an InsertWithNameReferenceInstruction, got %T", h.batches[0][0])
	assert.True(t, ref.Dynamic)

	// "custom-name" is absolute index 1; one entry ("filler") was inserted
	// after it before this instruction's own entry (the fresh copy of
	// "custom-name"), so its relative index is 1.
	assert.Equal(t, uint64(1), ref.Index)
}

// A stream with two sections blocking on un-acknowledged dynamic entries
// must decrement blockedStreams exactly once, when the last blocking
// section on the stream clears — never once per blocking section.
func TestBlockedStreamsBudgetSurvivesMultipleBlockingSections(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 1})
	require.NoError(t, enc.SetCapacity(1024))

	_, err := enc.Encode(nil, 0, []HeaderField{{Name: "a", Value: "1"}})
	require.NoError(t, err)
	require.Equal(t, 1, enc.blockedStreams)

	// A second section on the same stream, referencing a second
	// unacknowledged entry: the stream was already blocked, so this must
	// not consume any more of the budget, but must still count as a
	// second blocking section.
	_, err = enc.Encode(nil, 0, []HeaderField{{Name: "b", Value: "2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, enc.blockedStreams)

	si := enc.streams[0]
	require.NotNil(t, si)
	assert.Equal(t, 2, si.blockingSections)

	require.NoError(t, enc.sectionAcknowledgement(0))
	assert.Equal(t, 1, enc.blockedStreams, "the stream is still blocked by its second section; the budget must not free up yet")
	assert.Equal(t, 1, si.blockingSections)

	require.NoError(t, enc.sectionAcknowledgement(0))
	assert.Equal(t, 0, enc.blockedStreams)
}

// SectionAcknowledgement must propagate unblocking to other streams whose
// sections are now covered by the raised knownInsertCount, not just bump
// the counter.
func TestSectionAcknowledgementUnblocksOtherStreams(t *testing.T) {
	h := &recordingHandler{}
	enc := NewEncoder(h, Config{MaxBlockedStreams: 2})
	require.NoError(t, enc.SetCapacity(1024))

	_, err := enc.Encode(nil, 0, []HeaderField{{Name: "a", Value: "1"}})
	require.NoError(t, err)
	_, err = enc.Encode(nil, 4, []HeaderField{{Name: "a", Value: "1"}})
	require.NoError(t, err)
	require.Equal(t, 2, enc.blockedStreams)

	si0 := enc.streams[0]
	si4 := enc.streams[4]
	require.True(t, si0.isBlocked())
	require.True(t, si4.isBlocked())

	// Acknowledging stream 0's section raises knownInsertCount to cover
	// the single dynamic entry both streams reference; stream 4's section
	// must unblock as a side effect, not just stream 0's own bookkeeping.
	require.NoError(t, enc.sectionAcknowledgement(0))

	assert.False(t, si4.isBlocked(), "unrelated stream referencing the same now-acknowledged entry must unblock")
	assert.Equal(t, 0, enc.blockedStreams)
}
