package qpack

import (
	"sync"

	"github.com/kdk8gico/h3qpack/metrics"
	"github.com/rs/zerolog"
)

// entryKind classifies how a field was resolved by the encoding
// algorithm, deferred until the section's base is known so the field
// line can be written with the correct relative index.
type entryKind int

const (
	kindPreEncoded entryKind = iota
	kindReferenced
	kindNameReferenced
	kindLiteral
)

type encodableEntry struct {
	kind       entryKind
	entry      *Entry // set for kindReferenced and kindNameReferenced
	field      HeaderField
	huffman    bool
	preEncoded []byte
}

// Encoder is the RFC 9204 QPACK encoder. It maintains a dynamic header
// table, emits encoder-stream instructions through an InstructionHandler,
// serializes field sections, and processes decoder-stream
// acknowledgements. All exported methods are safe for concurrent use;
// internally they serialize around a single mutex.
type Encoder struct {
	mu sync.Mutex

	table             *DynamicTable
	handler           InstructionHandler
	maxBlockedStreams int
	streams           map[uint64]*StreamInfo
	knownInsertCount  int
	blockedStreams    int
	pending           []Instruction

	metrics         *metrics.Metrics
	insertsObserved int // table insert count last reported to metrics
	log             zerolog.Logger
}

// NewEncoder returns an Encoder with an empty dynamic table. handler
// receives batches of pending instructions; it must not reenter the
// encoder.
func NewEncoder(handler InstructionHandler, cfg Config) *Encoder {
	return &Encoder{
		table:             NewDynamicTable(0),
		handler:           handler,
		maxBlockedStreams: cfg.MaxBlockedStreams,
		streams:           make(map[uint64]*StreamInfo),
		metrics:           cfg.Metrics,
		log:               cfg.logger(),
	}
}

// SetCapacity updates the dynamic table capacity and queues a
// SetCapacity instruction. Fails if an acknowledgement outstanding
// requires more capacity than c would leave (i.e. a referenced entry
// would have to be evicted).
func (e *Encoder) SetCapacity(c uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.table.SetCapacity(c) {
		return newSessionException(ErrCodeEncoderStream, "cannot shrink capacity to %d: referenced entry would be evicted", c)
	}
	e.pending = append(e.pending, &SetCapacityInstruction{Capacity: c})
	e.observeTable()
	return e.flushInstructions()
}

// Insert opportunistically inserts field into the dynamic table, outside
// of any field section, emitting exactly one encoder-stream instruction.
// Returns false without side effects if field must not be indexed or the
// table has no room.
func (e *Encoder) Insert(field HeaderField) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertLocked(field)
}

func (e *Encoder) insertLocked(field HeaderField) (bool, error) {
	if field.Value == "" && field.PreEncoded == nil {
		field = HeaderField{Name: field.Name, Value: ""}
	}

	if !e.shouldIndex(field) || !e.table.CanInsert(field) {
		return false, nil
	}

	// Exact match: duplicate it. We can always reference on insertion
	// since it will always arrive before any eviction.
	if entry, ok := e.lookupExact(field); ok && !entry.Static {
		newEntry := e.table.Add(field)
		if newEntry == nil {
			return false, nil
		}
		e.pending = append(e.pending, &DuplicateInstruction{Index: encoderStreamRelativeIndex(newEntry.Index, entry.Index)})
		e.observeTable()
		return true, e.flushInstructions()
	}

	huffman := e.shouldHuffmanEncode(field)
	if nameEntry, ok := e.lookupName(field.Name); ok {
		newEntry := e.table.Add(field)
		if newEntry == nil {
			return false, nil
		}
		index := uint64(nameEntry.Index)
		if !nameEntry.Static {
			index = encoderStreamRelativeIndex(newEntry.Index, nameEntry.Index)
		}
		e.pending = append(e.pending, &InsertWithNameReferenceInstruction{
			Dynamic: !nameEntry.Static,
			Index:   index,
			Huffman: huffman,
			Value:   field.Value,
		})
		e.observeTable()
		return true, e.flushInstructions()
	}

	newEntry := e.table.Add(field)
	if newEntry == nil {
		return false, nil
	}
	e.pending = append(e.pending, &InsertWithLiteralNameInstruction{Field: field, Huffman: huffman})
	e.observeTable()
	return true, e.flushInstructions()
}

func (e *Encoder) lookupExact(f HeaderField) (Entry, bool) {
	if entry, ok := staticLookupExact(f); ok {
		return entry, true
	}
	if entry, ok := e.table.LookupExact(f); ok {
		return *entry, true
	}
	return Entry{}, false
}

func (e *Encoder) lookupName(name string) (Entry, bool) {
	if entry, ok := staticLookupName(name); ok {
		return entry, true
	}
	if entry, ok := e.table.LookupName(name); ok {
		return *entry, true
	}
	return Entry{}, false
}

// Encode serializes a complete field section (prefix plus field lines)
// for streamID into buf, returning the extended slice. It allocates or
// fetches the StreamInfo for streamID, appends a fresh SectionInfo, and
// registers any dynamic references consumed.
func (e *Encoder) Encode(buf []byte, streamID uint64, fields []HeaderField) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, f := range fields {
		if len(f.Name) == 0 || f.Name[0] <= 0x20 {
			return buf, newStreamException(ErrCodeGeneralProtocol, "invalid header name: %q", f.Name)
		}
	}

	streamInfo, ok := e.streams[streamID]
	if !ok {
		streamInfo = newStreamInfo(streamID)
		e.streams[streamID] = streamInfo
	}
	section := streamInfo.addSection()

	entries := make([]encodableEntry, 0, len(fields))
	for _, f := range fields {
		entries = append(entries, e.encodeField(streamInfo, section, f))
	}

	base := e.table.Base()
	encodedInsertCount := encodeInsertCount(section.requiredInsertCount, e.table.Capacity())
	signBit := base < section.requiredInsertCount
	var deltaBase uint64
	if signBit {
		deltaBase = uint64(section.requiredInsertCount - base - 1)
	} else {
		deltaBase = uint64(base - section.requiredInsertCount)
	}

	buf = appendVarint(buf, 8, 0, uint64(encodedInsertCount))
	signByte := byte(0)
	if signBit {
		signByte = 0x80
	}
	buf = appendVarint(buf, 7, signByte, deltaBase)

	for _, ee := range entries {
		buf = e.appendFieldLine(buf, ee, base)
	}

	e.observeTable()
	return buf, e.flushInstructions()
}

// encodeField implements field encoding as a strictly exclusive decision
// tree: exactly one of steps 2-5 determines the outcome for a given
// field, falling back to an uninstructed literal encoding whenever a
// chosen step's table insertion cannot also be referenced. A cascading
// variant that re-attempts a name-only lookup after an exact-match
// duplicate already failed to reference would double-insert a single
// field into the dynamic table for no benefit, so each step commits or
// falls through to literal, never both.
func (e *Encoder) encodeField(streamInfo *StreamInfo, section *SectionInfo, f HeaderField) encodableEntry {
	if f.PreEncoded != nil {
		return encodableEntry{kind: kindPreEncoded, preEncoded: f.PreEncoded}
	}
	if f.Value == "" {
		f = HeaderField{Name: f.Name, Value: ""}
	}

	canCreate := !neverIndexed(f) && e.shouldIndex(f) && e.table.CanInsert(f)
	huffman := e.shouldHuffmanEncode(f)

	// Step 2: exact match, referenceable directly.
	if entry, ok := e.lookupExact(f); ok {
		if e.referenceEntry(&entry, streamInfo, section) {
			return encodableEntry{kind: kindReferenced, entry: &entry}
		}

		// Step 3: exact match found but not referenceable as-is; emit a
		// Duplicate and try to reference the fresh copy instead.
		if canCreate {
			if newEntry := e.table.Add(f); newEntry != nil {
				e.pending = append(e.pending, &DuplicateInstruction{Index: encoderStreamRelativeIndex(newEntry.Index, entry.Index)})
				if e.referenceEntry(newEntry, streamInfo, section) {
					return encodableEntry{kind: kindReferenced, entry: newEntry}
				}
			}
		}
		return encodableEntry{kind: kindLiteral, field: f, huffman: huffman}
	}

	// Step 4: name-only match.
	if nameEntry, ok := e.lookupName(f.Name); ok {
		if canCreate {
			if newEntry := e.table.Add(f); newEntry != nil {
				index := uint64(nameEntry.Index)
				if !nameEntry.Static {
					index = encoderStreamRelativeIndex(newEntry.Index, nameEntry.Index)
				}
				e.pending = append(e.pending, &InsertWithNameReferenceInstruction{
					Dynamic: !nameEntry.Static,
					Index:   index,
					Huffman: huffman,
					Value:   f.Value,
				})
				if e.referenceEntry(newEntry, streamInfo, section) {
					return encodableEntry{kind: kindReferenced, entry: newEntry}
				}
			}
		}
		if nameEntry.Static || e.referenceEntry(&nameEntry, streamInfo, section) {
			return encodableEntry{kind: kindNameReferenced, entry: &nameEntry, field: f, huffman: huffman}
		}
		return encodableEntry{kind: kindLiteral, field: f, huffman: huffman}
	}

	// Step 5: nothing matches; insert literal-name if affordable, else
	// emit fully inline.
	if canCreate {
		if newEntry := e.table.Add(f); newEntry != nil {
			e.pending = append(e.pending, &InsertWithLiteralNameInstruction{Field: f, Huffman: huffman})
			if e.referenceEntry(newEntry, streamInfo, section) {
				return encodableEntry{kind: kindReferenced, entry: newEntry}
			}
		}
	}

	return encodableEntry{kind: kindLiteral, field: f, huffman: huffman}
}

// referenceEntry implements the reference-or-block decision.
func (e *Encoder) referenceEntry(entry *Entry, streamInfo *StreamInfo, section *SectionInfo) bool {
	if entry == nil {
		return false
	}
	if entry.Static {
		return true
	}
	if !e.table.CanReference(entry) {
		return false
	}

	if e.knownInsertCount >= entry.Index {
		section.reference(e.table, entry.Index)
		return true
	}

	if streamInfo.isBlocked() {
		if !section.blocking {
			section.block()
			streamInfo.blockingSections++
		}
		section.reference(e.table, entry.Index)
		return true
	}

	if e.blockedStreams < e.maxBlockedStreams {
		e.blockedStreams++
		streamInfo.blockingSections++
		section.block()
		section.reference(e.table, entry.Index)
		e.observeBlocked()
		return true
	}

	return false
}

// encoderStreamRelativeIndex converts the absolute dynamic-table index
// oldIndex into the relative index RFC 9204 §4.3.3/§4.3.4 require on the
// encoder stream: relative to the insert count just before the
// instruction's own entry (newIndex) was added, where 0 names the most
// recently inserted entry.
func encoderStreamRelativeIndex(newIndex, oldIndex int) uint64 {
	return uint64(newIndex - 1 - oldIndex)
}

// appendFieldLine writes one RFC 9204 §4.5 field-line representation.
func (e *Encoder) appendFieldLine(buf []byte, ee encodableEntry, base int) []byte {
	switch ee.kind {
	case kindPreEncoded:
		return append(buf, ee.preEncoded...)
	case kindReferenced:
		if ee.entry.Static {
			return appendVarint(buf, 6, 0xc0, uint64(ee.entry.Index))
		}
		relative := uint64(base - ee.entry.Index - 1)
		return appendVarint(buf, 6, 0x80, relative)
	case kindNameReferenced:
		first := byte(0x40)
		if ee.entry.Static {
			first |= 0x10
		}
		if neverIndexed(ee.field) {
			first |= 0x20
		}
		var idx uint64
		if ee.entry.Static {
			idx = uint64(ee.entry.Index)
		} else {
			idx = uint64(base - ee.entry.Index - 1)
		}
		buf = appendVarint(buf, 4, first, idx)
		return appendString(buf, 7, 0, 0x80, ee.field.Value, ee.huffman)
	default: // kindLiteral
		nameFirst := byte(0x20)
		if neverIndexed(ee.field) {
			nameFirst |= 0x10
		}
		buf = appendString(buf, 3, nameFirst, 0x08, ee.field.Name, ee.huffman)
		return appendString(buf, 7, 0, 0x80, ee.field.Value, ee.huffman)
	}
}

// encodeInsertCount implements the RFC 9204 §4.5.1.2 field-section-prefix
// encoding of the required insert count.
func encodeInsertCount(reqInsertCount int, capacity uint64) int {
	if reqInsertCount == 0 {
		return 0
	}
	maxEntries := int(capacity / 32)
	if maxEntries == 0 {
		return 0
	}
	return (reqInsertCount % (2 * maxEntries)) + 1
}

func (e *Encoder) flushInstructions() error {
	if len(e.pending) == 0 {
		return nil
	}
	batch := e.pending
	e.pending = nil
	if e.handler == nil {
		return nil
	}
	e.log.Debug().Int("count", len(batch)).Msg("qpack: emitting encoder-stream instructions")
	return e.handler.OnInstructions(batch)
}

func (e *Encoder) observeTable() {
	if e.metrics == nil {
		return
	}
	e.metrics.DynamicTableSizeBytes.Set(float64(e.table.Size()))
	if n := e.table.InsertCount(); n > e.insertsObserved {
		e.metrics.DynamicTableInsertCount.Add(float64(n - e.insertsObserved))
		e.insertsObserved = n
	}
}

func (e *Encoder) observeBlocked() {
	if e.metrics == nil {
		return
	}
	e.metrics.BlockedStreams.Set(float64(e.blockedStreams))
}
