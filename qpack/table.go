package qpack

import "container/list"

// drainingFraction is the lower portion of the dynamic table (by entry
// count) that the encoder voluntarily avoids referencing, to keep enough
// room to evict.
const drainingFraction = 8

// DynamicTable is the per-connection, capacity-bounded ring of dynamic
// header entries shared between encoder and decoder via the encoder
// stream. It owns its Entry storage exclusively: SectionInfo never holds
// more than an absolute index into it.
type DynamicTable struct {
	capacity uint64
	size     uint64

	entries *list.List // of *Entry, oldest first

	insertCount int
	// byIndex provides O(1) lookup by absolute index without walking the
	// list; it is never used for eviction ordering, only retrieval.
	byIndex map[int]*list.Element

	// refCount tracks outstanding SectionInfo references per absolute
	// index so eviction can refuse to drop a referenced entry.
	refCount map[int]int
}

// NewDynamicTable returns an empty dynamic table with the given capacity.
func NewDynamicTable(capacity uint64) *DynamicTable {
	return &DynamicTable{
		capacity: capacity,
		entries:  list.New(),
		byIndex:  make(map[int]*list.Element),
		refCount: make(map[int]int),
	}
}

// Capacity returns the current capacity in bytes.
func (t *DynamicTable) Capacity() uint64 { return t.capacity }

// Size returns the current accounted size in bytes.
func (t *DynamicTable) Size() uint64 { return t.size }

// InsertCount returns the total number of entries ever inserted.
func (t *DynamicTable) InsertCount() int { return t.insertCount }

// Base defaults to InsertCount at the start of a field-section encode.
func (t *DynamicTable) Base() int { return t.insertCount }

// oldest returns the absolute index of the oldest surviving entry, or -1
// if the table is empty.
func (t *DynamicTable) oldest() int {
	if front := t.entries.Front(); front != nil {
		return front.Value.(*Entry).Index
	}
	return -1
}

// CanInsert reports whether f could be inserted without exceeding
// capacity, after evicting only entries with zero outstanding references.
func (t *DynamicTable) CanInsert(f HeaderField) bool {
	need := uint64(f.Size())
	if need > t.capacity {
		return false
	}
	freed := uint64(0)
	for e := t.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*Entry)
		if t.size-freed+need <= t.capacity {
			break
		}
		if t.refCount[entry.Index] > 0 {
			return false
		}
		freed += uint64(entry.Field.Size())
	}
	return t.size-freed+need <= t.capacity
}

// evictFor evicts oldest, unreferenced entries until there is room for
// need additional bytes. Returns false if it could not make room (a
// referenced entry blocked further eviction).
func (t *DynamicTable) evictFor(need uint64) bool {
	for t.size+need > t.capacity {
		front := t.entries.Front()
		if front == nil {
			return false
		}
		entry := front.Value.(*Entry)
		if t.refCount[entry.Index] > 0 {
			return false
		}
		t.entries.Remove(front)
		delete(t.byIndex, entry.Index)
		delete(t.refCount, entry.Index)
		t.size -= uint64(entry.Field.Size())
	}
	return true
}

// Add appends a new dynamic entry. Precondition: CanInsert(entry.Field).
// Assigns Index = ++InsertCount.
func (t *DynamicTable) Add(field HeaderField) *Entry {
	need := uint64(field.Size())
	if !t.evictFor(need) {
		return nil
	}
	t.insertCount++
	entry := &Entry{Field: field, Index: t.insertCount, Static: false}
	elem := t.entries.PushBack(entry)
	t.byIndex[entry.Index] = elem
	t.size += need
	return entry
}

// SetCapacity changes the capacity, evicting oldest entries first. Fails
// (returns false) if an entry scheduled for eviction is still referenced.
func (t *DynamicTable) SetCapacity(c uint64) bool {
	if c >= t.size {
		t.capacity = c
		return true
	}
	for t.size > c {
		front := t.entries.Front()
		if front == nil {
			break
		}
		entry := front.Value.(*Entry)
		if t.refCount[entry.Index] > 0 {
			return false
		}
		t.entries.Remove(front)
		delete(t.byIndex, entry.Index)
		delete(t.refCount, entry.Index)
		t.size -= uint64(entry.Field.Size())
	}
	t.capacity = c
	return true
}

// get returns the entry at absolute dynamic index idx, or nil.
func (t *DynamicTable) get(idx int) *Entry {
	elem, ok := t.byIndex[idx]
	if !ok {
		return nil
	}
	return elem.Value.(*Entry)
}

// LookupExact finds an exact name+value match, dynamic table only.
func (t *DynamicTable) LookupExact(f HeaderField) (*Entry, bool) {
	for e := t.entries.Back(); e != nil; e = e.Prev() {
		entry := e.Value.(*Entry)
		if entry.Field.Name == f.Name && entry.Field.Value == f.Value {
			return entry, true
		}
	}
	return nil, false
}

// LookupName finds a name-only match, dynamic table only, most-recent first.
func (t *DynamicTable) LookupName(name string) (*Entry, bool) {
	for e := t.entries.Back(); e != nil; e = e.Prev() {
		entry := e.Value.(*Entry)
		if entry.Field.Name == name {
			return entry, true
		}
	}
	return nil, false
}

// drainingBoundary is the absolute index of the newest entry in the
// eviction zone (the oldest ~1/drainingFraction of live entries); entries
// at or below it are in the zone. Returns -1 when the zone is empty.
func (t *DynamicTable) drainingBoundary() int {
	n := t.entries.Len()
	if n == 0 {
		return -1
	}
	zoneCount := n / drainingFraction
	if zoneCount == 0 {
		return -1
	}
	e := t.entries.Front()
	for i := 0; i < zoneCount-1 && e.Next() != nil; i++ {
		e = e.Next()
	}
	return e.Value.(*Entry).Index
}

// CanReference reports whether e may be referenced by a new section: it
// must not fall in the draining zone near the head of the table.
func (t *DynamicTable) CanReference(e *Entry) bool {
	if e == nil {
		return false
	}
	boundary := t.drainingBoundary()
	return e.Index > boundary
}

// addRef/release track outstanding SectionInfo references so eviction
// never drops a referenced entry.
func (t *DynamicTable) addRef(idx int) { t.refCount[idx]++ }

func (t *DynamicTable) release(idx int) {
	if t.refCount[idx] <= 1 {
		delete(t.refCount, idx)
		return
	}
	t.refCount[idx]--
}
