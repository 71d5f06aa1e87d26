package qpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicTableAddRespectsCapacity(t *testing.T) {
	table := NewDynamicTable(64)
	f := HeaderField{Name: "a", Value: "1"} // Size() = 1+1+32 = 34
	e1 := table.Add(f)
	require.NotNil(t, e1)
	assert.Equal(t, 1, e1.Index)
	assert.LessOrEqual(t, table.Size(), table.Capacity())

	// A second identical insert needs another 34 bytes; only 30 remain, so
	// the oldest entry must be evicted first to make room.
	e2 := table.Add(f)
	require.NotNil(t, e2)
	assert.Equal(t, 2, e2.Index)
	assert.LessOrEqual(t, table.Size(), table.Capacity())
	assert.Nil(t, table.get(1), "oldest entry should have been evicted to make room")
}

func TestDynamicTableCanInsertRefusesOversizedField(t *testing.T) {
	table := NewDynamicTable(32)
	big := HeaderField{Name: "a-very-long-header-name-indeed", Value: "and-a-long-value-too"}
	assert.False(t, table.CanInsert(big))
}

func TestDynamicTableEvictionRefusesReferencedEntry(t *testing.T) {
	table := NewDynamicTable(40)
	f1 := HeaderField{Name: "a", Value: "1"} // size 34
	e1 := table.Add(f1)
	require.NotNil(t, e1)

	table.addRef(e1.Index)

	f2 := HeaderField{Name: "b", Value: "2"} // size 34, needs eviction of e1
	e2 := table.Add(f2)
	assert.Nil(t, e2, "insert must fail: making room would require evicting a referenced entry")
	assert.NotNil(t, table.get(e1.Index), "referenced entry must survive the failed insert attempt")

	table.release(e1.Index)
	e3 := table.Add(f2)
	assert.NotNil(t, e3, "once unreferenced, eviction should proceed and the insert should succeed")
}

func TestDynamicTableSetCapacityShrinkEvicts(t *testing.T) {
	table := NewDynamicTable(128)
	e1 := table.Add(HeaderField{Name: "a", Value: "1"})
	require.NotNil(t, e1)

	ok := table.SetCapacity(16)
	assert.True(t, ok)
	assert.Nil(t, table.get(e1.Index))
	assert.Equal(t, uint64(0), table.Size())
}

func TestDynamicTableSetCapacityShrinkRefusesWhenReferenced(t *testing.T) {
	table := NewDynamicTable(128)
	e1 := table.Add(HeaderField{Name: "a", Value: "1"})
	require.NotNil(t, e1)
	table.addRef(e1.Index)

	ok := table.SetCapacity(16)
	assert.False(t, ok, "shrinking must fail rather than evict a referenced entry")
	assert.NotNil(t, table.get(e1.Index))
}

func TestDynamicTableLookupExactAndName(t *testing.T) {
	table := NewDynamicTable(1024)
	table.Add(HeaderField{Name: "custom", Value: "first"})
	second := table.Add(HeaderField{Name: "custom", Value: "second"})

	entry, ok := table.LookupExact(HeaderField{Name: "custom", Value: "second"})
	require.True(t, ok)
	assert.Equal(t, second.Index, entry.Index)

	_, ok = table.LookupExact(HeaderField{Name: "custom", Value: "missing"})
	assert.False(t, ok)

	nameEntry, ok := table.LookupName("custom")
	require.True(t, ok)
	assert.Equal(t, second.Index, nameEntry.Index, "name lookup returns the most recently inserted match")
}

func TestDynamicTableCanReferenceDrainingZone(t *testing.T) {
	table := NewDynamicTable(8 * 34)
	var last *Entry
	for i := 0; i < 8; i++ {
		last = table.Add(HeaderField{Name: "h", Value: string(rune('a' + i))})
	}
	require.NotNil(t, last)

	oldest := table.get(1)
	require.NotNil(t, oldest)
	assert.False(t, table.CanReference(oldest), "oldest entry falls in the draining zone and must not be referenced")
	assert.True(t, table.CanReference(last), "most recently inserted entry must be referenceable")
}

func TestDynamicTableBaseTracksInsertCount(t *testing.T) {
	table := NewDynamicTable(1024)
	assert.Equal(t, 0, table.Base())
	table.Add(HeaderField{Name: "a", Value: "1"})
	table.Add(HeaderField{Name: "b", Value: "2"})
	assert.Equal(t, 2, table.Base())
	assert.Equal(t, table.InsertCount(), table.Base())
}
