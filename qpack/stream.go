package qpack

// SectionInfo tracks one in-flight field section (header block) on a
// stream: the insert count the decoder must reach before it can decode
// the section, the set of dynamic entries it references, and whether it
// is counted against the blocked-streams budget.
type SectionInfo struct {
	requiredInsertCount int
	referenced          []int // absolute dynamic indices
	blocking            bool
	acknowledged         bool
}

// RequiredInsertCount returns the smallest insert count the decoder must
// have before it can decode this section.
func (s *SectionInfo) RequiredInsertCount() int { return s.requiredInsertCount }

func (s *SectionInfo) reference(table *DynamicTable, idx int) {
	table.addRef(idx)
	s.referenced = append(s.referenced, idx)
	if idx > s.requiredInsertCount {
		s.requiredInsertCount = idx
	}
}

func (s *SectionInfo) block() { s.blocking = true }

// maxReferencedIndex returns the highest absolute dynamic index this
// section references, or -1 if it references none.
func (s *SectionInfo) maxReferencedIndex() int {
	max := -1
	for _, idx := range s.referenced {
		if idx > max {
			max = idx
		}
	}
	return max
}

// release drops every reference this section holds exactly once. Safe to
// call from either the Acknowledged or Cancelled terminal transition, but
// must only be called once per section.
func (s *SectionInfo) release(table *DynamicTable) {
	for _, idx := range s.referenced {
		table.release(idx)
	}
	s.referenced = nil
}

// StreamInfo is the per-stream queue of in-flight sections. Removed from
// the encoder's map once its queue empties.
type StreamInfo struct {
	streamID         uint64
	sections         []*SectionInfo
	blockingSections int
}

// newStreamInfo returns an empty StreamInfo for streamID.
func newStreamInfo(streamID uint64) *StreamInfo {
	return &StreamInfo{streamID: streamID}
}

// addSection appends and returns a fresh SectionInfo for an encode in
// progress on this stream.
func (si *StreamInfo) addSection() *SectionInfo {
	s := &SectionInfo{}
	si.sections = append(si.sections, s)
	return s
}

// current returns the most recently added, not-yet-acknowledged section:
// the one an in-progress Encode call is populating.
func (si *StreamInfo) current() *SectionInfo {
	if len(si.sections) == 0 {
		return nil
	}
	return si.sections[len(si.sections)-1]
}

// isBlocked reports whether this stream currently has any section
// counted against the blocked-streams budget.
func (si *StreamInfo) isBlocked() bool {
	return si.blockingSections > 0
}

// isEmpty reports whether the stream has no outstanding sections and can
// be dropped from the encoder's map.
func (si *StreamInfo) isEmpty() bool {
	return len(si.sections) == 0
}

// popOldest removes and returns the oldest outstanding section, matching
// the strictly-FIFO acknowledgement order required by the peer.
func (si *StreamInfo) popOldest() *SectionInfo {
	if len(si.sections) == 0 {
		return nil
	}
	s := si.sections[0]
	si.sections = si.sections[1:]
	return s
}
