package qpack

// ParseInstructionBuffer parses a complete decoder-stream buffer,
// applying each recognized instruction in order: SectionAcknowledgement,
// StreamCancellation, InsertCountIncrement. An unrecognized leading byte
// pattern cannot occur since every 2-bit combination is assigned; any
// parse failure (truncated varint) returns a SessionException.
func (e *Encoder) ParseInstructionBuffer(buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(buf) > 0 {
		first := buf[0]
		rest := buf[1:]

		switch {
		case first&0x80 != 0: // 1xxxxxxx: Section Acknowledgement
			streamID, n, ok := readVarint(rest, 7, first)
			if !ok {
				return newSessionException(ErrCodeDecoderStream, "truncated section acknowledgement")
			}
			buf = rest[n:]
			if err := e.sectionAcknowledgement(streamID); err != nil {
				return err
			}
		case first&0x40 != 0: // 01xxxxxx: Stream Cancellation
			streamID, n, ok := readVarint(rest, 6, first)
			if !ok {
				return newSessionException(ErrCodeDecoderStream, "truncated stream cancellation")
			}
			buf = rest[n:]
			if err := e.streamCancellation(streamID); err != nil {
				return err
			}
		default: // 00xxxxxx: Insert Count Increment
			increment, n, ok := readVarint(rest, 6, first)
			if !ok {
				return newSessionException(ErrCodeDecoderStream, "truncated insert count increment")
			}
			buf = rest[n:]
			if err := e.insertCountIncrement(int(increment)); err != nil {
				return err
			}
		}
	}
	return e.flushInstructions()
}

// insertCountIncrement applies InsertCountIncrement(n): fails if
// knownInsertCount + n would exceed the dynamic table's actual insert
// count; otherwise advances knownInsertCount and unblocks every section
// whose max referenced index is now covered.
func (e *Encoder) insertCountIncrement(n int) error {
	if e.knownInsertCount+n > e.table.InsertCount() {
		return newSessionException(ErrCodeEncoderStream, "known insert count incremented over insert count")
	}
	e.knownInsertCount += n
	e.unblockStreams()
	return nil
}

// sectionAcknowledgement pops the oldest outstanding section for
// streamID, releases its references, and bumps knownInsertCount.
func (e *Encoder) sectionAcknowledgement(streamID uint64) error {
	streamInfo, ok := e.streams[streamID]
	if !ok {
		return newSessionException(ErrCodeEncoderStream, "no stream info for stream %d", streamID)
	}

	section := streamInfo.popOldest()
	if section == nil {
		return newSessionException(ErrCodeEncoderStream, "no outstanding section for stream %d", streamID)
	}
	if section.blocking {
		streamInfo.blockingSections--
		if streamInfo.blockingSections == 0 {
			e.blockedStreams--
		}
		e.observeBlocked()
	}
	section.acknowledged = true
	section.release(e.table)
	if e.knownInsertCount < section.requiredInsertCount {
		e.knownInsertCount = section.requiredInsertCount
	}
	e.unblockStreams()

	if streamInfo.isEmpty() {
		delete(e.streams, streamID)
	}
	return nil
}

// streamCancellation removes the StreamInfo for streamID and releases
// every reference held by its outstanding sections.
func (e *Encoder) streamCancellation(streamID uint64) error {
	streamInfo, ok := e.streams[streamID]
	if !ok {
		return newSessionException(ErrCodeEncoderStream, "no stream info for stream %d", streamID)
	}
	delete(e.streams, streamID)

	wasBlocked := streamInfo.isBlocked()
	for _, section := range streamInfo.sections {
		section.release(e.table)
	}
	streamInfo.blockingSections = 0
	if wasBlocked {
		e.blockedStreams--
	}
	e.observeBlocked()
	return nil
}

// unblockStreams transitions every section whose maximum referenced
// index is now covered by knownInsertCount out of the blocking state.
func (e *Encoder) unblockStreams() {
	for _, streamInfo := range e.streams {
		if !streamInfo.isBlocked() {
			continue
		}
		for _, section := range streamInfo.sections {
			if !section.blocking {
				continue
			}
			if section.maxReferencedIndex() <= e.knownInsertCount {
				section.blocking = false
				streamInfo.blockingSections--
			}
		}
		if streamInfo.blockingSections == 0 {
			e.blockedStreams--
		}
	}
	e.observeBlocked()
}
