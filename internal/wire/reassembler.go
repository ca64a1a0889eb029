package wire

// Reassembler tracks one partial record buffer per producer that has an
// outstanding non-final chunk. The design notes (spec §9) call the
// original collector's 256-bucket sharded list a micro-optimisation; a plain
// map keyed by producer id is equivalent and is what this type uses. No idle
// buffers are kept: when a producer's final chunk arrives, Accept deletes its
// map entry outright, which is simpler in Go than the original's in-place
// slot reuse and costs nothing since map entries are cheap to re-add.
type Reassembler struct {
	buffers map[uint64][]byte
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{buffers: make(map[uint64][]byte)}
}

// Accept folds one decoded frame into the reassembler. If the frame is
// final, Accept returns the complete record (buffer contents, if any,
// followed by this frame's payload) and done=true; the producer's buffer is
// cleared. If the frame is non-final, the payload is appended to the
// producer's buffer and Accept returns done=false.
func (r *Reassembler) Accept(f Frame) (record []byte, done bool) {
	if !f.IsLast {
		buf := append(r.buffers[f.ProducerID], f.Payload...)
		r.buffers[f.ProducerID] = buf
		return nil, false
	}

	buf, existing := r.buffers[f.ProducerID]
	if !existing {
		// Copy: Payload borrows the caller's read buffer.
		out := make([]byte, len(f.Payload))
		copy(out, f.Payload)
		return out, true
	}

	out := append(buf, f.Payload...)
	delete(r.buffers, f.ProducerID)
	return out, true
}

// Count returns the number of producers with an outstanding partial buffer.
func (r *Reassembler) Count() int {
	return len(r.buffers)
}

// Bytes returns the total bytes currently held across all partial buffers.
func (r *Reassembler) Bytes() int {
	total := 0
	for _, b := range r.buffers {
		total += len(b)
	}
	return total
}

// Flush drains every outstanding partial buffer, in unspecified order, and
// clears the reassembler. Used at shutdown and EOF: the spec requires that
// residue from a producer that never sent a final chunk is still written as
// a record prefix, never dropped.
func (r *Reassembler) Flush() [][]byte {
	if len(r.buffers) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(r.buffers))
	for _, b := range r.buffers {
		out = append(out, b)
	}
	r.buffers = make(map[uint64][]byte)
	return out
}
