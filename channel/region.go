package channel

// MutRegion is a writable region of the ring reserved through a Sender.
// Filling its bytes needs no synchronization: disjointness with every other
// live region is guaranteed by the reservation, not by per-byte locks.
//
// A MutRegion must be released exactly once; releasing under defer keeps the
// reservation from leaking when the code filling it panics:
//
//	reg := tx.Reserve(n)
//	if reg == nil {
//		return
//	}
//	defer reg.Release()
//	fill(reg.Bytes())
type MutRegion struct {
	owner    *Sender
	cur      interval
	buf      []byte
	released bool
}

// Bytes returns the writable payload.
func (m *MutRegion) Bytes() []byte {
	return m.buf
}

// Len returns the region length in bytes.
func (m *MutRegion) Len() int {
	return len(m.buf)
}

// Release returns the region to the channel. Its bytes become visible to
// receivers once every earlier reservation has been released as well. The
// region must not be used afterwards.
func (m *MutRegion) Release() {
	if m.released {
		panic("channel: MutRegion released twice")
	}
	m.released = true
	m.buf = nil
	m.owner.release(m.cur)
}

// Region is a readable region of committed bytes handed out by a Receiver.
// Its bytes must not be mutated; they stay valid until Release.
type Region struct {
	owner    *Receiver
	cur      interval
	buf      []byte
	released bool
}

// Bytes returns the read-only payload.
func (r *Region) Bytes() []byte {
	return r.buf
}

// Len returns the region length in bytes.
func (r *Region) Len() int {
	return len(r.buf)
}

// Release returns the region's bytes to the pool so producers can reclaim
// them. The region must not be used afterwards.
func (r *Region) Release() {
	if r.released {
		panic("channel: Region released twice")
	}
	r.released = true
	r.buf = nil
	r.owner.release(r.cur)
}
