package channel

// Sender is a producer endpoint. Reservations made through one Sender are
// serialized: a Sender must not be shared between goroutines, and it panics
// if asked for a new region while a previous one is still held. Create one
// Sender per producer goroutine; all of them feed the same byte stream in
// reservation order.
type Sender struct {
	ch   *Channel
	held bool
}

// collides reports whether a reservation ending at w would overwrite bytes
// still visible to the slowest reader at r. On the same cycle readers are
// behind writers by construction, so only a writer on a later cycle can
// collide. A reader parked at the high mark of a cycle two behind collides
// regardless of offsets.
func collides(w endCursor, r begCursor) bool {
	return w.cycle > r.cycle && (w.offset > r.offset || w.cycle > r.cycle+1)
}

// Reserve blocks until n contiguous bytes of the ring can be reserved and
// returns a writable region over them. The region's bytes may be filled
// without further synchronization; they become visible to receivers when the
// region is released and every earlier reservation has been released too.
//
// Reserve returns nil when n is not in (0, capacity] or once the channel is
// closed — including a close that arrives while blocked, in which case the
// partial reservation is rolled back.
func (s *Sender) Reserve(n int) *MutRegion {
	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.held {
		panic("channel: Reserve called while a previous region is still held")
	}
	if n <= 0 || n > c.capacity || !c.open {
		return nil
	}

	prevEnd := c.writes.end
	inc := c.writes.end.nextRegion(n, c.capacity)
	if len(c.outstandingWrites) == 0 {
		// No earlier writer pins the tail.
		c.writes.beg = inc.beg
	}
	c.writes.end = inc.end
	c.outstandingWrites[inc] = struct{}{}

	for c.open && collides(inc.end, c.reads.beg) {
		c.log.Debugw("reserve blocked",
			"interval", inc.String(),
			"readTail", c.reads.beg.String(),
		)
		c.spaceAvailable.Wait()
	}

	if !c.open {
		s.rollback(inc, prevEnd)
		return nil
	}

	if inc.highMark != noHighMark {
		// The previous cycle is now fully carved up; remember where it
		// stopped until the commit frontier crosses the boundary.
		c.writes.highMark = inc.highMark
	}

	s.held = true
	c.log.Debugw("reserved", "interval", inc.String())
	return &MutRegion{
		owner: s,
		cur:   inc,
		buf:   c.buf[inc.beg.offset : inc.beg.offset+n : inc.beg.offset+n],
	}
}

// rollback undoes the bookkeeping of a reservation abandoned because the
// channel closed during the wait. Blocked reservations always form the
// newest contiguous run of the reservation order, so taking the minimum of
// the current head and the pre-reservation head converges to the frontier of
// the surviving reservations no matter the order waiters wake in.
func (s *Sender) rollback(inc interval, prevEnd endCursor) {
	c := s.ch
	delete(c.outstandingWrites, inc)
	if prevEnd.less(c.writes.end) {
		c.writes.end = prevEnd
	}
	if mn, ok := c.minOutstandingWrite(); ok {
		c.writes.beg = mn.beg
	} else {
		c.writes.beg = c.writes.end.toBeg(noHighMark)
	}
	c.log.Debugw("reservation rolled back", "interval", inc.String())
}

// release returns a writable region's interval to the channel and advances
// the commit frontier. Commits are monotone by write tail: the frontier
// moves to the beginning of the earliest reservation still outstanding, so a
// writer that reserved later but finished earlier does not expose its bytes
// until every earlier reservation is released.
func (s *Sender) release(iv interval) {
	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.outstandingWrites, iv)
	s.held = false

	prevCycle := c.reads.end.cycle
	if mn, ok := c.minOutstandingWrite(); ok {
		c.writes.beg = mn.beg
		c.reads.end = mn.beg.toEnd(mn.highMark)
	} else {
		// Every reservation has been released; everything up to the write
		// head is committed and the write interval collapses to it.
		c.writes.beg = c.writes.end.toBeg(noHighMark)
		c.reads.end = c.writes.end
	}
	if c.reads.end.cycle > prevCycle {
		// The commit frontier crossed a cycle boundary: the finished
		// cycle's high mark now belongs to the read side.
		c.reads.highMark = c.writes.highMark
		c.writes.highMark = noHighMark
	}
	if c.outstandingReads.IsEmpty() {
		// No readers registered: the read tail tracks the frontier.
		c.reads.beg = c.reads.end.toBeg(noHighMark)
		c.reads.highMark = noHighMark
	}

	c.log.Debugw("released write",
		"interval", iv.String(),
		"committed", c.reads.end.String(),
	)
	c.spaceAvailable.Broadcast()
}
