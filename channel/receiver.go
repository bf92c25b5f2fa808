package channel

import "fmt"

// Receiver is a consumer endpoint with its own position in the committed
// byte stream. Each receiver observes every committed byte exactly once;
// receivers do not share work. A Receiver must not be shared between
// goroutines, and it panics if asked for a new region while a previous one
// is still held.
//
// The intended consumption pattern polls the outer loop while the channel
// may still produce and drains bursts in the inner loop:
//
//	for rx.IsOpen() {
//		for reg := rx.Next(); reg != nil; reg = rx.Next() {
//			process(reg.Bytes())
//			reg.Release()
//		}
//	}
type Receiver struct {
	ch *Channel

	// cur is the end of the last region returned.
	cur endCursor

	held   bool
	closed bool
}

// Next returns a readable region covering the bytes committed past this
// receiver's cursor, or nil when there are none. The region never crosses a
// cycle boundary: when the committed bytes straddle one, Next returns the
// tail of the older cycle and the following call picks up the next cycle.
//
// Next never blocks; poll it while IsOpen reports true.
func (r *Receiver) Next() *Region {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.held {
		panic("channel: Next called while a previous region is still held")
	}
	if r.closed {
		return nil
	}
	r.checkPosition()

	hm := noHighMark
	if r.cur.cycle != c.reads.end.cycle {
		hm = c.reads.highMark
	}
	beg := r.cur.toBeg(hm)

	var iv interval
	if beg.cycle == c.reads.end.cycle {
		iv = interval{beg: beg, end: c.reads.end, highMark: noHighMark}
	} else {
		// The committed bytes span a cycle boundary; hand out only the
		// remainder of the older cycle.
		iv = interval{
			beg:      beg,
			end:      endCursor{cycle: beg.cycle, offset: c.reads.highMark},
			highMark: noHighMark,
		}
	}
	n := iv.len()
	if n == 0 {
		return nil
	}

	// Insert before remove: when the keys coincide the multiset must keep a
	// positive count.
	c.outstandingReads.Insert(iv.beg)
	c.outstandingReads.Remove(r.cur.toBeg(noHighMark))
	r.cur = iv.end
	r.held = true

	c.log.Debugw("read region", "interval", iv.String())
	return &Region{
		owner: r,
		cur:   iv,
		buf:   c.buf[iv.beg.offset : iv.beg.offset+n : iv.beg.offset+n],
	}
}

// IsOpen reports whether more data may still arrive or remains to be
// drained. On a closed channel the receiver stays open until its cursor has
// caught up with the committed stream.
func (r *Receiver) IsOpen() bool {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.closed {
		return false
	}
	return c.open || r.cur != c.reads.end
}

// Close unregisters the receiver so its position no longer pins the read
// tail, waking producers blocked on the space it held. The receiver must not
// hold a live region. Close is idempotent; Next returns nil afterwards.
func (r *Receiver) Close() {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.closed {
		return
	}
	if r.held {
		panic("channel: Close called while a region is still held")
	}
	r.closed = true
	c.outstandingReads.Remove(r.cur.toBeg(noHighMark))
	c.recomputeReadTail(c.reads.end.toBeg(noHighMark))
	c.spaceAvailable.Broadcast()
}

// release returns a readable region's interval to the channel: the
// receiver's parked position replaces the region's start in the multiset and
// the read tail advances to the slowest remaining position.
func (r *Receiver) release(iv interval) {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outstandingReads.Insert(iv.end.toBeg(noHighMark))
	c.outstandingReads.Remove(iv.beg)
	r.held = false
	c.recomputeReadTail(iv.end.toBeg(iv.highMark))

	c.log.Debugw("released read",
		"interval", iv.String(),
		"readTail", c.reads.beg.String(),
	)
	c.spaceAvailable.Broadcast()
}

// checkPosition asserts the receiver cursor sits inside the committed
// region and the read interval's high mark agrees with its shape. Failures
// are implementation bugs, not recoverable conditions.
func (r *Receiver) checkPosition() {
	c := r.ch
	if !c.reads.beg.leqEnd(r.cur) || !r.cur.leq(c.reads.end) {
		panic(fmt.Sprintf(
			"channel: receiver cursor %v outside committed region %v",
			r.cur, c.reads,
		))
	}
	sameCycle := c.reads.beg.cycle == c.reads.end.cycle
	if sameCycle && c.reads.highMark != noHighMark {
		panic(fmt.Sprintf("channel: stale high mark on %v", c.reads))
	}
	if !sameCycle &&
		(c.reads.end.cycle != c.reads.beg.cycle+1 || c.reads.highMark == noHighMark) {
		panic(fmt.Sprintf("channel: read region straddles too far: %v", c.reads))
	}
}
