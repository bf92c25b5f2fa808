// Package channel implements a bounded multi-producer multi-consumer
// broadcast byte channel over a single fixed-capacity circular buffer.
//
// Producers reserve writable regions of the buffer; consumers are handed
// readable regions covering the committed bytes. Regions are zero-copy views
// into the buffer: while one is live its bytes stay reserved and cannot be
// reclaimed. Every receiver observes every committed byte, in order, exactly
// once — the channel is a broadcast fanout, not a work-sharing queue.
//
// Producers block while the ring lacks space; consumers poll. Closing the
// channel releases blocked producers and lets consumers drain whatever was
// committed before the close.
package channel

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/bytering-platform/bytering/common/go/counter"
)

// Channel owns the buffer and all shared bookkeeping. A single mutex guards
// the state; spaceAvailable signals reclaimed space and shutdown. The bytes
// of handed-out regions are read and written outside the critical section:
// reservation disjointness makes the data path safe without per-byte locks.
type Channel struct {
	mu             sync.Mutex
	spaceAvailable *sync.Cond

	buf      []byte
	capacity int
	open     bool

	// writes covers [write tail, write head): the region reserved for
	// in-flight writers plus where the next reservation will be carved.
	// writes.highMark latches the high mark of the most recently finished
	// cycle until a commit crosses the boundary.
	writes interval

	// reads covers [read tail, read head): committed bytes not yet
	// reclaimed. reads.highMark is the high mark of the cycle the read
	// region currently straddles.
	reads interval

	// outstandingWrites holds the interval of every live writable region.
	outstandingWrites map[interval]struct{}

	// outstandingReads holds the start of every live readable region plus
	// the parked position of every registered receiver.
	outstandingReads *counter.Counter[begCursor]

	log *zap.SugaredLogger
}

// Option configures a Channel.
type Option func(*Channel)

// WithLog wires a logger for debug-level tracing of reservation, commit and
// reclaim transitions.
func WithLog(log *zap.SugaredLogger) Option {
	return func(c *Channel) {
		c.log = log
	}
}

// New allocates a channel with a page-aligned buffer of the given capacity.
func New(capacity int, opts ...Option) (*Channel, error) {
	if capacity <= 0 {
		return nil, errors.New("channel: capacity must be positive")
	}

	c := &Channel{
		buf:               allocAligned(capacity),
		capacity:          capacity,
		open:              true,
		writes:            interval{highMark: noHighMark},
		reads:             interval{highMark: noHighMark},
		outstandingWrites: make(map[interval]struct{}),
		outstandingReads:  counter.New(begCursor.less),
		log:               zap.NewNop().Sugar(),
	}
	c.spaceAvailable = sync.NewCond(&c.mu)

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Capacity returns the buffer capacity in bytes.
func (c *Channel) Capacity() int {
	return c.capacity
}

// IsOpen reports whether the channel still accepts reservations.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close stops the channel: no further reservations are handed out and all
// blocked producers return nil. Receivers stay open until they drain what
// was committed before the close. Close is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return
	}
	c.open = false
	c.spaceAvailable.Broadcast()
	c.log.Debugw("channel closed",
		"writes", c.writes.String(),
		"reads", c.reads.String(),
	)
}

// Sender returns a new producer endpoint.
func (c *Channel) Sender() *Sender {
	return &Sender{ch: c}
}

// Receiver returns a new consumer endpoint registered at the current read
// tail. It observes the committed bytes that are still unreclaimed and
// everything committed afterwards.
func (c *Channel) Receiver() *Receiver {
	c.mu.Lock()
	defer c.mu.Unlock()

	beg := c.reads.beg
	c.outstandingReads.Insert(beg)
	return &Receiver{
		ch:  c,
		cur: endCursor{cycle: beg.cycle, offset: beg.offset},
	}
}

// minOutstandingWrite returns the earliest live reservation. The write tail
// pins to it; its beginning is also the commit frontier.
func (c *Channel) minOutstandingWrite() (interval, bool) {
	var mn interval
	found := false
	for iv := range c.outstandingWrites {
		if !found || iv.beg.less(mn.beg) {
			mn = iv
			found = true
		}
	}
	return mn, found
}

// recomputeReadTail re-derives the read tail from the slowest registered
// position, falling back to the given cursor when no readers remain. Once
// every reader has left the straddled cycle its high mark is dropped.
func (c *Channel) recomputeReadTail(fallback begCursor) {
	if mn, ok := c.outstandingReads.Min(); ok {
		c.reads.beg = mn
	} else {
		c.reads.beg = fallback
	}
	if c.reads.beg.cycle == c.reads.end.cycle && c.reads.highMark != noHighMark {
		c.reads.highMark = noHighMark
	}
}
