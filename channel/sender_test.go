package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reserving the whole capacity in one region is allowed.
func Test_ReserveFullCapacity(t *testing.T) {
	ch := newTestChannel(t, 16)
	tx, rx := ch.Sender(), ch.Receiver()

	reg := tx.Reserve(16)
	require.NotNil(t, reg)
	assert.Equal(t, 16, reg.Len())
	reg.Release()

	assert.Len(t, drain(rx), 16)

	// The next full-capacity reservation occupies the next cycle once the
	// reader is out of the way.
	reg = tx.Reserve(16)
	require.NotNil(t, reg)
	assert.Equal(t, begCursor{cycle: 1, offset: 0}, reg.cur.beg)
	reg.Release()
}

// The write head and tail track reservations and releases.
func Test_WriteIntervalTracksOutstanding(t *testing.T) {
	ch := newTestChannel(t, 64)
	tx1, tx2 := ch.Sender(), ch.Sender()

	reg1 := tx1.Reserve(8)
	require.NotNil(t, reg1)
	reg2 := tx2.Reserve(8)
	require.NotNil(t, reg2)

	ch.mu.Lock()
	assert.Equal(t, begCursor{cycle: 0, offset: 0}, ch.writes.beg)
	assert.Equal(t, endCursor{cycle: 0, offset: 16}, ch.writes.end)
	assert.Len(t, ch.outstandingWrites, 2)
	ch.mu.Unlock()

	// Releasing the earlier reservation moves the tail to the later one.
	reg1.Release()
	ch.mu.Lock()
	assert.Equal(t, begCursor{cycle: 0, offset: 8}, ch.writes.beg)
	assert.Equal(t, endCursor{cycle: 0, offset: 8}, ch.reads.end)
	ch.mu.Unlock()

	reg2.Release()
	ch.mu.Lock()
	assert.Equal(t, endCursor{cycle: 0, offset: 16}, ch.reads.end)
	ch.mu.Unlock()
}

// A close that lands while a reservation is blocked rolls its bookkeeping
// back: no interval stays outstanding and the write head returns to where it
// was before the attempt.
func Test_CloseRollsBackBlockedReservation(t *testing.T) {
	ch := newTestChannel(t, 13)
	tx := ch.Sender()
	ch.Receiver() // parked at the origin, pins cycle 0

	for range 2 {
		reg := tx.Reserve(5)
		require.NotNil(t, reg)
		reg.Release()
	}

	tx2 := ch.Sender()
	done := make(chan *MutRegion, 1)
	go func() {
		done <- tx2.Reserve(5)
	}()
	time.Sleep(20 * time.Millisecond)
	ch.Close()

	select {
	case reg := <-done:
		require.Nil(t, reg)
	case <-time.After(time.Second):
		t.Fatal("blocked reserve did not observe the close")
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Empty(t, ch.outstandingWrites)
	assert.Equal(t, endCursor{cycle: 0, offset: 10}, ch.writes.end)
	assert.Equal(t, begCursor{cycle: 0, offset: 10}, ch.writes.beg)
	assert.Equal(t, noHighMark, ch.writes.highMark)
}

// Two reservations blocked on the same reader both roll back on close, in
// whatever order they wake.
func Test_CloseRollsBackMultipleBlockedReservations(t *testing.T) {
	ch := newTestChannel(t, 13)
	tx := ch.Sender()
	ch.Receiver()

	for range 2 {
		reg := tx.Reserve(5)
		require.NotNil(t, reg)
		reg.Release()
	}

	done := make(chan *MutRegion, 2)
	for range 2 {
		tx := ch.Sender()
		go func() {
			done <- tx.Reserve(4)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	ch.Close()

	for range 2 {
		select {
		case reg := <-done:
			require.Nil(t, reg)
		case <-time.After(time.Second):
			t.Fatal("blocked reserve did not observe the close")
		}
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Empty(t, ch.outstandingWrites)
	assert.Equal(t, endCursor{cycle: 0, offset: 10}, ch.writes.end)
}
