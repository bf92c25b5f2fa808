package channel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

var cmpCursors = cmp.AllowUnexported(interval{}, begCursor{}, endCursor{})

func Test_CursorOrder(t *testing.T) {
	// A cursor in a later cycle is greater than any cursor in an earlier
	// one, regardless of offsets.
	assert.True(t, begCursor{cycle: 0, offset: 100}.less(begCursor{cycle: 1, offset: 0}))
	assert.False(t, begCursor{cycle: 1, offset: 0}.less(begCursor{cycle: 0, offset: 100}))
	assert.True(t, endCursor{cycle: 0, offset: 100}.less(endCursor{cycle: 1, offset: 0}))
	assert.True(t, begCursor{cycle: 2, offset: 3}.less(begCursor{cycle: 2, offset: 4}))
}

func Test_CursorNextRegion(t *testing.T) {
	c := endCursor{}

	// No wrap.
	inc := c.nextRegion(10, 20)
	assert.Empty(t, cmp.Diff(interval{
		beg:      begCursor{cycle: 0, offset: 0},
		end:      endCursor{cycle: 0, offset: 10},
		highMark: noHighMark,
	}, inc, cmpCursors))

	// No wrap, exact fit.
	inc = inc.end.nextRegion(10, 20)
	assert.Empty(t, cmp.Diff(interval{
		beg:      begCursor{cycle: 0, offset: 10},
		end:      endCursor{cycle: 0, offset: 20},
		highMark: noHighMark,
	}, inc, cmpCursors))

	// Wrap: the high mark records where the previous cycle stopped.
	inc = inc.end.nextRegion(15, 20)
	assert.Empty(t, cmp.Diff(interval{
		beg:      begCursor{cycle: 1, offset: 0},
		end:      endCursor{cycle: 1, offset: 15},
		highMark: 20,
	}, inc, cmpCursors))

	// Wrap again: the remainder of cycle 1 cannot fit another 15 bytes.
	inc = inc.end.nextRegion(15, 20)
	assert.Empty(t, cmp.Diff(interval{
		beg:      begCursor{cycle: 2, offset: 0},
		end:      endCursor{cycle: 2, offset: 15},
		highMark: 15,
	}, inc, cmpCursors))
}

func Test_CursorToBeg(t *testing.T) {
	// Interior position: the conversion is the identity.
	e := endCursor{cycle: 3, offset: 5}
	assert.Equal(t, begCursor{cycle: 3, offset: 5}, e.toBeg(noHighMark))
	assert.Equal(t, begCursor{cycle: 3, offset: 5}, e.toBeg(10))

	// An end exactly at its cycle's high mark is the beginning of the next
	// cycle.
	e = endCursor{cycle: 3, offset: 10}
	assert.Equal(t, begCursor{cycle: 4, offset: 0}, e.toBeg(10))
}

func Test_CursorToEnd(t *testing.T) {
	// Interior position: identity.
	b := begCursor{cycle: 2, offset: 7}
	assert.Equal(t, endCursor{cycle: 2, offset: 7}, b.toEnd(noHighMark))

	// The beginning of a wrapped cycle is equivalently the high mark of the
	// previous one.
	b = begCursor{cycle: 2, offset: 0}
	assert.Equal(t, endCursor{cycle: 1, offset: 13}, b.toEnd(13))

	// Converting an interior cursor with a high mark is a bug.
	assert.Panics(t, func() {
		begCursor{cycle: 2, offset: 7}.toEnd(13)
	})
}

func Test_IntervalLen(t *testing.T) {
	// Same cycle.
	iv := interval{
		beg:      begCursor{cycle: 1, offset: 4},
		end:      endCursor{cycle: 1, offset: 9},
		highMark: noHighMark,
	}
	assert.Equal(t, 5, iv.len())

	// Across a cycle boundary the high mark supplies the missing extent.
	iv = interval{
		beg:      begCursor{cycle: 1, offset: 8},
		end:      endCursor{cycle: 2, offset: 3},
		highMark: 10,
	}
	assert.Equal(t, 5, iv.len())

	// Cross-cycle without a high mark is malformed.
	assert.Panics(t, func() {
		interval{
			beg:      begCursor{cycle: 1, offset: 8},
			end:      endCursor{cycle: 2, offset: 3},
			highMark: noHighMark,
		}.len()
	})
}
