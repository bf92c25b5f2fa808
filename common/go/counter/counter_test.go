package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intLess(a, b int) bool { return a < b }

func Test_CounterInsertRemove(t *testing.T) {
	c := New(intLess)

	c.Insert(7)
	c.Insert(7)
	c.Insert(3)
	assert.Equal(t, 2, c.Count(7))
	assert.Equal(t, 1, c.Count(3))
	assert.Equal(t, 2, c.Len())

	c.Remove(7)
	assert.Equal(t, 1, c.Count(7))
	assert.Equal(t, 2, c.Len())

	c.Remove(7)
	assert.Equal(t, 0, c.Count(7))
	assert.Equal(t, 1, c.Len())
}

func Test_CounterRemoveMissing(t *testing.T) {
	c := New(intLess)
	c.Insert(1)

	c.Remove(42)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Count(1))
}

func Test_CounterMinMax(t *testing.T) {
	c := New(intLess)

	_, ok := c.Min()
	assert.False(t, ok)
	_, ok = c.Max()
	assert.False(t, ok)

	c.Insert(5)
	c.Insert(2)
	c.Insert(9)
	c.Insert(2)

	mn, ok := c.Min()
	assert.True(t, ok)
	assert.Equal(t, 2, mn)

	mx, ok := c.Max()
	assert.True(t, ok)
	assert.Equal(t, 9, mx)

	// A duplicated key stays until every occurrence is removed.
	c.Remove(2)
	mn, _ = c.Min()
	assert.Equal(t, 2, mn)
	c.Remove(2)
	mn, _ = c.Min()
	assert.Equal(t, 5, mn)
}

func Test_CounterIsEmpty(t *testing.T) {
	c := New(intLess)
	assert.True(t, c.IsEmpty())

	c.Insert(0)
	assert.False(t, c.IsEmpty())

	c.Remove(0)
	assert.True(t, c.IsEmpty())
}
