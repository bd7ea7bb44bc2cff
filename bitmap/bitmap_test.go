package bitmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase/task-scheduler/bitmap"
)

func TestAddRemoveContains(t *testing.T) {
	b := bitmap.New(1, 2, 3)
	assert.True(t, b.Contains(2))
	assert.False(t, b.Contains(4))

	b.Add(4)
	assert.True(t, b.Contains(4))

	b.Remove(2)
	assert.False(t, b.Contains(2))
	assert.Equal(t, uint64(3), b.Len())
}

func TestAndOrAndNot(t *testing.T) {
	a := bitmap.New(1, 2, 3)
	b := bitmap.New(2, 3, 4)

	assert.ElementsMatch(t, []uint32{2, 3}, a.And(b).ToArray())
	assert.ElementsMatch(t, []uint32{1, 2, 3, 4}, a.Or(b).ToArray())
	assert.ElementsMatch(t, []uint32{1}, a.AndNot(b).ToArray())

	// originals untouched
	assert.ElementsMatch(t, []uint32{1, 2, 3}, a.ToArray())
}

func TestMarshalRoundTrip(t *testing.T) {
	a := bitmap.New(5, 10, 1000)
	data, err := a.MarshalBinary()
	require.NoError(t, err)

	b := bitmap.New()
	require.NoError(t, b.UnmarshalBinary(data))
	assert.ElementsMatch(t, a.ToArray(), b.ToArray())
}

func TestUnion(t *testing.T) {
	a := bitmap.New(1)
	b := bitmap.New(2)
	c := bitmap.New(3)
	u := bitmap.Union(a, b, c)
	assert.ElementsMatch(t, []uint32{1, 2, 3}, u.ToArray())
	assert.True(t, bitmap.Union().IsEmpty())
}

func TestIterate(t *testing.T) {
	b := bitmap.New(3, 1, 2)
	var seen []uint32
	b.Iterate(func(uid uint32) bool {
		seen = append(seen, uid)
		return true
	})
	assert.Equal(t, []uint32{1, 2, 3}, seen)
}

func TestIterateStopsEarly(t *testing.T) {
	b := bitmap.New(1, 2, 3, 4)
	var seen []uint32
	b.Iterate(func(uid uint32) bool {
		seen = append(seen, uid)
		return uid < 2
	})
	assert.Equal(t, []uint32{1, 2}, seen)
}
