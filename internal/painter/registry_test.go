package painter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ConnectOrder(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.OnConnect(3))
	require.True(t, r.OnConnect(1))
	require.True(t, r.OnConnect(2))

	var ids []uint32
	for _, c := range r.All() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []uint32{3, 1, 2}, ids, "connection order is arrival order")
}

func TestRegistry_DuplicateConnect(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.OnConnect(1))

	c, _ := r.Find(1)
	c.AckedVersion = 4

	assert.False(t, r.OnConnect(1))
	assert.Equal(t, 1, r.Len())

	c, _ = r.Find(1)
	assert.Equal(t, uint64(4), c.AckedVersion, "existing record untouched")
}

func TestRegistry_DisconnectKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.OnConnect(1)
	r.OnConnect(2)
	r.OnConnect(3)

	assert.True(t, r.OnDisconnect(2))
	assert.False(t, r.OnDisconnect(2))

	var ids []uint32
	for _, c := range r.All() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []uint32{1, 3}, ids)
}

func TestRegistry_AllGone(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.AllGone(), "never connected is not all gone")
	assert.False(t, r.HadConnection())

	r.OnConnect(1)
	assert.False(t, r.AllGone())

	r.OnDisconnect(1)
	assert.True(t, r.AllGone())
	assert.True(t, r.HadConnection(), "had-connection is sticky")

	r.OnConnect(2)
	assert.False(t, r.AllGone())
}

func TestRegistry_MinAcked(t *testing.T) {
	r := NewRegistry()
	_, ok := r.MinAcked()
	assert.False(t, ok)

	r.OnConnect(1)
	r.OnConnect(2)
	c1, _ := r.Find(1)
	c2, _ := r.Find(2)
	c1.AckedVersion = 7
	c2.AckedVersion = 5

	min, ok := r.MinAcked()
	require.True(t, ok)
	assert.Equal(t, uint64(5), min)

	r.OnConnect(3)
	min, _ = r.MinAcked()
	assert.Equal(t, uint64(0), min, "a fresh viewer holds the minimum at 0")
}
