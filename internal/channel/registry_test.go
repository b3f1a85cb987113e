package channel

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInsertRemove(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	c1, _ := newTestConn(1, 42)
	c2, _ := newTestConn(2, 7)

	r.Insert(c1)
	r.Insert(c2)
	assert.Equal(t, 2, r.Len())

	assert.True(t, r.Remove(1))
	assert.Equal(t, 1, r.Len())

	// Removing an absent record is a no-op.
	assert.False(t, r.Remove(1))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDuplicateInsertOverwrites(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	stale, staleTransport := newTestConn(1, 42)
	fresh, _ := newTestConn(1, 42)

	r.Insert(stale)
	r.Insert(fresh)

	assert.Equal(t, 1, r.Len())
	assert.True(t, staleTransport.isClosed())
	assert.False(t, fresh.isClosed())
}

func TestRegistryForEachLiveOwnerFilter(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	c1, _ := newTestConn(1, 42)
	c2, _ := newTestConn(2, 42)
	c3, _ := newTestConn(3, 7)
	r.Insert(c1)
	r.Insert(c2)
	r.Insert(c3)

	owner := int64(42)
	var visited []uint64
	r.ForEachLive(&owner, func(c *Conn) {
		visited = append(visited, c.ID())
	})
	assert.ElementsMatch(t, []uint64{1, 2}, visited)

	visited = nil
	r.ForEachLive(nil, func(c *Conn) {
		visited = append(visited, c.ID())
	})
	assert.ElementsMatch(t, []uint64{1, 2, 3}, visited)
}

func TestRegistryForEachLiveSkipsClosed(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	c1, _ := newTestConn(1, 42)
	c2, _ := newTestConn(2, 42)
	r.Insert(c1)
	r.Insert(c2)

	c1.terminate()

	var visited []uint64
	r.ForEachLive(nil, func(c *Conn) {
		visited = append(visited, c.ID())
	})
	assert.Equal(t, []uint64{2}, visited)
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	c1, t1 := newTestConn(1, 42)
	c2, t2 := newTestConn(2, 7)
	r.Insert(c1)
	r.Insert(c2)

	closed := r.CloseAll(websocket.CloseGoingAway, "Server shutting down")
	require.Equal(t, 2, closed)
	assert.Equal(t, 0, r.Len())
	assert.True(t, t1.isClosed())
	assert.True(t, t2.isClosed())
}

func TestConnCloseIsIdempotent(t *testing.T) {
	c, ft := newTestConn(1, 42)

	c.close(websocket.CloseNormalClosure, "bye")
	c.close(websocket.CloseNormalClosure, "bye again")
	c.terminate()

	assert.True(t, ft.isClosed())
	assert.True(t, c.isClosed())
	assert.False(t, c.enqueue([]byte("x")))
}
