package hub

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Count())

	conn := newFakeConnection("conn-1")
	require.NoError(t, r.Register(conn))
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, "conn-1", got.ID())

	assert.ErrorIs(t, r.Register(conn), ErrDuplicateConnection)

	removed, ok := r.Unregister("conn-1")
	require.True(t, ok)
	assert.Same(t, conn, removed)
	assert.Equal(t, 0, r.Count())

	_, ok = r.Unregister("conn-1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RejectsClosedConnection(t *testing.T) {
	r := NewRegistry()
	conn := newFakeConnection("closed")
	_ = conn.Close()

	assert.ErrorIs(t, r.Register(conn), ErrConnectionClosed)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_SnapshotIsIndependent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeConnection("a")))
	require.NoError(t, r.Register(newFakeConnection("b")))

	snapshot := r.All()
	r.Unregister("a")

	assert.Len(t, snapshot, 2)
	assert.Equal(t, 1, r.Count())
}

// Count always equals accepted minus closed, whatever the interleaving.
func TestRegistry_ConcurrentAcceptCloseBroadcast(t *testing.T) {
	r := NewRegistry()
	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	kept := make([]int, workers)
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if err := r.Register(newFakeConnection(id)); err != nil {
					t.Errorf("register %s: %v", id, err)
					return
				}
				if rng.Intn(2) == 0 {
					r.Unregister(id)
				} else {
					kept[w]++
				}
				_ = r.All()
				assert.GreaterOrEqual(t, r.Count(), 0)
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, k := range kept {
		total += k
	}
	assert.Equal(t, total, r.Count())
	assert.Len(t, r.All(), total)
}

func TestRegistry_Drain(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeConnection("a")))
	require.NoError(t, r.Register(newFakeConnection("b")))

	drained := r.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, r.Count())
}
