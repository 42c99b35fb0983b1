package presence

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id, userID string
	mu         sync.Mutex
	payloads   [][]byte
	closed     atomic.Bool
	full       bool
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }
func (f *fakeConn) Close()         { f.closed.Store(true) }

func (f *fakeConn) Deliver(p []byte) bool {
	if f.closed.Load() || f.full {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return true
}

func (f *fakeConn) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

func TestPushToAbsentUser(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Push("nobody", map[string]string{"type": "message"}))
	assert.False(t, r.IsOnline("nobody"))
}

func TestPushEncodesJSON(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1", "alice")
	r.Register(c)

	require.True(t, r.Push("alice", map[string]string{"type": "typing"}))

	got := c.received()
	require.Len(t, got, 1)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(got[0], &decoded))
	assert.Equal(t, "typing", decoded["type"])
}

func TestLastConnectionWins(t *testing.T) {
	r := NewRegistry()
	first := newFakeConn("c1", "alice")
	second := newFakeConn("c2", "alice")

	assert.Nil(t, r.Register(first))
	superseded := r.Register(second)

	assert.Equal(t, first, superseded)
	assert.True(t, first.closed.Load(), "superseded connection is closed")
	assert.Equal(t, 1, r.Count())

	require.True(t, r.Push("alice", "hi"))
	assert.Empty(t, first.received())
	assert.Len(t, second.received(), 1)
}

func TestUnregisterIgnoresSupersededConnection(t *testing.T) {
	r := NewRegistry()
	first := newFakeConn("c1", "alice")
	second := newFakeConn("c2", "alice")
	r.Register(first)
	r.Register(second)

	assert.False(t, r.Unregister(first), "stale close must not evict the new connection")
	assert.True(t, r.IsOnline("alice"))

	assert.True(t, r.Unregister(second))
	assert.False(t, r.Unregister(second), "unregister is idempotent")
	assert.False(t, r.IsOnline("alice"))
}

func TestPushToClosedOrFullConnection(t *testing.T) {
	r := NewRegistry()
	closed := newFakeConn("c1", "alice")
	closed.Close()
	r.Register(closed)
	assert.False(t, r.Push("alice", "hi"))

	full := newFakeConn("c2", "bob")
	full.full = true
	r.Register(full)
	assert.False(t, r.Push("bob", "hi"))
}

func TestPushUnencodablePayload(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeConn("c1", "alice"))
	assert.False(t, r.Push("alice", make(chan int)))
}

func TestConcurrentRegisterPushUnregister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%5)
			c := newFakeConn(fmt.Sprintf("c-%d", i), user)
			r.Register(c)
			r.Push(user, "ping")
			r.Unregister(c)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Count(), 5)
}

func TestCloseAll(t *testing.T) {
	r := NewRegistry()
	a := newFakeConn("c1", "alice")
	b := newFakeConn("c2", "bob")
	r.Register(a)
	r.Register(b)

	r.CloseAll()

	assert.Equal(t, 0, r.Count())
	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
}
