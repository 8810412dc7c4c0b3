package coalesce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	sent  []int
	byKey map[Key][]int
	err   error
}

func (r *recorder) send(_ context.Context, key Key, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byKey == nil {
		r.byKey = map[Key][]int{}
	}
	r.sent = append(r.sent, quantity)
	r.byKey[key] = append(r.byKey[key], quantity)
	return r.err
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.sent...)
}

func TestSubmit_CollapsesToLastValue(t *testing.T) {
	rec := &recorder{}
	c := New(30*time.Millisecond, rec.send)
	key := Key{SessionKey: "s", ItemRef: "pizza"}

	var results []<-chan error
	for q := 1; q <= 5; q++ {
		results = append(results, c.Submit(key, q))
	}
	for _, ch := range results {
		select {
		case err := <-ch:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("intent was never sent")
		}
	}
	assert.Equal(t, []int{5}, rec.snapshot())
	assert.Equal(t, 0, c.Pending())
}

func TestSubmit_KeysAreIndependent(t *testing.T) {
	rec := &recorder{}
	c := New(20*time.Millisecond, rec.send)
	a := c.Submit(Key{SessionKey: "s", ItemRef: "a"}, 2)
	b := c.Submit(Key{SessionKey: "s", ItemRef: "b"}, 7)
	require.NoError(t, <-a)
	require.NoError(t, <-b)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{2}, rec.byKey[Key{SessionKey: "s", ItemRef: "a"}])
	assert.Equal(t, []int{7}, rec.byKey[Key{SessionKey: "s", ItemRef: "b"}])
}

func TestFlush_SendsImmediately(t *testing.T) {
	rec := &recorder{}
	c := New(time.Hour, rec.send)
	ch := c.Submit(Key{SessionKey: "s", ItemRef: "a"}, 3)
	assert.Equal(t, 1, c.Pending())

	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, []int{3}, rec.snapshot())
	require.NoError(t, <-ch)
}

func TestSendErrorReachesEveryWaiter(t *testing.T) {
	boom := errors.New("conflict")
	rec := &recorder{err: boom}
	c := New(time.Hour, rec.send)
	key := Key{SessionKey: "s", ItemRef: "a"}
	first := c.Submit(key, 1)
	second := c.Submit(key, 2)

	err := c.Flush(context.Background())
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, <-first, boom)
	assert.ErrorIs(t, <-second, boom)
}

func TestClose_FlushesAndRejects(t *testing.T) {
	rec := &recorder{}
	c := New(time.Hour, rec.send)
	pending := c.Submit(Key{SessionKey: "s", ItemRef: "a"}, 4)

	require.NoError(t, c.Close())
	require.NoError(t, <-pending)
	assert.Equal(t, []int{4}, rec.snapshot())

	assert.ErrorIs(t, <-c.Submit(Key{SessionKey: "s", ItemRef: "a"}, 1), ErrClosed)
}
