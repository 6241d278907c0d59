package ringbuffer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	producer int
	n        int
}

func shutdown(t *testing.T, r interface{ Shutdown(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
}

func TestNew_RejectsBadCapacity(t *testing.T) {
	for _, c := range []int{0, -4, 3, 100} {
		_, err := New[int](c, func(int) {})
		assert.Error(t, err, "capacity %d", c)
	}
	_, err := New[int](8, nil)
	assert.Error(t, err)
}

func TestRing_SingleProducerOrder(t *testing.T) {
	var got []int
	r, err := New[int](8, func(v int) { got = append(got, v) })
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		require.NoError(t, r.Publish(i))
	}
	shutdown(t, r)

	require.Len(t, got, 1000)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int64(1000), r.Claimed())
	assert.Equal(t, int64(1000), r.Consumed())
	assert.True(t, r.Empty())
}

func TestRing_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	const producers, perProducer = 8, 2000
	var got []item
	strategies := []WaitStrategy{Sleeping, Yielding, Blocking}

	for _, ws := range strategies {
		t.Run(ws.String(), func(t *testing.T) {
			got = got[:0]
			r, err := New[item](64, func(v item) { got = append(got, v) }, WithWaitStrategy(ws))
			require.NoError(t, err)

			var wg sync.WaitGroup
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for n := 0; n < perProducer; n++ {
						assert.NoError(t, r.Publish(item{producer: p, n: n}))
					}
				}(p)
			}
			wg.Wait()
			shutdown(t, r)

			require.Len(t, got, producers*perProducer)
			next := make([]int, producers)
			for _, v := range got {
				require.Equal(t, next[v.producer], v.n)
				next[v.producer]++
			}
		})
	}
}

func TestRing_BackpressureWhenFull(t *testing.T) {
	release := make(chan struct{})
	var consumed atomic.Int32
	r, err := New[int](2, func(int) {
		<-release
		consumed.Add(1)
	})
	require.NoError(t, err)

	// Value 0 keeps its slot until the consumer returns.
	require.NoError(t, r.Publish(0))
	require.Eventually(t, func() bool { return r.Depth() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, r.Publish(1))

	published := make(chan error, 1)
	go func() { published <- r.Publish(2) }()

	select {
	case <-published:
		t.Fatal("publish should wait while the ring is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-published)
	shutdown(t, r)
	assert.Equal(t, int32(3), consumed.Load())
}

func TestRing_PublishContextGivesUp(t *testing.T) {
	release := make(chan struct{})
	r, err := New[int](1, func(int) { <-release })
	require.NoError(t, err)

	require.NoError(t, r.Publish(0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = r.PublishContext(ctx, 1)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int64(1), r.Claimed())

	close(release)
	shutdown(t, r)
	assert.Equal(t, int64(1), r.Consumed())
}

func TestRing_ShutdownDrainsAndRejects(t *testing.T) {
	var count atomic.Int32
	r, err := New[int](16, func(int) {
		time.Sleep(100 * time.Microsecond)
		count.Add(1)
	})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, r.Publish(i))
	}
	shutdown(t, r)

	assert.Equal(t, int32(100), count.Load())
	assert.True(t, r.Closed())
	assert.ErrorIs(t, r.Publish(1), ErrClosed)

	select {
	case <-r.Done():
	default:
		t.Fatal("consumer should have exited")
	}

	// Shutdown again returns once the same drain is done.
	shutdown(t, r)
}

func TestRing_ShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	r, err := New[int](4, func(int) { <-release })
	require.NoError(t, err)
	require.NoError(t, r.Publish(0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	<-r.Done()
}

func TestRing_ConsumerPanicDoesNotStopRing(t *testing.T) {
	var got []int
	r, err := New[int](4, func(v int) {
		if v == 1 {
			panic("bad value")
		}
		got = append(got, v)
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Publish(i))
	}
	shutdown(t, r)
	assert.Equal(t, []int{0, 2, 3}, got)
}

func TestParseWaitStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want WaitStrategy
	}{
		{"", Sleeping},
		{"sleeping", Sleeping},
		{"Yielding", Yielding},
		{"BLOCKING", Blocking},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWaitStrategy(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseWaitStrategy("busy")
	assert.Error(t, err)

	var w WaitStrategy
	require.NoError(t, w.UnmarshalText([]byte("yielding")))
	assert.Equal(t, Yielding, w)
	text, _ := Blocking.MarshalText()
	assert.Equal(t, "blocking", string(text))
}
