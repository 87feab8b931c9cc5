package vthreads

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRendezvousHandoff(t *testing.T) {
	r := require.New(t)

	for i := 0; i < 100; i++ {
		rv := NewRendezvous()
		var ready atomic.Bool

		pool := NewPool(context.Background())
		pool.Go(func(context.Context) error {
			time.Sleep(50 * time.Microsecond)
			ready.Store(true)
			rv.Release()
			return nil
		})

		r.NoError(rv.Acquire(context.Background()))
		r.True(ready.Load())
		r.NoError(pool.Close())
	}
}

func TestRendezvousSinglePermit(t *testing.T) {
	r := require.New(t)

	rv := NewRendezvous()
	r.False(rv.TryAcquire())
	r.True(rv.Release())
	r.False(rv.Release())
	r.Equal(uint64(2), rv.Releases())

	r.True(rv.TryAcquire())
	r.False(rv.TryAcquire())
}

func TestRendezvousAcquireInterrupted(t *testing.T) {
	r := require.New(t)

	rv := NewRendezvous()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rv.Acquire(ctx)
	r.ErrorIs(err, ErrInterrupted)
	r.ErrorIs(err, context.DeadlineExceeded)
	var ie *InterruptedError
	r.ErrorAs(err, &ie)
	r.Equal("rendezvous acquire", ie.Op)
}

func TestRendezvousPermitBeatsDoneContext(t *testing.T) {
	r := require.New(t)

	rv := NewRendezvous()
	rv.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.NoError(rv.Acquire(ctx))
}

func TestShutdownLatchSingleWinner(t *testing.T) {
	r := require.New(t)

	for _, n := range []int{1, 2, 16, 256} {
		latch := NewShutdownLatch()
		r.Equal(1, latch.Count())

		var (
			winners atomic.Int32
			wg      sync.WaitGroup
			start   = make(chan struct{})
		)
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				<-start
				if latch.Close() {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		r.Equal(int32(1), winners.Load(), "n=%d", n)
		r.True(latch.Closed())
		r.Equal(0, latch.Count())
		r.False(latch.Close())

		select {
		case <-latch.Done():
		default:
			r.Fail("done channel not closed")
		}
	}
}

func TestShutdownLatchWait(t *testing.T) {
	r := require.New(t)

	latch := NewShutdownLatch()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	r.ErrorIs(latch.Wait(ctx), ErrInterrupted)

	go func() {
		time.Sleep(time.Millisecond)
		latch.Close()
	}()
	r.NoError(latch.Wait(context.Background()))
}

func TestComponentNilLogger(t *testing.T) {
	r := require.New(t)
	r.Nil(Component(nil, "x"))
}
