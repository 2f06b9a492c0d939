package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolCapacity(t *testing.T) {
	pool := NewPool(2)
	ctx := context.Background()

	require.NoError(t, pool.Acquire(ctx))
	require.NoError(t, pool.Acquire(ctx))
	assert.Equal(t, 2, pool.InFlight())

	// Third acquire must block until a release.
	acquired := make(chan struct{})
	go func() {
		_ = pool.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire succeeded beyond capacity")
	case <-time.After(20 * time.Millisecond):
	}

	pool.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not handed the released slot")
	}
}

func TestPoolAcquireCancelled(t *testing.T) {
	pool := NewPool(1)
	require.NoError(t, pool.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The held slot is unaffected by the cancelled waiter.
	assert.Equal(t, 1, pool.InFlight())
	pool.Release()
	assert.Equal(t, 0, pool.InFlight())
}

func TestPoolFIFO(t *testing.T) {
	pool := NewPool(1)
	require.NoError(t, pool.Acquire(context.Background()))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, pool.Acquire(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			pool.Release()
		}(i)
		// Stagger the goroutines so their queue positions are known.
		time.Sleep(10 * time.Millisecond)
	}

	pool.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPoolMinimumCapacity(t *testing.T) {
	pool := NewPool(0)
	require.NoError(t, pool.Acquire(context.Background()))
	assert.Equal(t, 1, pool.InFlight())
	pool.Release()
}
