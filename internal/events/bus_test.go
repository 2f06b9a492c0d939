package events

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch1, cancel1 := bus.Subscribe()
	ch2, cancel2 := bus.Subscribe()
	defer cancel1()
	defer cancel2()

	bus.Emit(StageSettled, "workflow", map[string]interface{}{"symbol": "AAPL"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, StageSettled, event.Type)
			assert.Equal(t, "workflow", event.Module)
			assert.Equal(t, "AAPL", event.Data["symbol"])
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, cancel := bus.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Emitting after unsubscribe must not panic.
	bus.Emit(AnalysisStarted, "workflow", nil)
}

func TestBusEmitNeverBlocks(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	_, cancel := bus.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; the emitter must not stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Emit(SymbolStateChanged, "workflow", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
}

func TestBusEmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.EmitError("workflow", errors.New("fetch failed"), map[string]interface{}{"symbol": "AAPL"})

	event := <-ch
	require.Equal(t, ErrorOccurred, event.Type)
	assert.Equal(t, "fetch failed", event.Data["error"])
}
