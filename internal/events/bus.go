// Package events provides the event bus used to surface workflow progress.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	AnalysisStarted    EventType = "ANALYSIS_STARTED"
	AnalysisCompleted  EventType = "ANALYSIS_COMPLETED"
	SymbolStateChanged EventType = "SYMBOL_STATE_CHANGED"
	StageSettled       EventType = "STAGE_SETTLED"
	AlertRaised        EventType = "ALERT_RAISED"
	ErrorOccurred      EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}

// Bus handles event emission and fan-out to subscribers. Emission never
// blocks: slow subscribers lose events rather than stalling the workflow.
type Bus struct {
	log  zerolog.Logger
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:  log.With().Str("service", "events").Logger(),
		subs: make(map[int]chan Event),
	}
}

// Emit emits an event to all subscribers
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Msg("Event emitted")

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, drop
		}
	}
}

// EmitError emits an error event
func (b *Bus) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	b.Emit(ErrorOccurred, module, data)
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
