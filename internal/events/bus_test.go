package events

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBus_SubscribeAndEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var receivedEvent *Event
	var receivedData map[string]interface{}
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(1)

	handler := func(event *Event) {
		mu.Lock()
		receivedEvent = event
		receivedData = event.Data
		mu.Unlock()
		wg.Done()
	}

	_ = bus.Subscribe(SessionPhaseChanged, handler)

	data := map[string]interface{}{
		"account_id": "alice",
		"from":       "LOADING",
		"to":         "AUTHENTICATING",
	}

	bus.Emit(SessionPhaseChanged, "fleet", data)

	wg.Wait()

	mu.Lock()
	assert.NotNil(t, receivedEvent)
	assert.Equal(t, SessionPhaseChanged, receivedEvent.Type)
	assert.Equal(t, "fleet", receivedEvent.Module)
	assert.Equal(t, "alice", receivedData["account_id"])
	assert.Equal(t, "AUTHENTICATING", receivedData["to"])
	mu.Unlock()
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var callCount1, callCount2 int
	var mu1, mu2 sync.Mutex

	var wg sync.WaitGroup
	wg.Add(2)

	handler1 := func(*Event) {
		mu1.Lock()
		callCount1++
		mu1.Unlock()
		wg.Done()
	}
	handler2 := func(*Event) {
		mu2.Lock()
		callCount2++
		mu2.Unlock()
		wg.Done()
	}

	_ = bus.Subscribe(SessionPhaseChanged, handler1)
	_ = bus.Subscribe(SessionPhaseChanged, handler2)

	bus.Emit(SessionPhaseChanged, "test", map[string]interface{}{})

	wg.Wait()

	mu1.Lock()
	mu2.Lock()
	assert.Equal(t, 1, callCount1)
	assert.Equal(t, 1, callCount2)
	mu2.Unlock()
	mu1.Unlock()
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	// Should not panic
	bus.Emit(SessionPhaseChanged, "test", map[string]interface{}{})
}

func TestBus_DifferentEventTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var phaseCount, healthCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(2)

	_ = bus.Subscribe(SessionPhaseChanged, func(*Event) {
		mu.Lock()
		phaseCount++
		mu.Unlock()
		wg.Done()
	})
	_ = bus.Subscribe(SessionHealthChanged, func(*Event) {
		mu.Lock()
		healthCount++
		mu.Unlock()
		wg.Done()
	})

	bus.Emit(SessionPhaseChanged, "test", map[string]interface{}{})
	bus.Emit(SessionHealthChanged, "test", map[string]interface{}{})

	wg.Wait()

	mu.Lock()
	assert.Equal(t, 1, phaseCount)
	assert.Equal(t, 1, healthCount)
	mu.Unlock()
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var callCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(1)

	sub := bus.Subscribe(SessionPhaseChanged, func(*Event) {
		mu.Lock()
		callCount++
		mu.Unlock()
		wg.Done()
	})

	bus.Emit(SessionPhaseChanged, "test", map[string]interface{}{})
	wg.Wait()

	bus.Unsubscribe(sub)

	bus.Emit(SessionPhaseChanged, "test", map[string]interface{}{})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, callCount, "handler should not be called after unsubscribe")
	mu.Unlock()
}
