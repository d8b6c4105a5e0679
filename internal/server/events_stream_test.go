package server

import (
	"testing"

	"github.com/copytrade/fleet/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestEnqueueEventDropsOldest(t *testing.T) {
	handler := &EventsStreamHandler{
		log: zerolog.Nop(),
	}

	eventChan := make(chan *events.Event, 2)

	event1 := &events.Event{Type: events.SessionPhaseChanged}
	event2 := &events.Event{Type: events.SessionHealthChanged}
	event3 := &events.Event{Type: events.AlertRaised}

	handler.enqueueEvent(eventChan, event1)
	handler.enqueueEvent(eventChan, event2)
	handler.enqueueEvent(eventChan, event3)

	assert.Equal(t, 2, len(eventChan))

	first := <-eventChan
	second := <-eventChan

	assert.Equal(t, events.SessionHealthChanged, first.Type)
	assert.Equal(t, events.AlertRaised, second.Type)
}
