package server

import (
	"context"
	"net/http"
	"time"

	"github.com/copytrade/fleet/internal/events"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// streamedEvents are the bus events pushed to dashboard clients.
var streamedEvents = []events.EventType{
	events.SessionPhaseChanged,
	events.SessionHealthChanged,
	events.SessionCrashed,
	events.SessionRetired,
	events.OrderRecordPhaseChanged,
	events.DispatchCompleted,
	events.AlertRaised,
	events.SystemStatusChanged,
}

// EventsStreamHandler streams fleet events to dashboard clients over
// a websocket. Each client gets a bounded buffer; a slow client drops
// its oldest events rather than backpressuring the bus.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler creates the events stream handler.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("handler", "events_stream").Logger(),
	}
}

// streamFrame is the wire shape of one event.
type streamFrame struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}

// HandleEventsStream upgrades to a websocket and forwards events
// until the client goes away.
// GET /api/events
func (h *EventsStreamHandler) HandleEventsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local dashboard, CORS handled upstream
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	eventChan := make(chan *events.Event, 64)

	var subs []events.Subscription
	for _, et := range streamedEvents {
		subs = append(subs, h.bus.Subscribe(et, func(event *events.Event) {
			h.enqueueEvent(eventChan, event)
		}))
	}
	defer func() {
		for _, sub := range subs {
			h.bus.Unsubscribe(sub)
		}
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, streamFrame{
				Type:      string(event.Type),
				Timestamp: event.Timestamp,
				Module:    event.Module,
				Data:      event.Data,
			})
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("client write failed, closing stream")
				return
			}
		}
	}
}

// enqueueEvent pushes onto the client buffer, dropping the oldest
// buffered event when full. The stream favors freshness over
// completeness: a dashboard wants current state, not history replay.
func (h *EventsStreamHandler) enqueueEvent(eventChan chan *events.Event, event *events.Event) {
	for {
		select {
		case eventChan <- event:
			return
		default:
			select {
			case dropped := <-eventChan:
				h.log.Debug().Str("event_type", string(dropped.Type)).Msg("dropped event for slow client")
			default:
			}
		}
	}
}
