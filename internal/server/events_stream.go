package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/geosearch/internal/events"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// eventQueueSize bounds how many unread events a slow websocket client can
// accumulate before the oldest is dropped in favor of the newest.
const eventQueueSize = 32

// handleEventsStream serves GET /events: a websocket feed of fleet lifecycle
// events (country starting/started/crashed/stopped), so an admin UI can
// update live instead of polling /server_status.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to accept websocket connection")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	queue := make(chan events.Event, eventQueueSize)
	sub := s.bus.Subscribe(func(evt *events.Event) {
		s.enqueueEvent(queue, *evt)
	})
	defer s.bus.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case evt := <-queue:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// enqueueEvent is a non-blocking send that drops the oldest queued event
// rather than blocking the bus's dispatch goroutine when a client reads
// slower than events arrive.
func (s *Server) enqueueEvent(queue chan events.Event, evt events.Event) {
	select {
	case queue <- evt:
		return
	default:
	}
	select {
	case <-queue:
	default:
	}
	select {
	case queue <- evt:
	default:
	}
}
