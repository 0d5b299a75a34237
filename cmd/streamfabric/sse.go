package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/quantedge/access-layer/internal/streaming"
)

const sseHeartbeatIdle = 30 * time.Second

// handleSSE implements the §4.6 SSE transport: the outbound queue is
// consumed as an async generator; each item is emitted as an SSE `data:`
// frame; when the queue is idle for 30s a heartbeat frame is emitted.
func (s *server) handleSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := s.authenticateQueryToken(ctx, r)
	if err != nil {
		writeHTTPError(w, r, err)
		return
	}

	conn, err := s.registry.Accept(ctx, streaming.TransportSSE, info.Subject, info.Tenant)
	if err != nil {
		writeHTTPError(w, r, err)
		return
	}
	defer s.registry.Destroy(conn.ID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeHTTPError(w, r, errNoFlush)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Connection-Id", conn.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeatIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.Outbound:
			if !ok {
				return
			}
			writeSSEData(w, msg)
			flusher.Flush()
			ticker.Reset(sseHeartbeatIdle)
		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		}
	}
}

func writeSSEData(w http.ResponseWriter, msg streaming.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}

// handleSSESubscribe implements POST /sse/subscribe?connection_id=&topic=&filters=
// for clients that already hold an SSE connection id from /sse/stream and
// want to add a topic subscription out-of-band (EventSource cannot send
// arbitrary frames the way a WebSocket can).
func (s *server) handleSSESubscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	connID := q.Get("connection_id")
	topic := q.Get("topic")

	conn, ok := s.registry.Get(connID)
	if !ok {
		writeErrorEnvelope(w, r, http.StatusNotFound, "NOT_FOUND", "connection not found")
		return
	}

	var filter streaming.Filter
	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			writeErrorEnvelope(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "filters must be valid JSON")
			return
		}
	}

	allowed, err := s.checkTopicEntitlement(conn, topic)
	if err != nil {
		writeHTTPError(w, r, err)
		return
	}
	if !allowed {
		writeErrorEnvelope(w, r, http.StatusForbidden, "AUTHORIZATION_ERROR", "entitlement denied")
		return
	}

	if err := s.registry.Subscribe(context.Background(), connID, topic, filter); err != nil {
		writeHTTPError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"connection_id": connID, "topic": topic, "subscribed": true})
}

type noFlushError struct{}

func (noFlushError) Error() string { return "streaming unsupported by response writer" }

var errNoFlush = noFlushError{}
