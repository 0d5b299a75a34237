package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/security"
	"github.com/quantedge/access-layer/internal/streaming"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS implements the §4.5 streaming handshake: accept, require a
// token on the query string, verify it through C1, register the
// connection in the registry, send connection_established, then enter the
// message loop (§4.6).
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := s.authenticateQueryToken(ctx, r)
	if err != nil {
		writeHTTPError(w, r, err)
		return
	}

	conn, err := s.registry.Accept(ctx, streaming.TransportWS, info.Subject, info.Tenant)
	if err != nil {
		writeHTTPError(w, r, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.registry.Destroy(conn.ID)
		return
	}

	established := streaming.ConnectionEstablished{
		Type:         "connection_established",
		ConnectionID: conn.ID,
		Subject:      conn.Subject,
		Tenant:       conn.Tenant,
	}
	if err := ws.WriteJSON(established); err != nil {
		s.registry.Destroy(conn.ID)
		ws.Close()
		return
	}

	done := make(chan struct{})
	go s.wsWritePump(ws, conn, done)
	s.wsReadPump(ws, conn)
	close(done)

	s.registry.Destroy(conn.ID)
	ws.Close()
}

// wsWritePump drains the connection's bounded outbound queue to the
// socket, matching the SSE transport's async-generator framing but over a
// WebSocket text frame (§4.6).
func (s *server) wsWritePump(ws *websocket.Conn, conn *streaming.Connection, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg, ok := <-conn.Outbound:
			if !ok {
				return
			}
			if err := ws.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// wsReadPump implements the client->server message protocol (§4.6).
// Malformed JSON and unknown actions reply with an error envelope without
// closing the socket; only a transport-level read error ends the loop.
func (s *server) wsReadPump(ws *websocket.Conn, conn *streaming.Connection) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var envelope streaming.ClientEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			ws.WriteJSON(streaming.ErrorEnvelope{Error: "invalid_json"})
			continue
		}

		response := s.handleWSAction(ws, conn, envelope)
		if response != nil {
			ws.WriteJSON(response)
		}
	}
}

func (s *server) handleWSAction(ws *websocket.Conn, conn *streaming.Connection, envelope streaming.ClientEnvelope) interface{} {
	switch envelope.Action {
	case "subscribe":
		return s.wsSubscribe(conn, envelope)
	case "unsubscribe":
		return s.wsUnsubscribe(conn, envelope)
	case "ping":
		conn.touchHeartbeat()
		return streaming.PongResponse{Action: "pong", Timestamp: time.Now().Unix()}
	case "list_topics":
		return streaming.ListTopicsResponse{
			Action:     "list_topics",
			Available:  s.registry.Topics(),
			Subscribed: conn.Topics(),
		}
	case "get_stats":
		return streaming.StatsResponse{Action: "get_stats", Stats: s.registry.Stats()}
	default:
		return streaming.ErrorEnvelope{
			Error:            "unknown_action",
			AvailableActions: streaming.KnownActions,
		}
	}
}

func (s *server) wsSubscribe(conn *streaming.Connection, envelope streaming.ClientEnvelope) streaming.SubscribeResponse {
	resp := streaming.SubscribeResponse{Action: "subscribe_response"}
	for _, topic := range envelope.Data.Topics {
		allowed, err := s.checkTopicEntitlement(conn, topic)
		if err != nil {
			resp.Failed = append(resp.Failed, streaming.TopicFailure{Topic: topic, Error: err.Error()})
			continue
		}
		if !allowed {
			resp.Failed = append(resp.Failed, streaming.TopicFailure{Topic: topic, Error: "entitlement denied"})
			continue
		}
		filter := envelope.Data.Filters[topic]
		if err := s.registry.Subscribe(context.Background(), conn.ID, topic, filter); err != nil {
			resp.Failed = append(resp.Failed, streaming.TopicFailure{Topic: topic, Error: err.Error()})
			continue
		}
		resp.Subscribed = append(resp.Subscribed, topic)
	}
	return resp
}

func (s *server) wsUnsubscribe(conn *streaming.Connection, envelope streaming.ClientEnvelope) streaming.UnsubscribeResponse {
	resp := streaming.UnsubscribeResponse{Action: "unsubscribe_response"}
	for _, topic := range envelope.Data.Topics {
		if err := s.registry.Unsubscribe(conn.ID, topic); err != nil {
			resp.Failed = append(resp.Failed, streaming.TopicFailure{Topic: topic, Error: err.Error()})
			continue
		}
		resp.Unsubscribed = append(resp.Unsubscribed, topic)
	}
	return resp
}

// checkTopicEntitlement implements §4.6 Subscribe: "consult C2 for
// (resource, action) mapped from the topic; if allowed...". Topics map to
// an entitlement resource of the same name with action "subscribe".
func (s *server) checkTopicEntitlement(conn *streaming.Connection, topic string) (bool, error) {
	decision, err := s.entitlement.Check(context.Background(), conn.Subject, conn.Tenant, topic, "subscribe", nil)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

func writeHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	if svcErr := accesserrors.GetServiceError(err); svcErr != nil {
		writeErrorEnvelope(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message)
		return
	}
	writeErrorEnvelope(w, r, http.StatusInternalServerError, string(accesserrors.InternalError), "internal server error")
}

func writeErrorEnvelope(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	// §4.5: 5xx responses never leak internal detail back to the caller.
	if status >= 500 {
		message = security.SanitizeString(message)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"trace_id": r.Header.Get("X-Request-Id"),
		"code":     code,
		"message":  message,
		"details":  map[string]interface{}{},
	})
}
