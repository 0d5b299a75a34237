package streaming

// ClientEnvelope is the client->server JSON envelope for every WebSocket
// message (§4.6 "WebSocket message protocol").
type ClientEnvelope struct {
	Action string          `json:"action"`
	Data   ClientEnvelopeData `json:"data"`
}

// ClientEnvelopeData carries the action-specific payload. All fields are
// optional; which ones are read depends on Action.
type ClientEnvelopeData struct {
	Topics  []string          `json:"topics,omitempty"`
	Filters map[string]Filter `json:"filters,omitempty"`
}

// SubscribeResponse is returned for a "subscribe" action.
type SubscribeResponse struct {
	Action     string          `json:"action"`
	Subscribed []string        `json:"subscribed"`
	Failed     []TopicFailure  `json:"failed"`
}

// TopicFailure reports one topic that could not be (un)subscribed.
type TopicFailure struct {
	Topic string `json:"topic"`
	Error string `json:"error"`
}

// UnsubscribeResponse is returned for an "unsubscribe" action.
type UnsubscribeResponse struct {
	Action       string         `json:"action"`
	Unsubscribed []string       `json:"unsubscribed"`
	Failed       []TopicFailure `json:"failed"`
}

// PongResponse is returned for a "ping" action.
type PongResponse struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// ListTopicsResponse is returned for a "list_topics" action.
type ListTopicsResponse struct {
	Action      string   `json:"action"`
	Available   []string `json:"available"`
	Subscribed  []string `json:"subscribed"`
}

// StatsResponse is returned for a "get_stats" action.
type StatsResponse struct {
	Action string        `json:"action"`
	Stats  RegistryStats `json:"stats"`
}

// ErrorEnvelope is returned for malformed or unknown client messages.
// Internal errors never close the socket; they reply with this envelope.
type ErrorEnvelope struct {
	Error             string   `json:"error"`
	Message           string   `json:"message,omitempty"`
	AvailableActions  []string `json:"available_actions,omitempty"`
}

// ConnectionEstablished is the first frame sent after a successful
// WebSocket handshake (§4.5 Streaming handshake).
type ConnectionEstablished struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
	Subject      string `json:"subject"`
	Tenant       string `json:"tenant"`
}

// KnownActions lists the actions the WS protocol understands, surfaced on
// an unknown_action error.
var KnownActions = []string{"subscribe", "unsubscribe", "ping", "list_topics", "get_stats"}
