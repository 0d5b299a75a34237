// Package streaming implements C6: a bus consumer that multiplexes topic
// messages into per-connection WebSocket/SSE fan-outs, with subscriptions,
// filter evaluation, and heartbeat-driven liveness.
package streaming

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport is how a connection is carried to the client.
type Transport string

const (
	TransportWS  Transport = "ws"
	TransportSSE Transport = "sse"
)

// DefaultQueueSize is the bounded outbound queue depth per connection (§5).
const DefaultQueueSize = 1000

// Message is a single bus-sourced frame delivered to a subscriber.
type Message struct {
	Topic     string                 `json:"topic"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Partition int32                  `json:"partition"`
	Offset    int64                  `json:"offset"`
}

// Filter maps a payload field path to a match spec: a literal (exact
// match), a []interface{} (membership), or a RangeFilter (closed-open
// range), per §4.6.
type Filter map[string]interface{}

// RangeFilter is the {min,max} shape of a range filter entry.
type RangeFilter struct {
	Min interface{} `json:"min"`
	Max interface{} `json:"max"`
}

// Connection is a single streaming client, exclusively owned by the
// Registry that created it.
type Connection struct {
	ID            string
	Transport     Transport
	Subject       string
	Tenant        string
	CreatedAt     time.Time
	Outbound      chan Message
	DropCount     int64

	mu            sync.RWMutex
	topics        map[string]struct{}
	filters       map[string]Filter
	lastHeartbeat time.Time
	closed        bool
}

func newConnection(transport Transport, subject, tenant string) *Connection {
	now := time.Now()
	return &Connection{
		ID:            uuid.NewString(),
		Transport:     transport,
		Subject:       subject,
		Tenant:        tenant,
		CreatedAt:     now,
		Outbound:      make(chan Message, DefaultQueueSize),
		topics:        make(map[string]struct{}),
		filters:       make(map[string]Filter),
		lastHeartbeat: now,
	}
}

// Topics returns the connection's current subscription set.
func (c *Connection) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

func (c *Connection) addTopic(topic string, filter Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = struct{}{}
	if filter != nil {
		c.filters[topic] = filter
	}
}

func (c *Connection) removeTopic(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
	delete(c.filters, topic)
}

func (c *Connection) filterFor(topic string) (Filter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.filters[topic]
	return f, ok
}

func (c *Connection) subscribedTo(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *Connection) touchHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeat = time.Now()
}

func (c *Connection) idleSince() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastHeartbeat)
}

// enqueue attempts to deliver msg to the connection's outbound queue.
// Overflow drops the message and increments the drop counter rather than
// blocking the bus consumer (§4.6).
func (c *Connection) enqueue(msg Message) bool {
	select {
	case c.Outbound <- msg:
		return true
	default:
		c.mu.Lock()
		c.DropCount++
		c.mu.Unlock()
		return false
	}
}

// drops returns the connection's current drop count under its lock.
func (c *Connection) drops() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.DropCount
}

func (c *Connection) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}
