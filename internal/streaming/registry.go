package streaming

import (
	"context"
	"sync"
	"time"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/logging"
)

// DefaultHeartbeatTimeout is how long a connection may go without a
// heartbeat before the sweeper destroys it (§4.6).
const DefaultHeartbeatTimeout = 30 * time.Second

// DefaultSweepInterval is how often the background sweeper runs (§4.6).
const DefaultSweepInterval = 10 * time.Second

// TopicSubscriber is satisfied by the bus Consumer: it lazily and
// idempotently ensures the broker consumer is subscribed to topic, guarded
// by a mutex so only one consumer-subscribe call per topic is in flight.
type TopicSubscriber interface {
	EnsureSubscribed(ctx context.Context, topic string) error
}

// Registry owns every live streaming connection and the four indices
// described in §3/§5: by id, by subject, by tenant, by topic. All four are
// guarded by the single registry lock; no index ever references a connection after its
// destruction completes (invariant 6).
type Registry struct {
	logger            *logging.Logger
	bus               TopicSubscriber
	maxConnections    int
	heartbeatTimeout  time.Duration

	mu         sync.RWMutex
	byID       map[string]*Connection
	bySubject  map[string]map[string]struct{}
	byTenant   map[string]map[string]struct{}
	byTopic    map[string]map[string]struct{}

	knownTopics map[string]struct{}

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// RegistryStats is returned by GetStats / the get_stats WS action.
type RegistryStats struct {
	TotalConnections int            `json:"total_connections"`
	BySubject        int            `json:"unique_subjects"`
	ByTenant         int            `json:"unique_tenants"`
	TopicCounts      map[string]int `json:"topic_subscriber_counts"`
	TotalDrops       int64          `json:"total_drops"`
}

// NewRegistry builds a Registry. topics is the set of valid topic names a
// connection may subscribe to (§4.6 "refuse unknown topics").
func NewRegistry(bus TopicSubscriber, topics []string, maxConnections int, heartbeatTimeout time.Duration, logger *logging.Logger) *Registry {
	if maxConnections <= 0 {
		maxConnections = 5000
	}
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	known := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		known[t] = struct{}{}
	}
	return &Registry{
		logger:           logger,
		bus:              bus,
		maxConnections:   maxConnections,
		heartbeatTimeout: heartbeatTimeout,
		byID:             make(map[string]*Connection),
		bySubject:        make(map[string]map[string]struct{}),
		byTenant:         make(map[string]map[string]struct{}),
		byTopic:          make(map[string]map[string]struct{}),
		knownTopics:      known,
		stopSweep:        make(chan struct{}),
	}
}

// KnownTopic reports whether topic is in the registry's declared topic set.
func (reg *Registry) KnownTopic(topic string) bool {
	_, ok := reg.knownTopics[topic]
	return ok
}

// Topics returns the declared topic set.
func (reg *Registry) Topics() []string {
	out := make([]string, 0, len(reg.knownTopics))
	for t := range reg.knownTopics {
		out = append(out, t)
	}
	return out
}

// Accept registers a new connection, enforcing the max-connections soft
// limit (§4.6 Accept).
func (reg *Registry) Accept(ctx context.Context, transport Transport, subject, tenant string) (*Connection, error) {
	reg.mu.Lock()
	if len(reg.byID) >= reg.maxConnections {
		reg.mu.Unlock()
		return nil, accesserrors.ConnectionLimitExceeded(reg.maxConnections)
	}
	conn := newConnection(transport, subject, tenant)
	reg.byID[conn.ID] = conn
	indexAdd(reg.bySubject, subject, conn.ID)
	indexAdd(reg.byTenant, tenant, conn.ID)
	reg.mu.Unlock()

	if reg.logger != nil {
		reg.logger.WithContext(ctx).Info("streaming connection accepted")
	}
	return conn, nil
}

// Get looks up a connection by id.
func (reg *Registry) Get(connID string) (*Connection, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	c, ok := reg.byID[connID]
	return c, ok
}

// Subscribe implements §4.6 Subscribe: refuses unknown topics, lazily
// ensures the bus consumer is subscribed, indexes the connection under the
// topic, and stores the per-topic filter.
func (reg *Registry) Subscribe(ctx context.Context, connID, topic string, filter Filter) error {
	if !reg.KnownTopic(topic) {
		return accesserrors.UnknownTopic(topic)
	}

	reg.mu.RLock()
	conn, ok := reg.byID[connID]
	reg.mu.RUnlock()
	if !ok {
		return accesserrors.NotFound("connection", connID)
	}

	if reg.bus != nil {
		if err := reg.bus.EnsureSubscribed(ctx, topic); err != nil {
			return accesserrors.ServiceUnavailable("message-bus", err)
		}
	}

	conn.addTopic(topic, filter)

	reg.mu.Lock()
	indexAdd(reg.byTopic, topic, connID)
	reg.mu.Unlock()
	return nil
}

// Unsubscribe implements §4.6 Unsubscribe. The bus subscription is
// retained even if the topic's subscriber index empties (no reference
// counting, per spec).
func (reg *Registry) Unsubscribe(connID, topic string) error {
	reg.mu.RLock()
	conn, ok := reg.byID[connID]
	reg.mu.RUnlock()
	if !ok {
		return accesserrors.NotFound("connection", connID)
	}

	conn.removeTopic(topic)

	reg.mu.Lock()
	indexRemove(reg.byTopic, topic, connID)
	reg.mu.Unlock()
	return nil
}

// Destroy tears down a connection: closes its transport-facing outbound
// channel and removes it from every index, so it appears in none of them
// once this returns (invariant 6).
func (reg *Registry) Destroy(connID string) {
	reg.mu.Lock()
	conn, ok := reg.byID[connID]
	if !ok {
		reg.mu.Unlock()
		return
	}
	if !conn.markClosed() {
		reg.mu.Unlock()
		return
	}
	delete(reg.byID, connID)
	indexRemove(reg.bySubject, conn.Subject, connID)
	indexRemove(reg.byTenant, conn.Tenant, connID)
	for _, topic := range conn.Topics() {
		indexRemove(reg.byTopic, topic, connID)
	}
	reg.mu.Unlock()

	close(conn.Outbound)
}

// subscribersForTopic returns the live connections subscribed to topic,
// used by the bus Consumer to fan out an incoming message.
func (reg *Registry) subscribersForTopic(topic string) []*Connection {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := reg.byTopic[topic]
	out := make([]*Connection, 0, len(ids))
	for id := range ids {
		if c, ok := reg.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Stats reports the registry counters surfaced by get_stats (§4.6,
// drop-counter carried in from §12).
func (reg *Registry) Stats() RegistryStats {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	topicCounts := make(map[string]int, len(reg.byTopic))
	for topic, ids := range reg.byTopic {
		topicCounts[topic] = len(ids)
	}
	var totalDrops int64
	for _, c := range reg.byID {
		totalDrops += c.drops()
	}
	return RegistryStats{
		TotalConnections: len(reg.byID),
		BySubject:        len(reg.bySubject),
		ByTenant:         len(reg.byTenant),
		TopicCounts:      topicCounts,
		TotalDrops:       totalDrops,
	}
}

// StartSweeper launches the background heartbeat-timeout sweeper (§4.6
// Heartbeat: "a background sweeper every 10 s removes connections whose
// last_heartbeat is older than the configured timeout").
func (reg *Registry) StartSweeper() {
	reg.sweepOnce.Do(func() {
		go reg.sweepLoop()
	})
}

// StopSweeper stops the background sweeper.
func (reg *Registry) StopSweeper() {
	select {
	case <-reg.stopSweep:
	default:
		close(reg.stopSweep)
	}
}

func (reg *Registry) sweepLoop() {
	ticker := time.NewTicker(DefaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			reg.sweepOnce2()
		case <-reg.stopSweep:
			return
		}
	}
}

func (reg *Registry) sweepOnce2() {
	reg.mu.RLock()
	stale := make([]string, 0)
	for id, c := range reg.byID {
		if c.idleSince() > reg.heartbeatTimeout {
			stale = append(stale, id)
		}
	}
	reg.mu.RUnlock()

	for _, id := range stale {
		if reg.logger != nil {
			reg.logger.Warn(context.Background(), "streaming connection heartbeat timeout", map[string]interface{}{"connection_id": id})
		}
		reg.Destroy(id)
	}
}

func indexAdd(index map[string]map[string]struct{}, key, connID string) {
	if key == "" {
		return
	}
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[connID] = struct{}{}
}

func indexRemove(index map[string]map[string]struct{}, key, connID string) {
	if key == "" {
		return
	}
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(index, key)
	}
}
