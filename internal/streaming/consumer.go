package streaming

import (
	"context"
	"sync"
	"time"

	"github.com/quantedge/access-layer/infrastructure/logging"
)

// BusMessage is a single message observed on the external message bus,
// already decoded to a topic + payload + partition/offset coordinates
// (§3 Streaming connection / §4.6 Bus consumer).
type BusMessage struct {
	Topic     string
	Payload   map[string]interface{}
	Partition int32
	Offset    int64
}

// Bus is the minimal surface the streaming fabric needs from the external
// message broker (out of scope per spec.md §1: "the message bus broker").
// EnsureSubscribed is idempotent and safe to call repeatedly for the same
// topic. Messages returns the single channel the consumer loop drains;
// implementations fan every subscribed topic into this one channel,
// mirroring a single consumer-group poll loop.
type Bus interface {
	EnsureSubscribed(ctx context.Context, topic string) error
	Messages() <-chan BusMessage
	Close() error
}

// InProcBus is an in-process stand-in for the external broker, used for
// local development and tests. It lets callers Publish messages directly;
// a real deployment would replace this with a broker client satisfying
// the same Bus interface (the broker's own wire protocol and consumer
// group internals are out of scope per spec.md §1).
type InProcBus struct {
	mu          sync.Mutex
	subscribed  map[string]struct{}
	messages    chan BusMessage
	closed      bool
}

// NewInProcBus builds an InProcBus with the given outbound channel depth.
func NewInProcBus(bufferSize int) *InProcBus {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &InProcBus{
		subscribed: make(map[string]struct{}),
		messages:   make(chan BusMessage, bufferSize),
	}
}

// EnsureSubscribed idempotently marks topic as subscribed, guarded by a
// mutex so only one consumer-subscribe call per topic is ever in flight
// (§4.6 Subscribe).
func (b *InProcBus) EnsureSubscribed(_ context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed[topic] = struct{}{}
	return nil
}

// Messages returns the channel the Consumer drains.
func (b *InProcBus) Messages() <-chan BusMessage {
	return b.messages
}

// Publish injects a message as if observed from the broker. Offset is
// assigned as a monotonically increasing per-call counter; callers that
// need specific partition/offset values should set them on msg directly
// via PublishAt.
func (b *InProcBus) Publish(topic string, payload map[string]interface{}) {
	b.PublishAt(topic, payload, 0, nextOffset())
}

// PublishAt injects a message with an explicit partition/offset.
func (b *InProcBus) PublishAt(topic string, payload map[string]interface{}, partition int32, offset int64) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	b.messages <- BusMessage{Topic: topic, Payload: payload, Partition: partition, Offset: offset}
}

// Close stops accepting new messages.
func (b *InProcBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.messages)
	return nil
}

var offsetMu sync.Mutex
var offsetSeq int64

func nextOffset() int64 {
	offsetMu.Lock()
	defer offsetMu.Unlock()
	offsetSeq++
	return offsetSeq
}

// Consumer is the long-running loop described in §4.6 Bus consumer: for
// each incoming message, resolve topic -> subscriber set, apply each
// subscriber's filter, and enqueue matches into the subscriber's bounded
// outbound queue. Back-pressure is per-subscriber and never blocks the
// consumer loop itself.
type Consumer struct {
	bus      Bus
	registry *Registry
	logger   *logging.Logger
}

// NewConsumer builds a Consumer wired to bus and registry.
func NewConsumer(bus Bus, registry *Registry, logger *logging.Logger) *Consumer {
	return &Consumer{bus: bus, registry: registry, logger: logger}
}

// Run drains the bus until ctx is cancelled or the bus channel closes.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.bus.Messages():
			if !ok {
				return
			}
			c.dispatch(msg)
		}
	}
}

func (c *Consumer) dispatch(msg BusMessage) {
	subscribers := c.registry.subscribersForTopic(msg.Topic)
	if len(subscribers) == 0 {
		return
	}
	frame := Message{
		Topic:     msg.Topic,
		Data:      msg.Payload,
		Timestamp: time.Now().UTC(),
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
	for _, conn := range subscribers {
		filter, hasFilter := conn.filterFor(msg.Topic)
		if hasFilter && !filter.matches(msg.Payload) {
			continue
		}
		if !conn.enqueue(frame) {
			if c.logger != nil {
				c.logger.Warn(context.Background(), "streaming outbound queue overflow, message dropped", map[string]interface{}{
					"connection_id": conn.ID,
					"topic":         msg.Topic,
				})
			}
		}
	}
}
