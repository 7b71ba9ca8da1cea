// Package bus defines the partitioned message bus contract ALUSKORT relies
// on (spec.md §1 Non-goals: "a durable partitioned message bus with per-key
// ordering" is an external collaborator, not something this repo
// implements). It provides the Go interface every producer/consumer codes
// against plus an in-memory fake used by tests, grounded in the teacher's
// pkg/events event-dispatch style (channel-per-subscriber, explicit
// Close/drain) adapted from WebSocket fan-out to bus semantics.
package bus

import (
	"context"
	"sync"
)

// Closed topic names (§6 "Message bus topics (closed names)").
const (
	TopicAlertsRaw        = "alerts.raw"
	TopicAlertsNormalized = "alerts.normalized"
	TopicIncidentsEnriched = "incidents.enriched"

	TopicPriorityCritical = "priority.critical"
	TopicPriorityHigh     = "priority.high"
	TopicPriorityNormal   = "priority.normal"
	TopicPriorityLow      = "priority.low"

	TopicCTEMRawPrefix    = "ctem.raw." // + {wiz,snyk,garak,art,burp,custom}
	TopicCTEMNormalized   = "ctem.normalized"

	TopicActionsPending = "actions.pending"
	TopicAuditEvents    = "audit.events"

	TopicAlertsRawDLQ      = "alerts.raw.dlq"
	TopicPriorityDLQSuffix = ".dlq"
	TopicCTEMNormalizedDLQ = "ctem.normalized.dlq"
)

// AuditEventsPartitions and AuditEventsRetentionDays are the declared
// topology of the audit.events topic (§6): 4 partitions, 90-day retention,
// tenant_id as key.
const (
	AuditEventsPartitions    = 4
	AuditEventsRetentionDays = 90
)

// Message is one bus envelope. Key governs partitioning/ordering; for
// audit.events the key MUST be tenant_id (§4.E "ordered per tenant (bus
// key = tenant_id)").
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
}

// Producer publishes messages. Implementations must preserve per-key
// ordering on a given topic (the bus's own guarantee; this interface just
// names the contract so the rest of the codebase can be written against
// it).
type Producer interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Handler processes one message. Returning an error does not retry
// automatically -- callers wrap Handler with their own bounded-retry
// policy (§7 "Transient infrastructure ... local retry with bounded
// exponential backoff") before deciding to DLQ.
type Handler func(ctx context.Context, msg Message) error

// Consumer subscribes to a topic with a consumer group, invoking Handler
// for each message in arrival order within a partition. Commit semantics
// are at-least-once (§4.E "At-least-once delivery is expected; duplicate
// suppression is provided by UNIQUE(tenant_id, sequence_number)").
type Consumer interface {
	// Subscribe blocks, dispatching messages to handler until ctx is
	// cancelled or an unrecoverable subscription error occurs.
	Subscribe(ctx context.Context, topic string, groupID string, handler Handler) error
	Close() error
}

// Bus bundles a Producer and Consumer, the shape every service wires
// against.
type Bus interface {
	Producer
	Consumer
}

// InMemoryBus is a single-process fake bus for tests: ordering within a
// key is preserved (messages sharing a key are delivered to every
// subscriber in publish order), there is no real partitioning or
// durability, and DLQ topics are just ordinary topics a test can also
// subscribe to. It exists so pkg/audit, pkg/orchestrator, etc. can be unit
// tested without a live broker, mirroring the teacher's emphasis on fast
// non-integration tests (pkg/events tests run against an in-process
// ConnectionManager rather than a real WebSocket server).
type InMemoryBus struct {
	mu          sync.Mutex
	subscribers map[string][]subscriber
	closed      bool
}

type subscriber struct {
	groupID string
	handler Handler
}

// NewInMemoryBus constructs an empty fake bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subscribers: make(map[string][]subscriber)}
}

func (b *InMemoryBus) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	subs := append([]subscriber(nil), b.subscribers[msg.Topic]...)
	b.mu.Unlock()

	// Dispatch synchronously, one group at a time, to keep per-key
	// ordering deterministic and trivial to reason about in tests: a
	// publish call returns only once every current subscriber has
	// processed it.
	for _, s := range subs {
		if err := s.handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *InMemoryBus) Subscribe(ctx context.Context, topic string, groupID string, handler Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.subscribers[topic] = append(b.subscribers[topic], subscriber{groupID: groupID, handler: handler})
	b.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = nil
	return nil
}
