package events

import (
	"sync"

	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
	"github.com/rs/zerolog/log"
)

// Event is the closed set of bus messages. Each variant carries its full
// payload so subscribers switch on the concrete type instead of probing
// optional fields.
type Event interface {
	eventKind() string
}

// SecurityBreachDetected is published for every recorded violation.
type SecurityBreachDetected struct {
	Violation models.SecurityViolation
	Resource  string
	Action    string
}

// CriticalViolationEscalated is published exactly once per critical violation,
// after the escalation hook has run.
type CriticalViolationEscalated struct {
	Violation models.SecurityViolation
}

// ViolationResolved is published when an operator resolves a ledger entry.
type ViolationResolved struct {
	ID         string
	ResolvedBy string
}

// AuditWriteDropped is published when the audit writer sheds events under
// backpressure.
type AuditWriteDropped struct {
	Count int
}

func (SecurityBreachDetected) eventKind() string     { return "security_breach_detected" }
func (CriticalViolationEscalated) eventKind() string { return "critical_violation_escalated" }
func (ViolationResolved) eventKind() string          { return "violation_resolved" }
func (AuditWriteDropped) eventKind() string          { return "audit_write_dropped" }

// Bus is an in-process publish/subscribe channel. Publish never blocks: a
// subscriber that cannot keep up loses events (with a warning) rather than
// stalling the publisher mid-request.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The unsubscribe function closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("event", ev.eventKind()).Msg("event bus subscriber lagging, dropping event")
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
