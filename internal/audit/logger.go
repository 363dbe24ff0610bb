package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/events"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/storage"
	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	defaultBuffer = 1024
	maxQueryLimit = 1000
	maxTrailHours = 168
	writeTimeout  = 5 * time.Second
)

// EventStore is the minimal interface the Logger needs from storage.
type EventStore interface {
	WriteAuditEvent(ctx context.Context, event *models.AuditEvent) error
	QueryAuditEvents(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEvent, error)
}

// Logger writes structured audit events. Writes are fire-and-forget: Log
// enqueues onto a bounded buffer drained by a single writer goroutine, so a
// slow or unavailable store never blocks or fails the caller's request.
type Logger struct {
	store EventStore
	bus   *events.Bus
	queue chan *models.AuditEvent

	mu      sync.Mutex
	dropped int

	done chan struct{}
	once sync.Once
}

// NewLogger creates a Logger and starts its writer goroutine.
func NewLogger(store EventStore, bus *events.Bus) *Logger {
	l := &Logger{
		store: store,
		bus:   bus,
		queue: make(chan *models.AuditEvent, defaultBuffer),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// Log records an audit event. Never blocks: when the buffer is full the
// event is dropped with a warning and an AuditWriteDropped bus event.
// Business actions must not depend on audit-store latency.
func (l *Logger) Log(event *models.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case l.queue <- event:
	default:
		l.mu.Lock()
		l.dropped++
		n := l.dropped
		l.mu.Unlock()
		log.Warn().Str("entity_type", event.EntityType).Str("action", event.Action).
			Int("dropped_total", n).Msg("audit buffer full, dropping event")
		if l.bus != nil {
			l.bus.Publish(events.AuditWriteDropped{Count: 1})
		}
	}
}

// run drains the queue. One retry per event; a second failure drops it with
// a warning so the queue keeps moving under a down store.
func (l *Logger) run() {
	for event := range l.queue {
		err := l.write(event)
		if err != nil {
			// Fresh deadline: the first attempt may have consumed its
			// whole budget waiting on the store.
			err = l.write(event)
		}
		if err != nil {
			l.mu.Lock()
			l.dropped++
			l.mu.Unlock()
			log.Warn().Err(err).Str("entity_type", event.EntityType).
				Str("action", event.Action).Msg("audit write failed, dropping event")
			if l.bus != nil {
				l.bus.Publish(events.AuditWriteDropped{Count: 1})
			}
		}
	}
	close(l.done)
}

// write performs one store attempt under its own timeout.
func (l *Logger) write(event *models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return l.store.WriteAuditEvent(ctx, event)
}

// Close stops accepting events and waits for the queue to drain.
func (l *Logger) Close() {
	l.once.Do(func() {
		close(l.queue)
		<-l.done
	})
}

// Dropped returns the number of events shed so far.
func (l *Logger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Query retrieves audit events matching the filter, newest first unless the
// filter says otherwise. The filter is validated before any store access.
func (l *Logger) Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEvent, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}
	return l.store.QueryAuditEvents(ctx, filter)
}

func validateFilter(filter storage.AuditFilter) error {
	if filter.Limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	if filter.Limit > maxQueryLimit {
		return fmt.Errorf("limit must not exceed %d", maxQueryLimit)
	}
	if filter.Offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", filter.Severity)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return fmt.Errorf("date range is inverted")
	}
	return nil
}

// SecurityTrail returns security-relevant events inside a rolling window.
// Hours are clamped to [1, 168]; zero means the default 24.
func (l *Logger) SecurityTrail(ctx context.Context, principalID string, hours int) ([]*models.AuditEvent, error) {
	if hours <= 0 {
		hours = 24
	}
	if hours > maxTrailHours {
		hours = maxTrailHours
	}
	from := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return l.store.QueryAuditEvents(ctx, storage.AuditFilter{
		PerformedBy: principalID,
		From:        &from,
		Limit:       maxQueryLimit,
	})
}

// ComplianceReport aggregates all events inside [from, to].
func (l *Logger) ComplianceReport(ctx context.Context, from, to time.Time) (*models.ComplianceReport, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("date range is inverted")
	}
	evts, err := l.store.QueryAuditEvents(ctx, storage.AuditFilter{
		From:        &from,
		To:          &to,
		OldestFirst: true,
	})
	if err != nil {
		return nil, err
	}

	summary := models.ComplianceSummary{
		TotalEvents:  len(evts),
		ByAction:     map[string]int{},
		ByEntityType: map[string]int{},
		BySeverity:   map[models.Severity]int{},
		From:         from,
		To:           to,
	}
	actors := map[string]struct{}{}
	for _, e := range evts {
		summary.ByAction[e.Action]++
		summary.ByEntityType[e.EntityType]++
		if e.Severity != "" {
			summary.BySeverity[e.Severity]++
		}
		if e.PerformedBy != "" {
			actors[e.PerformedBy] = struct{}{}
		}
	}
	summary.UniqueActors = len(actors)

	return &models.ComplianceReport{Summary: summary, Events: evts}, nil
}
