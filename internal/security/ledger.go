package security

import (
	"sort"
	"sync"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

const (
	// DefaultMaxViolations caps the in-memory ledger.
	DefaultMaxViolations = 1000
	// DefaultRetention is how long resolved violations are kept before the
	// sweep purges them.
	DefaultRetention = 30 * 24 * time.Hour
)

// Ledger is the bounded in-memory violation store. Oldest entries are
// evicted FIFO when the capacity cap is exceeded, regardless of resolution
// state. Consumers always receive copies, never references into the ledger.
type Ledger struct {
	mu      sync.Mutex
	entries []models.SecurityViolation
	max     int
	now     func() time.Time
}

// NewLedger creates a Ledger holding at most max violations.
func NewLedger(max int) *Ledger {
	if max <= 0 {
		max = DefaultMaxViolations
	}
	return &Ledger{max: max, now: time.Now}
}

// Append records a violation, evicting the oldest entry when full.
func (l *Ledger) Append(v models.SecurityViolation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, v)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Resolve marks the violation with the given id resolved. Returns false if
// the id is unknown or the entry is already resolved.
func (l *Ledger) Resolve(id, resolvedBy string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			if l.entries[i].Resolved {
				return false
			}
			now := l.now().UTC()
			l.entries[i].Resolved = true
			l.entries[i].ResolvedAt = &now
			l.entries[i].ResolvedBy = resolvedBy
			return true
		}
	}
	return false
}

// Sweep purges entries that are resolved and older than the retention
// window. It snapshots under the lock and filters, so concurrent appends
// are never iterated mid-mutation. Returns the number purged.
func (l *Ledger) Sweep(retention time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-retention)
	kept := l.entries[:0:0]
	purged := 0
	for _, v := range l.entries {
		if v.Resolved && v.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, v)
	}
	l.entries = kept
	return purged
}

// List returns copies of ledger entries, newest first. When resolved is
// non-nil only entries matching that resolution state are returned.
func (l *Ledger) List(resolved *bool, limit int) []models.SecurityViolation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.SecurityViolation, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		v := l.entries[i]
		if resolved != nil && v.Resolved != *resolved {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the current entry count.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Statistics computes the point-in-time ledger view: totals, rolling
// severity breakdowns, and the top-N violation types and principals.
func (l *Ledger) Statistics(topN int) models.SecurityStatistics {
	if topN <= 0 {
		topN = 5
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stats := models.SecurityStatistics{
		Last24hBySev: map[models.Severity]int{},
		Last7dBySev:  map[models.Severity]int{},
	}
	typeCounts := map[string]int{}
	principalCounts := map[string]int{}

	for _, v := range l.entries {
		stats.Total++
		if v.Resolved {
			stats.Resolved++
		} else {
			stats.Unresolved++
		}
		age := now.Sub(v.Timestamp)
		if age <= 24*time.Hour {
			stats.Last24hBySev[v.Severity]++
		}
		if age <= 7*24*time.Hour {
			stats.Last7dBySev[v.Severity]++
		}
		typeCounts[v.Type]++
		if v.PrincipalID != "" {
			principalCounts[v.PrincipalID]++
		}
	}

	stats.TopTypes = topTypes(typeCounts, topN)
	stats.TopPrincipals = topPrincipals(principalCounts, topN)
	return stats
}

func topTypes(counts map[string]int, n int) []models.TypeCount {
	out := make([]models.TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, models.TypeCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topPrincipals(counts map[string]int, n int) []models.PrincipalCount {
	out := make([]models.PrincipalCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, models.PrincipalCount{PrincipalID: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].PrincipalID < out[j].PrincipalID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
