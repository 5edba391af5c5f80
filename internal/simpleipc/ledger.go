// ledger.go tracks the last processed modification time per request ID.
//
// The watcher can report the same command file more than once (a create and
// one or more writes). A file is only processed when its modification time is
// strictly newer than the one recorded for its request ID, and the new time is
// recorded before the file is read so a second notification racing the first
// is dropped.
package simpleipc

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// defaultMaxEntries bounds the ledger. Command files are deleted once read,
// so forgetting an old request ID cannot cause a redelivery of the same file.
const defaultMaxEntries = 1000

// Ledger maps request IDs to the modification time last processed.
// Safe for concurrent use.
type Ledger struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	maxEntries int
	logger     *slog.Logger
}

// NewLedger creates an empty ledger.
func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{
		seen:       make(map[string]time.Time),
		maxEntries: defaultMaxEntries,
		logger:     logger,
	}
}

// Advance records modTime for requestID if it is strictly newer than the
// recorded value. Returns true when the caller should process the file.
func (l *Ledger) Advance(requestID string, modTime time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.seen[requestID]; ok && !modTime.After(last) {
		l.logger.Debug("skipping already processed command",
			slog.String("request_id", requestID),
		)
		return false
	}

	l.seen[requestID] = modTime
	if len(l.seen) > l.maxEntries {
		l.evictOldest()
	}
	return true
}

// evictOldest drops the oldest tenth of the entries. Caller must hold l.mu.
func (l *Ledger) evictOldest() {
	toRemove := l.maxEntries / 10
	if toRemove < 1 {
		toRemove = 1
	}

	type entry struct {
		id   string
		time time.Time
	}
	entries := make([]entry, 0, len(l.seen))
	for id, t := range l.seen {
		entries = append(entries, entry{id: id, time: t})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})

	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(l.seen, entries[i].id)
	}

	l.logger.Debug("evicted old request IDs",
		slog.Int("removed", toRemove),
		slog.Int("remaining", len(l.seen)),
	)
}

// Reset forgets every request ID.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.seen = make(map[string]time.Time)
	l.mu.Unlock()
}

// Len returns the number of tracked request IDs.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
