package refresh

import (
	"log/slog"
	"time"
)

// Janitor purges store entries older than the retention window. It is
// idempotent and safe to run alongside refreshes: it relies only on the
// store's atomic per-key operations.
type Janitor struct {
	store     Store
	retention time.Duration
	clock     Clock
	logger    *slog.Logger
}

// NewJanitor creates a Janitor. retention <= 0 picks DefaultRetention.
func NewJanitor(st Store, retention time.Duration, clock Clock) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Janitor{
		store:     st,
		retention: retention,
		clock:     clock,
		logger:    slog.Default(),
	}
}

// Run sweeps the store once, deleting every entry whose age exceeds the
// retention window. Errors on individual entries are logged and do not
// abort the sweep of the remaining entries.
func (j *Janitor) Run() {
	ids, err := j.store.ListIDs()
	if err != nil {
		j.logger.Error("janitor sweep aborted: listing entries", "error", err)
		return
	}

	now := j.clock.Now()
	removed := 0
	for _, id := range ids {
		entry, ok, err := j.store.Get(id)
		if err != nil {
			j.logger.Warn("janitor skipping entry", "user_id", id, "error", err)
			continue
		}
		if !ok {
			continue // deleted by a concurrent sweep or writer
		}
		if entry.Age(now) <= j.retention {
			continue
		}
		if err := j.store.Delete(id); err != nil {
			j.logger.Warn("janitor delete failed", "user_id", id, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("janitor sweep complete", "removed", removed, "scanned", len(ids))
	}
}
