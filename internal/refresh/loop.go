package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/avelar/uplift/internal/snapshot"
)

// refreshConcurrency bounds the fan-out of a bulk refresh so the remote
// database is not hammered.
const refreshConcurrency = 4

// Enumerator exposes the provider's optional user discovery capability.
type Enumerator interface {
	EnumerateUsers(ctx context.Context) ([]string, error)
}

// SessionPruner drops idle in-memory conversation sessions. Implemented
// by *chat.Sessions; optional.
type SessionPruner interface {
	PruneIdle() int
}

// Outcome is the per-user result of one bulk refresh pass.
type Outcome struct {
	UserID string `json:"user_id"`
	Status string `json:"status"` // snapshot.StatusSuccess or snapshot.StatusError
}

// Loop drives the periodic full-population refresh and the daily janitor
// sweep. It never participates in request-time decisions.
type Loop struct {
	orch     *Orchestrator
	store    Store
	enum     Enumerator
	janitor  *Janitor
	sessions SessionPruner
	interval time.Duration
	logger   *slog.Logger
}

// NewLoop creates the periodic loop. interval <= 0 defaults to 30 minutes.
// sessions may be nil.
func NewLoop(orch *Orchestrator, st Store, enum Enumerator, janitor *Janitor, sessions SessionPruner, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Loop{
		orch:     orch,
		store:    st,
		enum:     enum,
		janitor:  janitor,
		sessions: sessions,
		interval: interval,
		logger:   slog.Default(),
	}
}

// RefreshAll synchronously refreshes every known user: the union of the
// store's entries and the provider's enumeration. Individual failures are
// collected as outcomes and never abort the batch.
func (l *Loop) RefreshAll(ctx context.Context) []Outcome {
	ids, err := l.knownUsers(ctx)
	if err != nil {
		l.logger.Error("bulk refresh aborted: enumerating users", "error", err)
		return nil
	}

	outcomes := make([]Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(refreshConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			snap, err := l.orch.RefreshSync(ctx, id)
			status := snap.Status
			if err != nil {
				l.logger.Warn("bulk refresh: store write failed", "user_id", id, "error", err)
				status = snapshot.StatusError
			}
			outcomes[i] = Outcome{UserID: id, Status: status}
			return nil
		})
	}
	g.Wait()

	l.logger.Info("bulk refresh complete", "users", len(ids))
	return outcomes
}

// knownUsers unions store entries with provider-discovered users. A failed
// enumeration degrades to store entries only; a failed store listing with a
// working enumeration degrades the other way. Both failing is fatal to the
// pass.
func (l *Loop) knownUsers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	storeIDs, storeErr := l.store.ListIDs()
	if storeErr != nil {
		l.logger.Warn("bulk refresh: listing store entries", "error", storeErr)
	}
	for _, id := range storeIDs {
		seen[id] = struct{}{}
	}

	var enumErr error
	if l.enum != nil {
		var remote []string
		remote, enumErr = l.enum.EnumerateUsers(ctx)
		if enumErr != nil {
			l.logger.Warn("bulk refresh: enumerating remote users", "error", enumErr)
		}
		for _, id := range remote {
			seen[id] = struct{}{}
		}
	}

	if storeErr != nil && enumErr != nil {
		return nil, fmt.Errorf("no user source available: %w", enumErr)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// sweep runs the janitor and prunes idle conversation sessions.
func (l *Loop) sweep() {
	l.janitor.Run()
	if l.sessions != nil {
		if n := l.sessions.PruneIdle(); n > 0 {
			l.logger.Info("pruned idle sessions", "count", n)
		}
	}
}

// Run performs one bulk refresh immediately, then schedules the refresh
// interval and the daily sweep, blocking until ctx is cancelled. A pass
// that has started is never cancelled mid-flight.
func (l *Loop) Run(ctx context.Context) error {
	jobCtx := context.WithoutCancel(ctx)

	l.RefreshAll(jobCtx)

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", l.interval), func() {
		l.RefreshAll(jobCtx)
	}); err != nil {
		return fmt.Errorf("scheduling bulk refresh: %w", err)
	}
	if _, err := c.AddFunc("@daily", l.sweep); err != nil {
		return fmt.Errorf("scheduling janitor sweep: %w", err)
	}
	c.Start()

	<-ctx.Done()

	// Stop scheduling and wait for any in-flight pass to finish.
	<-c.Stop().Done()
	return nil
}
