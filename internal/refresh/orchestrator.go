// Package refresh owns the cache freshness policy: when cached user
// context is served as-is, when it is refetched synchronously, when a
// background refresh is scheduled, and when stale entries are purged.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelar/uplift/internal/snapshot"
)

const (
	// DefaultFreshness is how long a success snapshot is served without a
	// blocking refetch.
	DefaultFreshness = 10 * time.Minute
	// DefaultErrorFreshness is the shorter window applied to persisted
	// error snapshots so failed fetches are retried promptly.
	DefaultErrorFreshness = time.Minute
	// DefaultRetention is how old an entry may get before the janitor
	// purges it.
	DefaultRetention = 7 * 24 * time.Hour
)

// Store is the subset of the snapshot store the refresh layer uses.
// Implemented by *store.Store.
type Store interface {
	Get(userID string) (snapshot.Snapshot, bool, error)
	Put(userID string, snap snapshot.Snapshot) error
	Delete(userID string) error
	ListIDs() ([]string, error)
}

// Provider produces a fresh snapshot for a user. A provider failure is
// reported inside the snapshot, never as an error.
type Provider interface {
	Fetch(ctx context.Context, userID string) snapshot.Snapshot
}

// Submitter schedules a fire-and-forget task. Implemented by *worker.Pool.
type Submitter interface {
	Submit(fn func(context.Context)) bool
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options tunes the freshness policy. Zero values pick the defaults.
type Options struct {
	Freshness      time.Duration
	ErrorFreshness time.Duration
	Clock          Clock
}

// Orchestrator decides, per context request, whether to serve the cached
// snapshot, refetch synchronously, or schedule a background refresh.
type Orchestrator struct {
	store    Store
	provider Provider
	tasks    Submitter
	clock    Clock
	logger   *slog.Logger

	freshness    time.Duration
	errFreshness time.Duration
}

// NewOrchestrator wires the freshness policy over a store and provider.
func NewOrchestrator(st Store, p Provider, tasks Submitter, opts Options) *Orchestrator {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.ErrorFreshness <= 0 {
		opts.ErrorFreshness = DefaultErrorFreshness
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Orchestrator{
		store:        st,
		provider:     p,
		tasks:        tasks,
		clock:        opts.Clock,
		logger:       slog.Default(),
		freshness:    opts.Freshness,
		errFreshness: opts.ErrorFreshness,
	}
}

// Context returns the snapshot to answer a request for userID with.
//
// A fresh entry is returned immediately and a background refresh is
// scheduled for next time. A stale or absent entry forces a synchronous
// refresh. Provider failures surface as an error-status snapshot; the
// returned error is reserved for store I/O failures.
func (o *Orchestrator) Context(ctx context.Context, userID string) (snapshot.Snapshot, error) {
	entry, ok, err := o.store.Get(userID)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("reading cached entry: %w", err)
	}

	if ok && o.isFresh(entry) {
		o.scheduleBackgroundRefresh(userID)
		return entry, nil
	}

	return o.RefreshSync(ctx, userID)
}

// RefreshSync fetches a snapshot for userID and persists it, success or
// error. The snapshot is returned even when persisting fails.
func (o *Orchestrator) RefreshSync(ctx context.Context, userID string) (snapshot.Snapshot, error) {
	snap := o.provider.Fetch(ctx, userID)
	if !snap.OK() {
		o.logger.Warn("provider fetch failed", "user_id", userID, "error", snap.ErrorMessage)
	}
	if err := o.store.Put(userID, snap); err != nil {
		return snap, fmt.Errorf("storing snapshot for %s: %w", userID, err)
	}
	return snap, nil
}

// isFresh applies the freshness window: an entry exactly at the window
// boundary is still fresh; only age strictly greater than the window
// forces a refetch. Error entries age out on the shorter window.
func (o *Orchestrator) isFresh(entry snapshot.Snapshot) bool {
	window := o.freshness
	if !entry.OK() {
		window = o.errFreshness
	}
	return entry.Age(o.clock.Now()) <= window
}

// scheduleBackgroundRefresh fires an asynchronous refetch whose outcome
// never reaches the current caller. A failed background fetch is logged
// and discarded, leaving the previous cached entry authoritative.
func (o *Orchestrator) scheduleBackgroundRefresh(userID string) {
	o.tasks.Submit(func(ctx context.Context) {
		snap := o.provider.Fetch(ctx, userID)
		if !snap.OK() {
			o.logger.Warn("background refresh failed", "user_id", userID, "error", snap.ErrorMessage)
			return
		}
		if err := o.store.Put(userID, snap); err != nil {
			o.logger.Error("background refresh not persisted", "user_id", userID, "error", err)
		}
	})
}
