// Package snapshot defines the cached per-user context model: the user's
// task list and recent mood logs, stamped with the time they were fetched.
package snapshot

import (
	"sort"
	"time"
)

// Snapshot status values. Exactly one of Tasks/Moods or ErrorMessage is
// meaningful, determined by Status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	// maxRecentMoods bounds how many mood entries a snapshot carries.
	maxRecentMoods = 5
	// moodLookback is how far back mood entries are considered recent.
	moodLookback = 3 * 24 * time.Hour
)

// Task is a single to-do item. Field tags match the remote Tasks table
// columns so rows decode directly.
type Task struct {
	Name     string `json:"taskName"`
	Done     bool   `json:"taskStatus"`
	Priority string `json:"priority,omitempty"`
	Date     string `json:"date,omitempty"`
}

// Mood is a single mood check-in. Tags match the Mood_Logs columns.
type Mood struct {
	Label     string    `json:"mood"`
	Intensity int       `json:"intensity,omitempty"`
	LoggedAt  time.Time `json:"created_at"`
}

// Snapshot is a point-in-time copy of a user's tasks and moods, or the
// record of a failed fetch. It is the unit persisted by the store.
type Snapshot struct {
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	FetchedAt    time.Time `json:"fetched_at"`
	Tasks        []Task    `json:"tasks"`
	Moods        []Mood    `json:"moods"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Success builds a success snapshot stamped at now.
func Success(userID string, tasks []Task, moods []Mood, now time.Time) Snapshot {
	if tasks == nil {
		tasks = []Task{}
	}
	if moods == nil {
		moods = []Mood{}
	}
	return Snapshot{
		UserID:    userID,
		Status:    StatusSuccess,
		FetchedAt: now.UTC(),
		Tasks:     tasks,
		Moods:     moods,
	}
}

// Failure builds an error snapshot stamped at now.
func Failure(userID string, err error, now time.Time) Snapshot {
	return Snapshot{
		UserID:       userID,
		Status:       StatusError,
		FetchedAt:    now.UTC(),
		ErrorMessage: err.Error(),
	}
}

// OK reports whether the snapshot holds data rather than a fetch error.
func (s Snapshot) OK() bool {
	return s.Status == StatusSuccess
}

// Age returns how old the snapshot is relative to now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// BoundMoods keeps only moods logged within the lookback window relative
// to now, ordered most-recent-first and capped at maxRecentMoods entries.
func BoundMoods(moods []Mood, now time.Time) []Mood {
	cutoff := now.Add(-moodLookback)
	recent := make([]Mood, 0, len(moods))
	for _, m := range moods {
		if m.LoggedAt.Before(cutoff) {
			continue
		}
		recent = append(recent, m)
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].LoggedAt.After(recent[j].LoggedAt)
	})
	if len(recent) > maxRecentMoods {
		recent = recent[:maxRecentMoods]
	}
	return recent
}
