package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-key", time.UTC)
	c.now = func() time.Time {
		return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func TestFetch_TodayTasks(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q", got)
		}
		switch r.URL.Path {
		case "/rest/v1/Tasks":
			if got := r.URL.Query().Get("date"); got != "eq.2026-05-10" {
				t.Errorf("date filter = %q", got)
			}
			writeJSON(t, w, []map[string]any{
				{"taskName": "ship release", "taskStatus": false, "priority": "High", "date": "2026-05-10"},
			})
		case "/rest/v1/Mood_Logs":
			writeJSON(t, w, []map[string]any{
				{"mood": "upbeat", "intensity": 4, "created_at": "2026-05-10T08:00:00Z"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	snap := c.Fetch(context.Background(), "u1")
	if !snap.OK() {
		t.Fatalf("expected success, got %+v", snap)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].Name != "ship release" {
		t.Errorf("tasks = %+v", snap.Tasks)
	}
	if len(snap.Moods) != 1 || snap.Moods[0].Label != "upbeat" {
		t.Errorf("moods = %+v", snap.Moods)
	}
	if snap.UserID != "u1" {
		t.Errorf("user id = %q", snap.UserID)
	}
}

// When no tasks exist for today the client retries without the date filter.
func TestFetch_FallsBackToAllTasks(t *testing.T) {
	var taskCalls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/Tasks":
			call := taskCalls.Add(1)
			if call == 1 {
				if !r.URL.Query().Has("date") {
					t.Error("first task query missing date filter")
				}
				writeJSON(t, w, []map[string]any{})
				return
			}
			if r.URL.Query().Has("date") {
				t.Error("fallback task query still has date filter")
			}
			writeJSON(t, w, []map[string]any{
				{"taskName": "backlog item", "taskStatus": true},
			})
		case "/rest/v1/Mood_Logs":
			writeJSON(t, w, []map[string]any{})
		}
	}))

	snap := c.Fetch(context.Background(), "u1")
	if !snap.OK() {
		t.Fatalf("expected success, got %+v", snap)
	}
	if taskCalls.Load() != 2 {
		t.Errorf("task queries = %d, want 2", taskCalls.Load())
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].Name != "backlog item" {
		t.Errorf("tasks = %+v", snap.Tasks)
	}
	if len(snap.Moods) != 0 {
		t.Errorf("moods = %+v", snap.Moods)
	}
}

func TestFetch_BoundsMoods(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/Tasks":
			writeJSON(t, w, []map[string]any{{"taskName": "t"}})
		case "/rest/v1/Mood_Logs":
			// A remote that ignores filters: 10 moods spanning 5 days.
			var rows []map[string]any
			base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
			for i := range 10 {
				rows = append(rows, map[string]any{
					"mood":       fmt.Sprintf("m%d", i),
					"created_at": base.Add(-time.Duration(i) * 12 * time.Hour).Format(time.RFC3339),
				})
			}
			writeJSON(t, w, rows)
		}
	}))

	snap := c.Fetch(context.Background(), "u1")
	if !snap.OK() {
		t.Fatalf("expected success, got %+v", snap)
	}
	if len(snap.Moods) > 5 {
		t.Errorf("moods not bounded: %d entries", len(snap.Moods))
	}
	for i := 1; i < len(snap.Moods); i++ {
		if snap.Moods[i].LoggedAt.After(snap.Moods[i-1].LoggedAt) {
			t.Errorf("moods not most-recent-first at %d", i)
		}
	}
}

func TestFetch_RemoteFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusUnauthorized)
	}))

	snap := c.Fetch(context.Background(), "u1")
	if snap.OK() {
		t.Fatalf("expected error snapshot, got %+v", snap)
	}
	if snap.ErrorMessage == "" {
		t.Error("error snapshot missing message")
	}
	if snap.UserID != "u1" {
		t.Errorf("user id = %q", snap.UserID)
	}
}

func TestEnumerateUsers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/Tasks":
			writeJSON(t, w, []map[string]any{
				{"user_id": "u1"}, {"user_id": "u2"}, {"user_id": "u1"}, {"user_id": ""},
			})
		case "/rest/v1/Mood_Logs":
			writeJSON(t, w, []map[string]any{
				{"user_id": "u2"}, {"user_id": "u3"},
			})
		}
	}))

	ids, err := c.EnumerateUsers(context.Background())
	if err != nil {
		t.Fatalf("EnumerateUsers: %v", err)
	}
	sort.Strings(ids)
	want := []string{"u1", "u2", "u3"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestEnumerateUsers_Failure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	if _, err := c.EnumerateUsers(context.Background()); err == nil {
		t.Error("expected error from failing remote")
	}
}
