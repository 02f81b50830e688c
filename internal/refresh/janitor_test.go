package refresh

import (
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/avelar/uplift/internal/snapshot"
	"github.com/avelar/uplift/internal/store"
)

func storeIDs(t *testing.T, st *store.Store) []string {
	t.Helper()
	ids, err := st.ListIDs()
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	sort.Strings(ids)
	return ids
}

func TestJanitorRemovesExpiredEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)}
	st := openTestStore(t)
	j := NewJanitor(st, DefaultRetention, clock)

	entries := map[string]time.Duration{
		"fresh":   -time.Hour,
		"aging":   -6 * 24 * time.Hour,
		"expired": -8 * 24 * time.Hour,
	}
	for id, age := range entries {
		snap := snapshot.Success(id, nil, nil, clock.Now().Add(age))
		if err := st.Put(id, snap); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}

	j.Run()

	want := []string{"aging", "fresh"}
	if got := storeIDs(t, st); !reflect.DeepEqual(got, want) {
		t.Errorf("after sweep ids = %v, want %v", got, want)
	}
	if _, ok, _ := st.Get("expired"); ok {
		t.Error("expired entry still retrievable")
	}
}

// An entry exactly at the retention boundary is kept; only age strictly
// greater than the window is purged.
func TestJanitorRetentionBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)}
	st := openTestStore(t)
	j := NewJanitor(st, DefaultRetention, clock)

	at := snapshot.Success("at-boundary", nil, nil, clock.Now().Add(-DefaultRetention))
	if err := st.Put("at-boundary", at); err != nil {
		t.Fatalf("Put: %v", err)
	}

	j.Run()
	if _, ok, _ := st.Get("at-boundary"); !ok {
		t.Error("entry exactly at retention window was purged")
	}

	clock.Advance(time.Second)
	j.Run()
	if _, ok, _ := st.Get("at-boundary"); ok {
		t.Error("entry past retention window survived sweep")
	}
}

func TestJanitorIdempotent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)}
	st := openTestStore(t)
	j := NewJanitor(st, DefaultRetention, clock)

	if err := st.Put("old", snapshot.Success("old", nil, nil, clock.Now().Add(-10*24*time.Hour))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Put("new", snapshot.Success("new", nil, nil, clock.Now())); err != nil {
		t.Fatalf("Put: %v", err)
	}

	j.Run()
	after1 := storeIDs(t, st)
	j.Run()
	after2 := storeIDs(t, st)

	if !reflect.DeepEqual(after1, after2) {
		t.Errorf("sweep not idempotent: %v then %v", after1, after2)
	}
	if !reflect.DeepEqual(after1, []string{"new"}) {
		t.Errorf("after sweep ids = %v, want [new]", after1)
	}
}

func TestJanitorRemovesErrorEntriesToo(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)}
	st := openTestStore(t)
	j := NewJanitor(st, DefaultRetention, clock)

	old := snapshot.Snapshot{
		UserID:       "u1",
		Status:       snapshot.StatusError,
		FetchedAt:    clock.Now().Add(-8 * 24 * time.Hour),
		ErrorMessage: "remote down",
	}
	if err := st.Put("u1", old); err != nil {
		t.Fatalf("Put: %v", err)
	}

	j.Run()
	if _, ok, _ := st.Get("u1"); ok {
		t.Error("expired error entry still present")
	}
}
