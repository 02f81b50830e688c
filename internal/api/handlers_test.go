package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/uplift/internal/history"
	"github.com/avelar/uplift/internal/refresh"
	"github.com/avelar/uplift/internal/snapshot"
	"github.com/avelar/uplift/internal/store"
)

type fakeReplier struct {
	reply      string
	err        error
	lastUserID string
	lastMsg    string
}

func (f *fakeReplier) Reply(ctx context.Context, userID, message string) (string, error) {
	f.lastUserID = userID
	f.lastMsg = message
	return f.reply, f.err
}

type fakeRefresher struct {
	snap  snapshot.Snapshot
	err   error
	calls int
}

func (f *fakeRefresher) RefreshSync(ctx context.Context, userID string) (snapshot.Snapshot, error) {
	f.calls++
	snap := f.snap
	snap.UserID = userID
	return snap, f.err
}

type fakeBulk struct{ calls int }

func (f *fakeBulk) RefreshAll(ctx context.Context) []refresh.Outcome {
	f.calls++
	return nil
}

// inlineSubmitter runs submitted tasks synchronously.
type inlineSubmitter struct{ full bool }

func (s *inlineSubmitter) Submit(fn func(context.Context)) bool {
	if s.full {
		return false
	}
	fn(context.Background())
	return true
}

func newTestHandler(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Chat == nil {
		deps.Chat = &fakeReplier{reply: "ok"}
	}
	if deps.Refresh == nil {
		deps.Refresh = &fakeRefresher{snap: snapshot.Success("", nil, nil, time.Now().UTC())}
	}
	if deps.Bulk == nil {
		deps.Bulk = &fakeBulk{}
	}
	if deps.Tasks == nil {
		deps.Tasks = &inlineSubmitter{}
	}
	return NewHandler(deps)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, Deps{})
	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("body = %v", out)
	}
}

func TestChat(t *testing.T) {
	replier := &fakeReplier{reply: "keep going!"}
	h := newTestHandler(t, Deps{Chat: replier})

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"user_id":"u1","message":"hey"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["reply"] != "keep going!" {
		t.Errorf("reply = %q", out["reply"])
	}
	if replier.lastUserID != "u1" || replier.lastMsg != "hey" {
		t.Errorf("replier got user=%q msg=%q", replier.lastUserID, replier.lastMsg)
	}
}

func TestChat_Validation(t *testing.T) {
	h := newTestHandler(t, Deps{})

	cases := []struct {
		name string
		body string
	}{
		{"missing user_id", `{"message":"hi"}`},
		{"missing message", `{"user_id":"u1"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/chat", tc.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRefreshUser(t *testing.T) {
	refresher := &fakeRefresher{snap: snapshot.Success("", nil, nil, time.Now().UTC())}
	h := newTestHandler(t, Deps{Refresh: refresher})

	rec := doJSON(t, h, http.MethodPost, "/users/u1/refresh", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if refresher.calls != 1 {
		t.Errorf("refresh calls = %d", refresher.calls)
	}
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["user_id"] != "u1" || out["status"] != snapshot.StatusSuccess {
		t.Errorf("body = %v", out)
	}
}

func TestRefreshUser_InvalidID(t *testing.T) {
	refresher := &fakeRefresher{
		err: fmt.Errorf("storing snapshot for %q: %w", ".hidden", store.ErrInvalidUserID),
	}
	h := newTestHandler(t, Deps{Refresh: refresher})

	rec := doJSON(t, h, http.MethodPost, "/users/.hidden/refresh", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRefreshUser_StoreFailure(t *testing.T) {
	refresher := &fakeRefresher{err: fmt.Errorf("disk full")}
	h := newTestHandler(t, Deps{Refresh: refresher})

	rec := doJSON(t, h, http.MethodPost, "/users/u1/refresh", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRefreshAll(t *testing.T) {
	bulk := &fakeBulk{}
	h := newTestHandler(t, Deps{Bulk: bulk})

	rec := doJSON(t, h, http.MethodPost, "/refresh-all", "", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if bulk.calls != 1 {
		t.Errorf("bulk refresh calls = %d", bulk.calls)
	}
}

func TestRefreshAll_QueueFull(t *testing.T) {
	h := newTestHandler(t, Deps{Tasks: &inlineSubmitter{full: true}})

	rec := doJSON(t, h, http.MethodPost, "/refresh-all", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestBearerAuthOnManagementRoutes(t *testing.T) {
	h := newTestHandler(t, Deps{Token: "secret"})

	// No token: rejected.
	rec := doJSON(t, h, http.MethodPost, "/refresh-all", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	// Wrong token: rejected.
	rec = doJSON(t, h, http.MethodPost, "/refresh-all", "", map[string]string{
		"Authorization": "Bearer wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong-token status = %d, want 401", rec.Code)
	}

	// Correct token: accepted.
	rec = doJSON(t, h, http.MethodPost, "/refresh-all", "", map[string]string{
		"Authorization": "Bearer secret",
	})
	if rec.Code != http.StatusAccepted {
		t.Errorf("authenticated status = %d, want 202", rec.Code)
	}

	// Chat and health stay open.
	rec = doJSON(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/chat", `{"user_id":"u1","message":"hi"}`, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("chat status = %d", rec.Code)
	}
}

func TestListInteractions(t *testing.T) {
	hist, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("opening history: %v", err)
	}
	defer hist.Close()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := hist.SaveInteraction(history.Interaction{
			ID:        uuid.NewString(),
			UserID:    "u1",
			Message:   "hello",
			Reply:     "hi there",
			Status:    snapshot.StatusSuccess,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("saving interaction: %v", err)
		}
	}

	h := newTestHandler(t, Deps{History: hist})
	rec := doJSON(t, h, http.MethodGet, "/users/u1/interactions?limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d interactions, want 2", len(out))
	}
	if out[0]["message"] != "hello" || out[0]["status"] != snapshot.StatusSuccess {
		t.Errorf("first interaction = %v", out[0])
	}

	rec = doJSON(t, h, http.MethodGet, "/users/u1/interactions?limit=500", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized limit status = %d, want 400", rec.Code)
	}
}

func TestListInteractions_Disabled(t *testing.T) {
	h := newTestHandler(t, Deps{})
	rec := doJSON(t, h, http.MethodGet, "/users/u1/interactions", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when history disabled", rec.Code)
	}
}
