// Package api exposes the HTTP control surface: the chat endpoint, manual
// refresh triggers, interaction history, and the health check.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avelar/uplift/internal/history"
	"github.com/avelar/uplift/internal/refresh"
	"github.com/avelar/uplift/internal/snapshot"
	"github.com/avelar/uplift/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Replier answers a user message. Implemented by *chat.Service.
type Replier interface {
	Reply(ctx context.Context, userID, message string) (string, error)
}

// Refresher forces a synchronous snapshot refresh. Implemented by
// *refresh.Orchestrator.
type Refresher interface {
	RefreshSync(ctx context.Context, userID string) (snapshot.Snapshot, error)
}

// BulkRefresher runs a full-population refresh. Implemented by
// *refresh.Loop.
type BulkRefresher interface {
	RefreshAll(ctx context.Context) []refresh.Outcome
}

// Submitter schedules fire-and-forget work. Implemented by *worker.Pool.
type Submitter interface {
	Submit(fn func(context.Context)) bool
}

// Deps holds the handler dependencies. History may be nil.
type Deps struct {
	Chat    Replier
	Refresh Refresher
	Bulk    BulkRefresher
	Tasks   Submitter
	History *history.Store
	// Token guards the management endpoints when non-empty.
	Token string
}

// NewHandler builds the service router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/chat", handleChat(deps))

	// Management endpoints, optionally bearer-guarded.
	r.Group(func(mr chi.Router) {
		if deps.Token != "" {
			mr.Use(BearerAuth(deps.Token))
		}
		mr.Post("/users/{userID}/refresh", handleRefreshUser(deps))
		mr.Post("/refresh-all", handleRefreshAll(deps))
		mr.Get("/users/{userID}/interactions", handleListInteractions(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		reply, err := deps.Chat.Reply(r.Context(), req.UserID, req.Message)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "chat failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
	}
}

func handleRefreshUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		snap, err := deps.Refresh.RefreshSync(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrInvalidUserID) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user id: %q", userID)
				return
			}
			httpError(w, http.StatusInternalServerError, "store_error", "persisting snapshot: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":  userID,
			"status":   snap.Status,
			"snapshot": snap,
		})
	}
}

func handleRefreshAll(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submitted := deps.Tasks.Submit(func(ctx context.Context) {
			deps.Bulk.RefreshAll(ctx)
		})
		if !submitted {
			httpError(w, http.StatusServiceUnavailable, "api_error", "refresh queue full, try again later")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"message": "refreshing all user data in the background",
		})
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotFound, "invalid_request_error", "interaction history is not enabled")
			return
		}
		userID := chi.URLParam(r, "userID")

		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 || limit > 100 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be between 1 and 100")
				return
			}
		}

		inters, err := deps.History.ListRecent(userID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "store_error", "listing interactions: %v", err)
			return
		}

		type interactionView struct {
			ID        string    `json:"id"`
			Message   string    `json:"message"`
			Reply     string    `json:"reply"`
			Status    string    `json:"status"`
			CreatedAt time.Time `json:"created_at"`
		}
		out := make([]interactionView, 0, len(inters))
		for _, in := range inters {
			out = append(out, interactionView{
				ID: in.ID, Message: in.Message, Reply: in.Reply,
				Status: in.Status, CreatedAt: in.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
