package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/uplift/internal/history"
	"github.com/avelar/uplift/internal/snapshot"
)

// FallbackReply is returned when the model cannot be reached; a chat
// request never fails outright.
const FallbackReply = "I'm having trouble connecting to my brain right now. Please try again in a moment!"

// ContextSource supplies the user's cached context. Implemented by
// *refresh.Orchestrator.
type ContextSource interface {
	Context(ctx context.Context, userID string) (snapshot.Snapshot, error)
}

// Generator produces a model reply for a conversation. Implemented by
// *GeminiClient.
type Generator interface {
	Generate(ctx context.Context, contents []Content) (string, error)
}

// Recorder persists chat exchanges. Implemented by *history.Store;
// optional.
type Recorder interface {
	SaveInteraction(inter history.Interaction) error
}

// Service answers user messages with task and mood context injected.
type Service struct {
	source   ContextSource
	model    Generator
	sessions *Sessions
	recorder Recorder
	logger   *slog.Logger
}

// NewService wires the conversation path. recorder may be nil.
func NewService(source ContextSource, model Generator, sessions *Sessions, recorder Recorder) *Service {
	if sessions == nil {
		sessions = NewSessions()
	}
	return &Service{
		source:   source,
		model:    model,
		sessions: sessions,
		recorder: recorder,
		logger:   slog.Default(),
	}
}

// Reply answers message for userID. Context fetch problems degrade to
// "could not retrieve" placeholders and model failures degrade to the
// fixed fallback reply; the returned error is always nil today but kept
// for future hard-failure modes.
func (s *Service) Reply(ctx context.Context, userID, message string) (string, error) {
	snap, err := s.source.Context(ctx, userID)
	if err != nil {
		// Treat a store failure like a failed fetch: the prompt falls back
		// to placeholders.
		s.logger.Error("loading user context", "user_id", userID, "error", err)
		snap = snapshot.Snapshot{UserID: userID, Status: snapshot.StatusError}
	}

	prompt := BuildPrompt(snap, message)
	contents := append(s.sessions.History(userID), Content{
		Role:  "user",
		Parts: []Part{{Text: prompt}},
	})

	status := snapshot.StatusSuccess
	reply, err := s.model.Generate(ctx, contents)
	if err != nil {
		s.logger.Error("model call failed", "user_id", userID, "error", err)
		reply = FallbackReply
		status = snapshot.StatusError
	} else {
		s.sessions.Append(userID, message, reply)
	}

	s.record(userID, message, reply, status)
	return reply, nil
}

func (s *Service) record(userID, message, reply, status string) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.SaveInteraction(history.Interaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   message,
		Reply:     reply,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("recording interaction", "user_id", userID, "error", err)
	}
}
