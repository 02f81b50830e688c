package chat

import (
	"fmt"
	"strings"

	"github.com/avelar/uplift/internal/snapshot"
)

const systemPrompt = `You are a friendly, motivating assistant. You help the user manage their tasks and emotions.
Speak like a supportive friend:
- Be kind, energetic, and inspiring.
- If the user is overwhelmed, offer small steps and cheer them up.
- If they're doing well, celebrate them!
Do not write big messages as reply keep it short and friendly.`

const (
	noTasksLine      = "No tasks scheduled for today."
	noMoodsLine      = "No mood logs in the past 3 days."
	tasksUnavailable = "Could not retrieve tasks at this time."
	moodsUnavailable = "Could not retrieve mood logs at this time."
)

// FormatTasks renders a snapshot's task list for prompt injection.
func FormatTasks(snap snapshot.Snapshot) string {
	if !snap.OK() {
		return tasksUnavailable
	}
	if len(snap.Tasks) == 0 {
		return noTasksLine
	}

	lines := make([]string, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		status := "❌ Not done"
		if t.Done {
			status = "✅ Done"
		}
		priority := t.Priority
		if priority == "" {
			priority = "Normal"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s) [Priority: %s]", t.Name, status, priority))
	}
	return strings.Join(lines, "\n")
}

// FormatMoods renders a snapshot's mood log for prompt injection.
func FormatMoods(snap snapshot.Snapshot) string {
	if !snap.OK() {
		return moodsUnavailable
	}
	if len(snap.Moods) == 0 {
		return noMoodsLine
	}

	lines := make([]string, 0, len(snap.Moods))
	for _, m := range snap.Moods {
		lines = append(lines, fmt.Sprintf("- %s (Intensity: %d) on %s",
			m.Label, m.Intensity, m.LoggedAt.Format("2006-01-02")))
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt assembles the full context prompt sent to the model: the
// system instructions, the user's recent moods and today's tasks, and the
// user's message.
func BuildPrompt(snap snapshot.Snapshot, message string) string {
	return fmt.Sprintf(`%s

Your recent mood check-ins:
%s

Your tasks for today:
%s

User says:
%s`, systemPrompt, FormatMoods(snap), FormatTasks(snap), message)
}
