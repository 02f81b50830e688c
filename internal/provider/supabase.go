// Package provider fetches user context from a Supabase-hosted Postgres
// database through its PostgREST endpoint.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avelar/uplift/internal/snapshot"
)

const (
	defaultTimeout = 15 * time.Second
	tasksTable     = "Tasks"
	moodsTable     = "Mood_Logs"
)

// Client queries the remote database. Fetch never returns an error: a
// failed fetch is reported as an error-status snapshot so callers treat
// it as data, not as a fault.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	loc        *time.Location
	now        func() time.Time
}

// New creates a Client for the given Supabase project URL and service key.
// loc is the timezone used to resolve "today" for the task query.
func New(baseURL, apiKey string, loc *time.Location) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		loc:        loc,
		now:        time.Now,
	}
}

type moodRow struct {
	Mood      string    `json:"mood"`
	Intensity int       `json:"intensity"`
	CreatedAt time.Time `json:"created_at"`
}

type userIDRow struct {
	UserID string `json:"user_id"`
}

// Fetch builds a fresh snapshot for userID: today's tasks (or, when none
// are scheduled for today, all of the user's tasks) plus the most recent
// mood logs. Any query failure yields an error-status snapshot.
func (c *Client) Fetch(ctx context.Context, userID string) snapshot.Snapshot {
	now := c.now()
	today := now.In(c.loc).Format("2006-01-02")
	threeDaysAgo := now.In(c.loc).AddDate(0, 0, -3).Format("2006-01-02")

	var tasks []snapshot.Task
	params := url.Values{
		"select":  {"taskName,taskStatus,priority,date"},
		"user_id": {"eq." + userID},
		"date":    {"eq." + today},
	}
	if err := c.getJSON(ctx, tasksTable, params, &tasks); err != nil {
		return snapshot.Failure(userID, err, now)
	}

	// No tasks scheduled for today: fall back to the user's full list.
	if len(tasks) == 0 {
		params.Del("date")
		if err := c.getJSON(ctx, tasksTable, params, &tasks); err != nil {
			return snapshot.Failure(userID, err, now)
		}
	}

	var moodRows []moodRow
	moodParams := url.Values{
		"select":     {"mood,intensity,created_at"},
		"user_id":    {"eq." + userID},
		"created_at": {"gte." + threeDaysAgo},
		"order":      {"created_at.desc"},
		"limit":      {"5"},
	}
	if err := c.getJSON(ctx, moodsTable, moodParams, &moodRows); err != nil {
		return snapshot.Failure(userID, err, now)
	}

	moods := make([]snapshot.Mood, 0, len(moodRows))
	for _, r := range moodRows {
		moods = append(moods, snapshot.Mood{
			Label:     r.Mood,
			Intensity: r.Intensity,
			LoggedAt:  r.CreatedAt,
		})
	}
	// The query already filters and orders, but the bound is enforced
	// locally so a permissive remote cannot widen it.
	moods = snapshot.BoundMoods(moods, now)

	return snapshot.Success(userID, tasks, moods, now)
}

// EnumerateUsers returns the distinct user IDs present in either the tasks
// or the mood logs table.
func (c *Client) EnumerateUsers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	for _, table := range []string{tasksTable, moodsTable} {
		var rows []userIDRow
		params := url.Values{"select": {"user_id"}}
		if err := c.getJSON(ctx, table, params, &rows); err != nil {
			return nil, fmt.Errorf("enumerating users from %s: %w", table, err)
		}
		for _, r := range rows {
			if r.UserID == "" {
				continue
			}
			seen[r.UserID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) getJSON(ctx context.Context, table string, params url.Values, out any) error {
	u := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, table, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("querying %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("querying %s: HTTP %d: %s", table, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", table, err)
	}
	return nil
}
