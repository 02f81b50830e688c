package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avelar/uplift/internal/config"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a chat message to the assistant",
	Long: `Send a chat message to the assistant.

Examples:
  uplift chat --user alice "how am I doing today?"
  uplift chat --user alice "what's left on my list?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		message := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/chat", map[string]string{
			"user_id": userID,
			"message": message,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result["reply"])
		return nil
	},
}

func init() {
	chatCmd.Flags().String("user", "", "user ID to chat as")
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh [user-id]",
	Short: "Force a data refresh for one user or for everyone",
	Long: `Force a data refresh for one user or for everyone.

Examples:
  uplift refresh alice
  uplift refresh --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		if all == (len(args) == 1) {
			return fmt.Errorf("pass either a user ID or --all")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if all {
			resp, err := client.post(cmd.Context(), "/refresh-all", nil)
			if err != nil {
				return err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Bulk refresh started: %s", result["message"])
			return nil
		}

		userID := args[0]
		resp, err := client.post(cmd.Context(), "/users/"+userID+"/refresh", nil)
		if err != nil {
			return err
		}

		var result struct {
			UserID   string `json:"user_id"`
			Status   string `json:"status"`
			Snapshot struct {
				Tasks []any `json:"tasks"`
				Moods []any `json:"moods"`
				Error string `json:"error_message,omitempty"`
			} `json:"snapshot"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Status == "error" {
			printWarning("Refresh for %s stored an error entry: %s", result.UserID, result.Snapshot.Error)
			return nil
		}
		printSuccess("Refreshed %s: %d tasks, %d mood logs", result.UserID,
			len(result.Snapshot.Tasks), len(result.Snapshot.Moods))
		return nil
	},
}

func init() {
	refreshCmd.Flags().Bool("all", false, "refresh every known user")
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions <user-id>",
	Short: "List a user's recent chat interactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/users/%s/interactions?limit=%d", args[0], limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var interactions []struct {
			ID        string `json:"id"`
			Message   string `json:"message"`
			Reply     string `json:"reply"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			msg := ix.Message
			if len(msg) > 80 {
				msg = msg[:80] + "..."
			}
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, shortID(ix.ID)),
				ix.CreatedAt,
				msg,
			)
		}
		return nil
	},
}

func init() {
	interactionsCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
}

// shortID truncates an ID for display without assuming the server sent a
// full-length one.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
