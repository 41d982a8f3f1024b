package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the escalation queue of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		url := fmt.Sprintf("http://%s:%d/api/queue", cfg.Gateway.Host, cfg.Gateway.Port)
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("is the server running? %w", err)
		}
		defer resp.Body.Close()

		var view struct {
			Length int          `json:"length"`
			Items  []queue.Item `json:"items"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
			return fmt.Errorf("decode queue response: %w", err)
		}

		if view.Length == 0 {
			fmt.Println("queue is empty")
			return nil
		}
		fmt.Printf("%d waiting\n\n", view.Length)
		fmt.Printf("%-4s %-38s %-10s %-10s %s\n", "POS", "CONVERSATION", "PRIORITY", "DOMAIN", "WAITING SINCE")
		for i, it := range view.Items {
			fmt.Printf("%-4d %-38s %-10.1f %-10s %s\n",
				i+1, it.ConversationID, it.Priority,
				it.Requirement.PrimaryDomain,
				it.EnqueuedAt.Format(time.TimeOnly))
		}
		return nil
	},
}
