package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/registry"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show the configured agent roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		reg := registry.New(cfg.Routing, cfg.Agents)
		agents := reg.Snapshot()
		if len(agents) == 0 {
			fmt.Println("no agents configured")
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("%-12s %-20s %-8s %-6s %-6s %s\n",
			"ID", "NAME", "STATUS", "LOAD", "CSAT", "SKILLS")
		for _, a := range agents {
			status := red("offline")
			if a.Online {
				status = green("online")
			}
			fmt.Printf("%-12s %-20s %-8s %d/%-4d %-6.1f %s\n",
				a.ID, a.Name, status,
				a.QueueSize, cfg.Routing.MaxConcurrentPerAgent,
				a.Satisfaction, strings.Join(a.Skills, ","))
		}
		return nil
	},
}
