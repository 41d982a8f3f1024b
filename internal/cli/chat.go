package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bridgedesk/bridgedesk/internal/config"
)

var chatVIP bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a local conversation with the engine",
	Long:  "Starts an in-process conversation. Type messages, /close to resolve, /quit to exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		e, err := buildEngine(cfg, false)
		if err != nil {
			return err
		}
		defer e.shutdown()

		ctx := cmd.Context()
		go func() {
			_ = e.bus.Dispatch(ctx)
		}()

		id := e.orch.OpenConversation(chatVIP)
		fmt.Printf("💬 conversation %s opened (vip=%v)\n", id, chatVIP)

		you := color.New(color.FgGreen, color.Bold)
		bot := color.New(color.FgCyan)
		sys := color.New(color.FgYellow)

		scanner := bufio.NewScanner(os.Stdin)
		for {
			you.Print("you> ")
			if !scanner.Scan() {
				break
			}
			text := strings.TrimSpace(scanner.Text())
			switch {
			case text == "":
				continue
			case text == "/quit":
				return nil
			case text == "/close":
				if err := e.orch.CloseConversation(id); err != nil {
					sys.Printf("close failed: %v\n", err)
					continue
				}
				sys.Println("conversation resolved")
				return nil
			}

			res, err := e.orch.HandleTurn(context.Background(), id, text)
			if err != nil {
				sys.Printf("turn failed: %v\n", err)
				continue
			}

			bot.Printf("bot> %s\n", res.Reply)
			if res.Frustration != nil {
				sys.Printf("     frustration %.1f (%s, trend %s)\n",
					res.Frustration.Score, res.Frustration.Level, res.Frustration.Trend)
			}
			if res.Escalated {
				if res.Priority != nil {
					sys.Printf("     priority %.1f\n", res.Priority.Value)
				}
				if res.AgentID != "" {
					sys.Printf("     escalated → %s (%s)\n", res.AgentName, res.AgentID)
				} else if res.Admission != nil {
					sys.Printf("     escalated → queued at position %d, est. wait %s\n",
						res.Admission.Position, res.Admission.EstimatedWait)
				}
			}
		}
		return scanner.Err()
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatVIP, "vip", false, "mark the conversation as VIP")
}
