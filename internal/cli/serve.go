package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the escalation engine and HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		e, err := buildEngine(cfg, true)
		if err != nil {
			return err
		}
		defer e.shutdown()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			_ = e.bus.Dispatch(ctx)
		}()

		online := 0
		for _, a := range e.registry.Snapshot() {
			if a.Online {
				online++
			}
		}
		fmt.Printf("🎯 bridgedesk started: %d agents (%d online), gateway http://%s:%d\n",
			len(cfg.Agents), online, cfg.Gateway.Host, cfg.Gateway.Port)
		if cfg.Stream.Enabled {
			fmt.Printf("📡 event stream → kafka %s\n", cfg.Stream.Brokers)
		}

		gw := gateway.New(cfg.Gateway, e.orch, e.registry, e.queue, e.convos)
		return gw.Start(ctx)
	},
}
