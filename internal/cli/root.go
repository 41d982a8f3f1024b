// Package cli implements the bridgedesk command line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/bridgedesk/bridgedesk/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  ____       _     _            ____            _\n" +
		" | __ ) _ __(_) __| | __ _  ___|  _ \\  ___  ___| | __\n" +
		" |  _ \\| '__| |/ _` |/ _` |/ _ \\ | | |/ _ \\/ __| |/ /\n" +
		" | |_) | |  | | (_| | (_| |  __/ |_| |  __/\\__ \\   <\n" +
		" |____/|_|  |_|\\__,_|\\__, |\\___|____/ \\___||___/_|\\_\\\n" +
		"                     |___/\n"
)

var rootCmd = &cobra.Command{
	Use:   "bridgedesk",
	Short: "BridgeDesk - customer support escalation engine",
	Long: color.CyanString(logo) +
		"\nRoutes customer conversations between an automated responder and human agents.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bridgedesk %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(queueCmd)
}
