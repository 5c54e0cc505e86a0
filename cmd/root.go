package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/tamalehq/tamalebot/cmd.Version=v1.0.0"
var Version = "dev"

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tamalebot",
	Short: "tamalebot — security-mediated autonomous agent",
	Long:  "tamalebot runs an LLM-driven agent whose every tool call passes a policy check and lands in an append-only audit journal. Credentials live in an encrypted per-agent vault.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		})))
	},
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "config", "", "env file to load (default: .env if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(vaultCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tamalebot %s\n", Version)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
