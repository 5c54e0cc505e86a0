package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tamalehq/tamalebot/internal/audit"
)

func logsCmd() *cobra.Command {
	var limit int
	var decision string

	c := &cobra.Command{
		Use:   "logs",
		Short: "Show recent audit journal entries",
		Run: func(cmd *cobra.Command, args []string) {
			rt, err := buildRuntime()
			if err != nil {
				slog.Error("startup failed", "error", err)
				os.Exit(1)
			}
			defer rt.Close()

			entries, err := rt.journal.Entries(rt.cfg.AgentID, audit.Filter{
				Limit:    limit,
				Decision: audit.Decision(decision),
			})
			if err != nil {
				slog.Error("read journal", "error", err)
				os.Exit(1)
			}
			if len(entries) == 0 {
				fmt.Println("(no audit entries)")
				return
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-7s  %-13s  %s", e.Timestamp, e.Decision, e.ActionType, e.Target)
				if e.Reason != "" {
					line += "  (" + e.Reason + ")"
				}
				fmt.Println(line)
			}
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 50, "number of entries to show")
	c.Flags().StringVar(&decision, "decision", "", "filter: allowed or blocked")
	return c
}
