package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamalehq/tamalebot/internal/agent"
	"github.com/tamalehq/tamalebot/internal/providers"
	"github.com/tamalehq/tamalebot/internal/tools"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Run one turn (argument or stdin) or an interactive session",
		Run: func(cmd *cobra.Command, args []string) {
			runChat(strings.Join(args, " "))
		},
	}
}

func runChat(message string) {
	rt, err := buildRuntime()
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	rt.loop.SetHooks(agent.Hooks{
		OnToolCall: func(name string, _ map[string]any) {
			fmt.Fprintf(os.Stderr, "  [tool: %s]\n", name)
		},
		OnToolResult: func(name string, r *tools.Result) {
			if r.IsError {
				fmt.Fprintf(os.Stderr, "  [tool %s failed: %s]\n", name, firstLine(r.Output))
			}
		},
	})

	ctx := context.Background()

	if message == "" && !isTerminal(os.Stdin) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			slog.Error("read stdin", "error", err)
			os.Exit(1)
		}
		message = strings.TrimSpace(string(data))
	}

	if message != "" {
		if err := oneTurn(ctx, rt, message); err != nil {
			slog.Error("turn failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Interactive session. One conversation, turns in order.
	fmt.Printf("%s ready. Ctrl-D to exit.\n", rt.cfg.AgentName)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := oneTurn(ctx, rt, text); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	fmt.Println()
}

func oneTurn(ctx context.Context, rt *runtime, text string) error {
	return rt.conversations.Turn(ctx, "cli", func(history []providers.Message) ([]providers.Message, error) {
		res, updated, err := rt.loop.Run(ctx, history, text)
		if err != nil {
			return history, err
		}
		fmt.Println(res.Text)
		slog.Debug("turn complete",
			"iterations", res.Iterations, "toolCalls", res.ToolCallCount,
			"tokens", res.InputTokens+res.OutputTokens)
		return updated, nil
	})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
