package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"assistant-relay/internal/chatview"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Terminal chat client for the assistant relay",
		Long: `chat opens an interactive conversation with the assistant behind the relay.
Each message is posted to the relay endpoint, which keeps the conversation
thread on the provider side for as long as this session runs.

Settings can also come from the environment: RELAY_URL, RELAY_LOG_FILE.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}
	cmd.Flags().String("url", "http://localhost:8080/api/chat", "relay endpoint URL")
	cmd.Flags().String("log-file", "", "write diagnostics to this file (default: discard)")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlag("url", cmd.Flags().Lookup("url"))
	_ = v.BindPFlag("log-file", cmd.Flags().Lookup("log-file"))
	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, closeLog, err := newLogger(v.GetString("log-file"))
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := chatview.NewClient(v.GetString("url"))
	if err != nil {
		return err
	}

	model := chatview.NewModel(ctx, chatview.NewSession(logger), client)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

// newLogger never writes to the terminal the UI owns.
func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("chat: open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, nil)), func() { _ = f.Close() }, nil
}
