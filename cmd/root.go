// Package cmd contains the docchat CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"docchat/internal/app"
	"docchat/internal/config"
	"docchat/internal/log"
)

var (
	debugLog bool
	jsonLog  bool
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "docchat - chat with your documentation",
	Long: `docchat indexes a documentation corpus (markdown, PDF, JSON) into a
vector store and answers questions about it, grounded in the retrieved
content.

Running docchat with no subcommand starts an interactive chat.`,
	RunE:          runChat,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command with the given context, which
// cancels on interrupt.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "log in JSON format")
}

// newLogger builds the process logger from the persistent flags. Logs
// go to stderr; stdout is reserved for answers.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debugLog || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.NewWithWriter(os.Stderr, log.Config{Level: level, JSON: jsonLog})
}

// setupApp loads configuration and wires the application. The caller
// must Close() the returned App.
func setupApp(cmd *cobra.Command) (*app.App, error) {
	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}
