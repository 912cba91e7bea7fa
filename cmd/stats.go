package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsUser string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector index statistics, and per-user chat statistics with --user",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsUser, "user", "", "also show chat statistics for this user")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	ctx := cmd.Context()
	if err := a.Index.EnsureReady(ctx); err != nil {
		return fmt.Errorf("connecting to vector index: %w", err)
	}

	stats, err := a.Index.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading index stats: %w", err)
	}
	fmt.Printf("Vectors:   %d\n", stats.TotalVectors)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	fmt.Printf("Metric:    %s\n", a.Config.IndexMetric)

	if statsUser == "" {
		return nil
	}

	userStats, err := a.History.Stats(ctx, statsUser)
	if err != nil {
		return fmt.Errorf("reading chat stats: %w", err)
	}
	fmt.Printf("\nUser:      %s\n", userStats.Username)
	fmt.Printf("Messages:  %d (%d user, %d assistant)\n",
		userStats.MessageCount, userStats.UserMessages, userStats.AssistantMessages)
	if !userStats.FirstMessage.IsZero() {
		fmt.Printf("First:     %s\n", userStats.FirstMessage.Format(time.RFC3339))
		fmt.Printf("Last:      %s\n", userStats.LastMessage.Format(time.RFC3339))
	}
	return nil
}
