package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	resetUser  string
	resetIndex bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a user's chat history or the vector index",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetUser, "user", "", "clear chat history for this user")
	resetCmd.Flags().BoolVar(&resetIndex, "index", false, "delete all vectors from the index")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	if resetUser == "" && !resetIndex {
		return errors.New("nothing to reset: pass --user and/or --index")
	}

	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	ctx := cmd.Context()

	if resetUser != "" {
		deleted, err := a.History.ClearHistory(ctx, resetUser)
		if err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		fmt.Printf("Deleted %d messages for %s\n", deleted, resetUser)
	}

	if resetIndex {
		if err := a.Index.EnsureReady(ctx); err != nil {
			return fmt.Errorf("connecting to vector index: %w", err)
		}
		if err := a.Index.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clearing index: %w", err)
		}
		fmt.Println("Deleted all vectors")
	}
	return nil
}
