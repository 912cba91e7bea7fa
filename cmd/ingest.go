package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const timeRound = 10 * time.Millisecond

var ingestReset bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load, chunk, embed, and index the documentation corpus",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "delete existing vectors before ingesting")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	result, err := a.Pipeline.Run(cmd.Context(), ingestReset)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("Ingested %d documents as %d chunks (%d vectors) in %s\n",
		result.Documents, result.Chunks, result.Vectors, result.Duration.Round(timeRound))
	return nil
}
