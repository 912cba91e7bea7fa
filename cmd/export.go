package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	exportUser   string
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's conversation history",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "username to export (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format: json or txt")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout)")
	_ = exportCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	transcript, err := a.History.Export(cmd.Context(), exportUser, exportFormat)
	if err != nil {
		return fmt.Errorf("exporting history: %w", err)
	}

	if exportOut == "" {
		fmt.Println(transcript)
		return nil
	}
	if err := os.WriteFile(exportOut, []byte(transcript), 0o600); err != nil {
		return fmt.Errorf("writing export file: %w", err)
	}
	fmt.Printf("Exported history for %s to %s\n", exportUser, exportOut)
	return nil
}
