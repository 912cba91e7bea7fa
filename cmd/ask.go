package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docchat/internal/retriever"
)

var (
	askSources  bool
	askScores   bool
	askCategory string
	askDocType  string
	askTopK     int32
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question against the indexed documentation",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askSources, "sources", false, "append source citations to the answer")
	askCmd.Flags().BoolVar(&askScores, "scores", false, "show relevance scores in retrieved context")
	askCmd.Flags().StringVar(&askCategory, "category", "", "restrict retrieval to a category (blog, help)")
	askCmd.Flags().StringVar(&askDocType, "doc-type", "", "restrict retrieval to a document type (markdown, pdf, json)")
	askCmd.Flags().Int32Var(&askTopK, "top-k", 0, "number of chunks to retrieve (0 = configured default)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askCategory != "" && askDocType != "" {
		return errors.New("--category and --doc-type are mutually exclusive")
	}

	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	ctx := cmd.Context()
	if err := a.Index.EnsureReady(ctx); err != nil {
		return fmt.Errorf("connecting to vector index: %w", err)
	}

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return errors.New("question cannot be empty")
	}

	var opts []retriever.Option
	if askTopK > 0 {
		opts = append(opts, retriever.WithTopK(askTopK))
	}
	if askScores {
		opts = append(opts, retriever.WithScores())
	}

	var answer string
	switch {
	case askSources:
		answer, err = a.Bot.AskWithSources(ctx, question, opts...)
	case askCategory != "":
		answer, err = a.Bot.AskCategory(ctx, question, askCategory, opts...)
	case askDocType != "":
		answer, err = a.Bot.AskDocType(ctx, question, askDocType, opts...)
	default:
		answer, err = a.Bot.Ask(ctx, question, opts...)
	}
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(answer)
	return nil
}
