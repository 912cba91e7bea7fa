package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/spf13/cobra"

	"docchat/internal/history"
)

var (
	chatUser        string
	chatRecentHours int
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation with the documentation",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "", "username for persistent conversation history")
	chatCmd.Flags().IntVar(&chatRecentHours, "recent-hours", 0, "preload messages from the last N hours (requires --user)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	ctx := cmd.Context()
	if err := a.Index.EnsureReady(ctx); err != nil {
		return fmt.Errorf("connecting to vector index: %w", err)
	}

	if chatUser == "" {
		return a.Bot.Interactive(ctx, os.Stdin, os.Stdout)
	}

	// Persistent mode: restore prior turns and record new ones.
	if _, err := a.History.UpsertUser(ctx, chatUser); err != nil {
		return err
	}

	// The full history is restored; the generator truncates to the
	// configured window before each model call.
	var prior []history.Message
	if chatRecentHours > 0 {
		prior, err = a.History.RecentHistory(ctx, chatUser, chatRecentHours)
	} else {
		prior, err = a.History.ChatHistory(ctx, chatUser, 0, 0)
	}
	if err != nil {
		return err
	}
	a.Bot.SetHistory(toAIMessages(prior))
	if len(prior) > 0 {
		fmt.Printf("Restored %d messages for %s.\n", len(prior), chatUser)
	}

	fmt.Println("Ask a question, or type 'quit' to leave and 'reset' to clear the conversation.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return nil
		case "reset":
			a.Bot.Reset()
			fmt.Println("Conversation cleared.")
			continue
		}

		answer, err := a.Bot.Chat(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Printf("%s\n\n", answer)

		// The assistant turn records which documents grounded it.
		sources, err := a.Retriever.RelevantSources(ctx, line)
		if err != nil {
			a.Logger.Warn("collecting sources", "error", err)
			sources = nil
		}

		if _, err := a.History.SaveMessage(ctx, chatUser, history.RoleUser, line, nil); err != nil {
			a.Logger.Warn("saving user message", "error", err)
		}
		if _, err := a.History.SaveMessage(ctx, chatUser, history.RoleAssistant, answer, sources); err != nil {
			a.Logger.Warn("saving assistant message", "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	fmt.Println("Goodbye!")
	return nil
}

// toAIMessages converts stored messages into model conversation turns.
func toAIMessages(msgs []history.Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == history.RoleAssistant {
			out = append(out, ai.NewModelTextMessage(m.Content))
		} else {
			out = append(out, ai.NewUserTextMessage(m.Content))
		}
	}
	return out
}
