// Package chatbot orchestrates retrieval and generation into the
// question-answering surface: one-shot queries, filtered queries, a
// stateful conversation, and an interactive terminal loop.
package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"docchat/internal/retriever"
)

// ContextRetriever supplies formatted grounding context for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, opts ...retriever.Option) (string, error)
	RelevantSources(ctx context.Context, query string, opts ...retriever.Option) ([]string, error)
	SearchByCategory(ctx context.Context, query, category string, opts ...retriever.Option) (string, error)
	SearchByDocType(ctx context.Context, query, docType string, opts ...retriever.Option) (string, error)
}

// AnswerGenerator produces answers from query and context.
type AnswerGenerator interface {
	Generate(ctx context.Context, query, contextText string, temperature float32, maxTokens int) (string, error)
	GenerateWithSources(ctx context.Context, query, contextText string, sources []string, temperature float32) (string, error)
	Chat(ctx context.Context, query, contextText string, history []*ai.Message, temperature float32) (string, []*ai.Message, error)
}

// Bot ties the retriever and the generator together. The Ask* methods
// are stateless; Chat accumulates conversation history until Reset.
// Bot is not safe for concurrent use.
type Bot struct {
	retriever   ContextRetriever
	generator   AnswerGenerator
	temperature float32
	messages    []*ai.Message
	logger      *slog.Logger
}

// New creates a Bot. temperature < 0 defers to the generator default.
func New(r ContextRetriever, g AnswerGenerator, temperature float32, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		retriever:   r,
		generator:   g,
		temperature: temperature,
		logger:      logger,
	}
}

// Ask answers one query grounded in retrieved context, without
// conversation state.
func (b *Bot) Ask(ctx context.Context, query string, opts ...retriever.Option) (string, error) {
	contextText, err := b.retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}
	return b.generator.Generate(ctx, query, contextText, b.temperature, 0)
}

// AskWithSources answers one query and appends source citations.
func (b *Bot) AskWithSources(ctx context.Context, query string, opts ...retriever.Option) (string, error) {
	contextText, err := b.retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}
	sources, err := b.retriever.RelevantSources(ctx, query, opts...)
	if err != nil {
		return "", fmt.Errorf("collecting sources: %w", err)
	}
	return b.generator.GenerateWithSources(ctx, query, contextText, sources, b.temperature)
}

// AskCategory answers restricted to one category (blog/help).
func (b *Bot) AskCategory(ctx context.Context, query, category string, opts ...retriever.Option) (string, error) {
	contextText, err := b.retriever.SearchByCategory(ctx, query, category, opts...)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}
	return b.generator.Generate(ctx, query, contextText, b.temperature, 0)
}

// AskDocType answers restricted to one document type
// (markdown/pdf/json).
func (b *Bot) AskDocType(ctx context.Context, query, docType string, opts ...retriever.Option) (string, error) {
	contextText, err := b.retriever.SearchByDocType(ctx, query, docType, opts...)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}
	return b.generator.Generate(ctx, query, contextText, b.temperature, 0)
}

// Chat answers within the ongoing conversation, updating the bot's
// history with both the turn and the reply. A failed turn leaves the
// history unchanged.
func (b *Bot) Chat(ctx context.Context, query string, opts ...retriever.Option) (string, error) {
	contextText, err := b.retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}

	answer, updated, err := b.generator.Chat(ctx, query, contextText, b.messages, b.temperature)
	if err != nil {
		return "", err
	}
	b.messages = updated
	return answer, nil
}

// History returns the accumulated conversation messages.
func (b *Bot) History() []*ai.Message {
	return b.messages
}

// SetHistory replaces the conversation state, e.g. with messages
// restored from the history store.
func (b *Bot) SetHistory(messages []*ai.Message) {
	b.messages = messages
}

// Reset clears the conversation state.
func (b *Bot) Reset() {
	b.messages = nil
	b.logger.Debug("conversation reset")
}

// Interactive runs a read-answer loop on in/out until EOF, a quit
// command, or context cancellation. Recognized commands: quit, exit,
// q (leave), reset (clear conversation). A failed turn is reported
// and the loop continues.
func (b *Bot) Interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(out, "Ask a question, or type 'quit' to leave and 'reset' to clear the conversation.")

	// Input is read on its own goroutine so cancellation takes effect
	// even while blocked waiting for a line. The goroutine exits when
	// the input ends or the loop returns; a read blocked inside the
	// reader itself can only unblock when the input source closes.
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Fprint(out, "> ")

		var raw string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok = <-lines:
		}
		if !ok {
			if err := <-readErr; err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		line := strings.TrimSpace(raw)
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "reset":
			b.Reset()
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		answer, err := b.Chat(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("chat turn failed", "error", err)
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "%s\n\n", answer)
	}
}
