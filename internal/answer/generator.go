// Package answer generates grounded answers from retrieved context by
// calling the chat-completion model through Genkit.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

// DefaultMaxTokens bounds the answer length when the caller does not
// override it.
const DefaultMaxTokens = 1024

// summaryTemperature is fixed low for factual summaries.
const summaryTemperature = 0.3

// DefaultMaxHistoryMessages caps the conversation history folded into
// a chat turn. The original behavior was unbounded, which grows the
// prompt without limit; the window keeps the most recent messages.
const DefaultMaxHistoryMessages = 20

// answerPrompt is the grounding prompt for single-turn answers. The
// retrieved context and the user question are embedded verbatim.
const answerPrompt = `You are a helpful assistant for a documentation knowledge base.

Your task is to answer the user's question based ONLY on the context provided below.

IMPORTANT INSTRUCTIONS:
1. Answer based ONLY on the information in the context - review ALL context chunks carefully
2. For questions asking "all" or "list all", provide a COMPLETE and COMPREHENSIVE answer using ALL relevant information from the context
3. When listing items, include EVERY item mentioned in the context, not just a subset
4. If the answer is not in the context, say "I don't have enough information to answer this."
5. Be specific and provide step-by-step instructions when appropriate
6. If you reference specific features or functions, mention which document they come from
7. Do not make up or assume information not present in the context

Context from documentation:
%s

User Question: %s

Answer (be thorough and comprehensive):`

// chatSystemPrompt steers multi-turn conversations.
const chatSystemPrompt = `You are a helpful assistant for a documentation knowledge base.
Answer based on the provided context and conversation history.
If you don't know the answer, say so clearly.`

// summaryPrompt condenses long context.
const summaryPrompt = `Summarize the following documentation context concisely, keeping the most important information:

%s

Summary:`

// Generator calls the chat-completion API. API errors propagate to
// the caller unmodified; there is no retry or backoff here.
type Generator struct {
	g           *genkit.Genkit
	model       string
	temperature float32
	maxHistory  int
	logger      *slog.Logger
}

// New creates a Generator for the provider-qualified model name.
// temperature is the default sampling temperature; maxHistory caps
// the chat history window (0 = DefaultMaxHistoryMessages).
func New(g *genkit.Genkit, model string, temperature float32, maxHistory int, logger *slog.Logger) *Generator {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistoryMessages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		g:           g,
		model:       model,
		temperature: temperature,
		maxHistory:  maxHistory,
		logger:      logger,
	}
}

// Generate produces an answer for the query grounded in context.
// temperature < 0 uses the configured default; maxTokens <= 0 uses
// DefaultMaxTokens.
func (gen *Generator) Generate(ctx context.Context, query, contextText string, temperature float32, maxTokens int) (string, error) {
	if temperature < 0 {
		temperature = gen.temperature
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	prompt := fmt.Sprintf(answerPrompt, contextText, query)

	resp, err := genkit.Generate(ctx, gen.g,
		ai.WithModelName(gen.model),
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(temperature),
			MaxOutputTokens: int32(maxTokens), // #nosec G115 -- bounded by config validation
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	text := resp.Text()
	gen.logger.Debug("generated answer", "model", gen.model, "length", len(text))
	return text, nil
}

// GenerateWithSources produces an answer and appends a 1-indexed
// Sources block (filename only) when sources is non-empty.
func (gen *Generator) GenerateWithSources(ctx context.Context, query, contextText string, sources []string, temperature float32) (string, error) {
	text, err := gen.Generate(ctx, query, contextText, temperature, DefaultMaxTokens)
	if err != nil {
		return "", err
	}
	if len(sources) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nSources:\n")
	for i, source := range sources {
		name := source
		if j := strings.LastIndex(source, "/"); j >= 0 {
			name = source[j+1:]
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, name)
	}
	return b.String(), nil
}

// Chat generates an answer for the query within an ongoing
// conversation. The new user turn (query plus context) is folded onto
// history, the full sequence is sent to the model, and the returned
// history is extended with both the user turn and the reply. The
// caller owns persisting the updated history.
//
// History longer than the configured window is truncated to the most
// recent messages before the call.
func (gen *Generator) Chat(ctx context.Context, query, contextText string, history []*ai.Message, temperature float32) (string, []*ai.Message, error) {
	if temperature < 0 {
		temperature = gen.temperature
	}

	if len(history) > gen.maxHistory {
		history = history[len(history)-gen.maxHistory:]
	}

	userText := fmt.Sprintf("Context from documentation:\n%s\n\nQuestion: %s", contextText, query)
	messages := make([]*ai.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(userText)))

	resp, err := genkit.Generate(ctx, gen.g,
		ai.WithModelName(gen.model),
		ai.WithSystem(chatSystemPrompt),
		ai.WithMessages(messages...),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(temperature),
			MaxOutputTokens: int32(DefaultMaxTokens),
		}),
	)
	if err != nil {
		return "", nil, fmt.Errorf("chat generation: %w", err)
	}

	text := resp.Text()
	updated := append(messages, ai.NewModelTextMessage(text))
	return text, updated, nil
}

// SummarizeContext condenses a long context string at a fixed low
// temperature. Independent of the main Q&A path.
func (gen *Generator) SummarizeContext(ctx context.Context, contextText string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 500
	}

	resp, err := genkit.Generate(ctx, gen.g,
		ai.WithModelName(gen.model),
		ai.WithPrompt(fmt.Sprintf(summaryPrompt, contextText)),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(summaryTemperature)),
			MaxOutputTokens: int32(maxTokens), // #nosec G115 -- bounded by caller
		}),
	)
	if err != nil {
		return "", fmt.Errorf("summarizing context: %w", err)
	}
	return resp.Text(), nil
}
