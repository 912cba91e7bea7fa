// Package app provides application initialization and dependency
// wiring. App is the container that owns every component and the
// shared resources behind them.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"docchat/internal/answer"
	"docchat/internal/chatbot"
	"docchat/internal/config"
	"docchat/internal/embedding"
	"docchat/internal/history"
	"docchat/internal/ingest"
	"docchat/internal/retriever"
	"docchat/internal/vectorindex"
)

// App is the application container. All fields are wired by Setup.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit    *genkit.Genkit
	DBPool    *pgxpool.Pool
	Embedding *embedding.Client
	Index     *vectorindex.Index
	Retriever *retriever.Retriever
	Generator *answer.Generator
	History   *history.Store
	Bot       *chatbot.Bot
	Pipeline  *ingest.Pipeline
}

// Close releases shared resources. Safe to call on a partially
// initialized App.
func (a *App) Close() error {
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}
	return nil
}
