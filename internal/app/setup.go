package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"docchat/db"
	"docchat/internal/answer"
	"docchat/internal/chatbot"
	"docchat/internal/config"
	"docchat/internal/document"
	"docchat/internal/embedding"
	"docchat/internal/history"
	"docchat/internal/ingest"
	"docchat/internal/retriever"
	"docchat/internal/splitter"
	"docchat/internal/vectorindex"
)

// Setup creates and initializes the application. On error, resources
// already initialized are released; otherwise the caller owns Close().
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	a.Embedding = embedding.New(embedder, cfg.EmbedderModel, provideLimiter(cfg), logger.With("component", "embedding"))

	a.Index = vectorindex.New(
		vectorindex.NewPgxQuerier(pool),
		a.Embedding.Dimension(),
		vectorindex.Metric(cfg.IndexMetric),
		cfg.TopK,
		logger.With("component", "vectorindex"),
	)

	a.Retriever = retriever.New(a.Embedding, a.Index, logger.With("component", "retriever"))

	a.Generator = answer.New(g, cfg.FullModelName(), cfg.Temperature, cfg.MaxHistoryMessages, logger.With("component", "answer"))

	a.History = history.New(history.NewPgxQuerier(pool), logger.With("component", "history"))

	a.Bot = chatbot.New(a.Retriever, a.Generator, cfg.Temperature, logger.With("component", "chatbot"))

	loader := document.NewLoader(cfg.BlogDir, cfg.HelpDir, cfg.PDFDir, cfg.JSONDir, logger.With("component", "loader"))
	chunker := splitter.New(cfg.ChunkSize, cfg.ChunkOverlap, logger.With("component", "splitter"))
	a.Pipeline = ingest.New(loader, chunker, a.Embedding, a.Index, embedding.DefaultBatchSize, logger.With("component", "ingest"))

	return a, nil
}

// provideGenkit initializes Genkit with the Google AI plugin. The
// plugin reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideLimiter builds the embedding rate limiter. EmbedRPS <= 0
// disables proactive limiting.
func provideLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.EmbedRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.EmbedRPS), 1)
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// interface satisfaction checks
var (
	_ ingest.Embedder    = (*embedding.Client)(nil)
	_ retriever.Embedder = (*embedding.Client)(nil)
)
