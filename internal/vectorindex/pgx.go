package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgxQuerier implements Querier on a pgx connection pool. The chunks
// table and its HNSW index are created by EnsureSchema; the vector
// column dimension is fixed at creation time.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier wraps a connection pool.
func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

// Ping checks database connectivity.
func (q *PgxQuerier) Ping(ctx context.Context) error {
	return q.pool.Ping(ctx)
}

// opsClass returns the pgvector operator class for the metric.
func opsClass(metric Metric) string {
	switch metric {
	case MetricL2:
		return "vector_l2_ops"
	case MetricInnerProduct:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

// distanceOp returns the pgvector distance operator for the metric.
func distanceOp(metric Metric) string {
	switch metric {
	case MetricL2:
		return "<->"
	case MetricInnerProduct:
		return "<#>"
	default:
		return "<=>"
	}
}

// similarityExpr returns the SQL expression converting distance to a
// higher-is-better score.
func similarityExpr(metric Metric) string {
	op := distanceOp(metric)
	switch metric {
	case MetricL2:
		return fmt.Sprintf("1 / (1 + (embedding %s $1))", op)
	case MetricInnerProduct:
		return fmt.Sprintf("-(embedding %s $1)", op)
	default:
		return fmt.Sprintf("1 - (embedding %s $1)", op)
	}
}

// EnsureSchema creates the extension, chunks table, and similarity
// index if they do not exist. The dimension is interpolated into the
// DDL: it is a validated configuration integer, never user input.
func (q *PgxQuerier) EnsureSchema(ctx context.Context, dimension int, metric Metric) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING hnsw (embedding %s)", opsClass(metric)),
		"CREATE INDEX IF NOT EXISTS chunks_metadata_idx ON chunks USING gin (metadata)",
	}
	for _, stmt := range statements {
		if _, err := q.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// UpsertVector inserts or replaces one record by ID.
func (q *PgxQuerier) UpsertVector(ctx context.Context, id, content string, vec pgvector.Vector, metadata []byte) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO chunks (id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata`,
		id, content, &vec, metadata)
	return err
}

// QueryNearest returns the topK records nearest to vec, ordered by
// similarity descending. filter, when non-nil, is a JSONB containment
// filter over the metadata column.
func (q *PgxQuerier) QueryNearest(ctx context.Context, vec pgvector.Vector, metric Metric, topK int32, filter []byte) ([]Row, error) {
	query := fmt.Sprintf(`
		SELECT id, content, metadata, %s AS similarity
		FROM chunks`, similarityExpr(metric))

	args := []any{&vec}
	if filter != nil {
		query += " WHERE metadata @> $2"
		args = append(args, filter)
	}
	query += fmt.Sprintf(" ORDER BY embedding %s $1 LIMIT %d", distanceOp(metric), topK)

	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountVectors returns the total number of stored vectors.
func (q *PgxQuerier) CountVectors(ctx context.Context) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx, "SELECT count(*) FROM chunks").Scan(&count)
	return count, err
}

// DeleteAllVectors removes every record, keeping the table.
func (q *PgxQuerier) DeleteAllVectors(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, "TRUNCATE chunks")
	return err
}

// DropSchema removes the chunks table entirely.
func (q *PgxQuerier) DropSchema(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, "DROP TABLE IF EXISTS chunks")
	return err
}
