// Package pgvector implements workflow.Retriever and workflow.RetrieverFactory
// over PostgreSQL with the pgvector extension, the cosine-distance
// HNSW-index query pattern nevindra-oasis's own postgres store uses for
// SearchChunks.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/chatforge/workflow/workflow"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Embedder turns text into vectors. Any provider (OpenAI, Gemini, a local
// model) may satisfy it; this package depends only on the interface.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store implements workflow.Retriever directly and workflow.RetrieverFactory
// by returning itself unchanged; results are scoped only by the documentIDs
// passed to Query. Ownership of documents is enforced by the caller of For,
// which is expected to have already checked CheckDocumentOwnership.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	topK     int
}

var _ workflow.Retriever = (*Store)(nil)
var _ workflow.RetrieverFactory = (*Store)(nil)

// New wraps an existing pgxpool.Pool and embedding provider. topK bounds
// how many chunks a single Query returns; callers that want a narrower
// bound per-call should filter the result themselves.
func New(pool *pgxpool.Pool, embedder Embedder, topK int) *Store {
	if topK <= 0 {
		topK = 5
	}
	return &Store{pool: pool, embedder: embedder, topK: topK}
}

// Init creates the pgvector extension and the chunks table this store
// depends on. dimension <= 0 leaves the column untyped.
func (s *Store) Init(ctx context.Context, dimension int) error {
	vtype := "vector"
	if dimension > 0 {
		vtype = fmt.Sprintf("vector(%d)", dimension)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS retrieval_chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			content TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			embedding %s,
			metadata JSONB
		)`, vtype),
		`CREATE INDEX IF NOT EXISTS retrieval_chunks_document_idx ON retrieval_chunks(document_id)`,
		`CREATE INDEX IF NOT EXISTS retrieval_chunks_embedding_idx ON retrieval_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: init: %w", err)
		}
	}
	return nil
}

// IndexChunk upserts one chunk with a freshly computed embedding, the unit
// of work retrieval/ingest's document pipeline calls per chunk.
func (s *Store) IndexChunk(ctx context.Context, ownerID, documentID, chunkID, content string, index int, metadata map[string]interface{}) error {
	vecs, err := s.embedder.Embed(ctx, []string{content})
	if err != nil || len(vecs) == 0 {
		return fmt.Errorf("pgvector: embed chunk %s: %w", chunkID, err)
	}
	embStr := serializeEmbedding(vecs[0])

	_, err = s.pool.Exec(ctx, `
		INSERT INTO retrieval_chunks (id, document_id, owner_id, content, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::vector, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata
	`, chunkID, documentID, ownerID, content, index, embStr, metadataJSON(metadata))
	if err != nil {
		return fmt.Errorf("pgvector: index chunk %s: %w", chunkID, err)
	}
	return nil
}

// Query embeds text and returns the topK nearest chunks among documentIDs
// (workflow.Retriever).
func (s *Store) Query(ctx context.Context, text string, documentIDs []string) ([]workflow.RetrievedChunk, error) {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil || len(vecs) == 0 {
		return nil, fmt.Errorf("pgvector: embed query: %w", err)
	}
	embStr := serializeEmbedding(vecs[0])

	query := `SELECT document_id, content, metadata, 1 - (embedding <=> $1::vector) AS score
		FROM retrieval_chunks WHERE embedding IS NOT NULL`
	args := []interface{}{embStr}
	if len(documentIDs) > 0 {
		placeholders := make([]string, len(documentIDs))
		for i, id := range documentIDs {
			args = append(args, id)
			placeholders[i] = "$" + strconv.Itoa(len(args))
		}
		query += " AND document_id IN (" + strings.Join(placeholders, ",") + ")"
	}
	args = append(args, s.topK)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer rows.Close()

	var out []workflow.RetrievedChunk
	for rows.Next() {
		var chunk workflow.RetrievedChunk
		var metaJSON []byte
		if err := rows.Scan(&chunk.DocumentID, &chunk.Text, &metaJSON, &chunk.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan chunk: %w", err)
		}
		chunk.Metadata = parseMetadata(metaJSON)
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// For implements workflow.RetrieverFactory. Since Store has no per-user
// state, every caller shares the same instance; document-ID filtering at
// Query time is what actually scopes results, so For's userID is accepted
// only to satisfy the interface the Preparation Service expects to call
// after CheckDocumentOwnership.
func (s *Store) For(userID string, documentIDs []string) (workflow.Retriever, error) {
	return s, nil
}

func metadataJSON(metadata map[string]interface{}) []byte {
	if len(metadata) == 0 {
		return nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return data
}

func parseMetadata(data []byte) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
