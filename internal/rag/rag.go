// Package rag retrieves documents from a MongoDB Atlas vector index for
// prompt augmentation. It is constructed only when the document-store
// configuration is present and is off the default exchange path.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	indexName     = "vector_index"
	embeddingPath = "embedding"
	textKey       = "doc"

	resultLimit   = 2
	candidatePool = 100
)

// Embedder turns a query into the vector searched against the index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Connector opens a document-store session per retrieval. Injected so
// tests can fake the store; the default uses mongo.Connect.
type Connector func(ctx context.Context) (Session, error)

// Session is the slice of a Mongo client one retrieval needs.
type Session interface {
	Search(ctx context.Context, vector []float64, limit, numCandidates int) ([]string, error)
	Disconnect(ctx context.Context) error
}

// Config enumerates the document-store settings. All fields are
// required; a missing value fails the constructor, not the process.
type Config struct {
	ConnectionString string
	Database         string
	Collection       string
}

type Retriever struct {
	connect  Connector
	embedder Embedder
	logger   *slog.Logger
}

func NewRetriever(cfg Config, embedder Embedder, logger *slog.Logger) (*Retriever, error) {
	if strings.TrimSpace(cfg.ConnectionString) == "" {
		return nil, fmt.Errorf("document store connection string is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("document store database is required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("document store collection is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		connect:  mongoConnector(cfg),
		embedder: embedder,
		logger:   logger,
	}, nil
}

// NewRetrieverWithConnector is NewRetriever with an injected store
// session factory, for tests.
func NewRetrieverWithConnector(connect Connector, embedder Embedder, logger *slog.Logger) (*Retriever, error) {
	if connect == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{connect: connect, embedder: embedder, logger: logger}, nil
}

// Retrieve embeds the query, runs a nearest-neighbor search, and returns
// the matched document bodies joined with blank lines. The store session
// is released on every exit path.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("retriever is not initialized")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	session, err := r.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("connect document store: %w", err)
	}
	defer func() {
		if err := session.Disconnect(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("document_store_disconnect_error", "error", err.Error())
		}
	}()

	docs, err := session.Search(ctx, vector, resultLimit, candidatePool)
	if err != nil {
		return "", fmt.Errorf("vector search: %w", err)
	}
	return strings.Join(docs, "\n\n"), nil
}

func mongoConnector(cfg Config) Connector {
	return func(ctx context.Context) (Session, error) {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.ConnectionString))
		if err != nil {
			return nil, err
		}
		return &mongoSession{
			client:     client,
			collection: client.Database(cfg.Database).Collection(cfg.Collection),
		}, nil
	}
}

type mongoSession struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func (s *mongoSession) Search(ctx context.Context, vector []float64, limit, numCandidates int) ([]string, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: indexName},
			{Key: "path", Value: embeddingPath},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: limit},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: textKey, Value: 1},
		}}},
	}
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	docs := make([]string, 0, len(rows))
	for _, row := range rows {
		if body, ok := row[textKey].(string); ok && strings.TrimSpace(body) != "" {
			docs = append(docs, body)
		}
	}
	return docs, nil
}

func (s *mongoSession) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
