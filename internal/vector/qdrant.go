package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/unitedwerise/backend/internal/logger"
	"go.uber.org/zap"
)

// Config holds configuration for connecting to Qdrant
type Config struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
}

// Point is the data needed to upsert a single post embedding
type Point struct {
	PostID     string
	AuthorID   string
	DistrictID string
	CreatedAt  time.Time
	Embedding  []float32
}

// Result is a similarity match returned from a query
type Result struct {
	PostID string
	Score  float32
}

// Index stores post embeddings in Qdrant for similarity search
type Index struct {
	client     *qdrant.Client
	collection string
	dims       uint64
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("vector: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("vector: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewIndex creates an Index and connects to the Qdrant server via gRPC
func NewIndex(cfg Config) (*Index, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &Index{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
	}, nil
}

// EnsureCollection creates the collection if it doesn't already exist and
// ensures payload indexes are present. CreateFieldIndex is idempotent on
// Qdrant, so the index pass safely backfills indexes added later.
func (q *Index) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("vector: check collection exists: %w", err)
	}

	if !exists {
		m := uint64(16)
		efConstruct := uint64(128)

		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			}),
		}); err != nil {
			return fmt.Errorf("vector: create collection %q: %w", q.collection, err)
		}
		logger.Log.Info("Qdrant collection created",
			zap.String("collection", q.collection),
			zap.Uint64("dims", q.dims),
		)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"author_id", "district_id"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("vector: ensure index on %q: %w", field, err)
		}
	}

	floatType := qdrant.FieldType_FieldTypeFloat
	if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      "created_at_unix",
		FieldType:      &floatType,
	}); err != nil {
		return fmt.Errorf("vector: ensure index on created_at_unix: %w", err)
	}

	return nil
}

// Upsert inserts or updates post embeddings
func (q *Index) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload := map[string]any{
			"author_id":       p.AuthorID,
			"created_at_unix": float64(p.CreatedAt.Unix()),
		}
		if p.DistrictID != "" {
			payload["district_id"] = p.DistrictID
		}
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.PostID),
			Vectors: qdrant.NewVectorsDense(p.Embedding),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("vector: qdrant upsert %d points: %w", len(points), err)
	}
	return nil
}

// SearchSimilar returns post IDs with embeddings similar to the query vector.
// districtID, when non-empty, restricts results to posts from that district.
// since, when non-zero, restricts results to posts created after it.
func (q *Index) SearchSimilar(ctx context.Context, embedding []float32, districtID string, since time.Time, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}

	var must []*qdrant.Condition
	if districtID != "" {
		must = append(must, qdrant.NewMatch("district_id", districtID))
	}
	if !since.IsZero() {
		must = append(must, qdrant.NewRange("created_at_unix", &qdrant.Range{
			Gte: qdrant.PtrOf(float64(since.Unix())),
		}))
	}

	fetchLimit := uint64(limit)
	query := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(embedding),
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(false),
	}
	if len(must) > 0 {
		query.Filter = &qdrant.Filter{Must: must}
	}

	scored, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector: qdrant query: %w", err)
	}

	results := make([]Result, 0, len(scored))
	for _, sp := range scored {
		idStr := sp.Id.GetUuid()
		if idStr == "" {
			continue
		}
		results = append(results, Result{PostID: idStr, Score: sp.Score})
	}

	return results, nil
}

// Delete removes post embeddings by post ID
func (q *Index) Delete(ctx context.Context, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(postIDs))
	for i, id := range postIDs {
		pointIDs[i] = qdrant.NewID(id)
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: pointIDs,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: qdrant delete %d points: %w", len(postIDs), err)
	}
	return nil
}

// Healthy returns nil if Qdrant is reachable
func (q *Index) Healthy(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := q.client.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("vector: qdrant unhealthy: %w", err)
	}
	return nil
}

// Close shuts down the Qdrant gRPC connection
func (q *Index) Close() error {
	return q.client.Close()
}
