package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"insightbot/internal/contextutil"
)

const scrollPageSize = 256

// QdrantIndex implements Index on a Qdrant collection using dot-product
// distance. Unlike FlatIndex, deleting a document removes its vectors.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        int
	logger     *slog.Logger
}

// NewQdrantIndex creates a Qdrant-backed index.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port is derived as the HTTP port + 1.
func NewQdrantIndex(urlStr, collection string, dim int, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, err := grpcAddress(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantIndex{
		client:     client,
		collection: collection,
		dim:        dim,
		logger:     logger,
	}, nil
}

func grpcAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = httpPort + 1
		}
	}
	return host, port, nil
}

func (q *QdrantIndex) getLogger(ctx context.Context) *slog.Logger {
	if l := contextutil.LoggerFromContext(ctx); l != slog.Default() {
		return l
	}
	if q.logger != nil {
		return q.logger
	}
	return slog.Default()
}

// pointID derives a stable UUID from a chunk id; Qdrant only accepts UUIDs or integers.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// Dimension returns the embedding width.
func (q *QdrantIndex) Dimension() int { return q.dim }

// EnsureCollection creates the collection if missing, otherwise validates its vector size.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	logger := q.getLogger(ctx)

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", q.collection, "vector_size", q.dim)
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.dim),
				Distance: qdrant.Distance_Dot,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		return nil
	}

	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	var actual uint64
	if cfg := info.GetConfig(); cfg != nil && cfg.GetParams() != nil {
		if params := cfg.GetParams().GetVectorsConfig().GetParams(); params != nil {
			actual = params.GetSize()
		}
	}
	if actual == 0 {
		return fmt.Errorf("could not determine collection vector size")
	}
	if int(actual) != q.dim {
		return fmt.Errorf("collection vector size mismatch: expected %d, got %d", q.dim, actual)
	}

	logger.InfoContext(ctx, "collection validated", "collection", q.collection, "vector_size", q.dim)
	return nil
}

// Insert upserts one point per chunk and waits for the write to be applied.
func (q *QdrantIndex) Insert(ctx context.Context, vectors [][]float32, chunks []Chunk) error {
	logger := q.getLogger(ctx)

	if len(vectors) != len(chunks) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != q.dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(vectors[i]), q.dim)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(c.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(chunkPayload(c)),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", q.collection, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.InfoContext(ctx, "upserted points", "collection", q.collection, "count", len(points))
	return nil
}

// Search queries the collection with a server-side score threshold.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int, threshold float32) ([]Hit, error) {
	logger := q.getLogger(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if len(query) != q.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(query), q.dim)
	}

	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		ScoreThreshold: qdrant.PtrOf(threshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", q.collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	hits := make([]Hit, 0, len(scored))
	for _, p := range scored {
		if p.GetScore() < threshold {
			continue
		}
		hits = append(hits, Hit{Chunk: payloadChunk(convertPayloadToMap(p.GetPayload())), Score: p.GetScore()})
	}

	logger.DebugContext(ctx, "search completed", "collection", q.collection, "k", k, "results", len(hits))
	return hits, nil
}

// DeleteDocument deletes every point whose payload carries documentID.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)}}

	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count document points: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete document points: %w", err)
	}

	q.getLogger(ctx).InfoContext(ctx, "deleted document points", "collection", q.collection, "document_id", documentID, "count", n)
	return int(n), nil
}

// ChunkCount returns the exact number of points.
func (q *QdrantIndex) ChunkCount(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// DocumentCount scrolls the document_id payload of every point.
func (q *QdrantIndex) DocumentCount(ctx context.Context) (int, error) {
	docs := make(map[string]struct{})
	var offset *qdrant.PointId
	for {
		page, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize + 1)),
			WithPayload:    qdrant.NewWithPayloadInclude("document_id"),
		})
		if err != nil {
			return 0, fmt.Errorf("failed to scroll points: %w", err)
		}

		// The extra point is the first of the next page.
		last := len(page)
		if last > scrollPageSize {
			last = scrollPageSize
		}
		for _, p := range page[:last] {
			if v, ok := p.GetPayload()["document_id"]; ok {
				docs[v.GetStringValue()] = struct{}{}
			}
		}
		if len(page) <= scrollPageSize {
			break
		}
		offset = page[scrollPageSize].GetId()
	}
	return len(docs), nil
}

func chunkPayload(c Chunk) map[string]any {
	meta := make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	return map[string]any{
		"chunk_id":    c.ID,
		"document_id": c.DocumentID,
		"chunk_index": int64(c.ChunkIndex),
		"text":        c.Text,
		"filename":    c.Filename,
		"metadata":    meta,
	}
}

func payloadChunk(m map[string]any) Chunk {
	c := Chunk{}
	c.ID, _ = m["chunk_id"].(string)
	c.DocumentID, _ = m["document_id"].(string)
	c.Text, _ = m["text"].(string)
	c.Filename, _ = m["filename"].(string)
	if idx, ok := m["chunk_index"].(int64); ok {
		c.ChunkIndex = int(idx)
	}
	if meta, ok := m["metadata"].(map[string]any); ok && len(meta) > 0 {
		c.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			if s, ok := v.(string); ok {
				c.Metadata[k] = s
			}
		}
	}
	return c
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
