package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github/itish2003/newsrag/models"
)

// QdrantConfig configures a QdrantBackend.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantBackend is a minimal REST client to one Qdrant collection.
// Qdrant only accepts UUID or integer point ids, so document ids are mapped
// to name-based UUIDs and the original id is kept in the payload.
type QdrantBackend struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

func NewQdrantBackend(cfg QdrantConfig) *QdrantBackend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantBackend{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (q *QdrantBackend) Name() string { return "qdrant" }

type qdrantPayload struct {
	DocID string `json:"doc_id"`
	models.Payload
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector,omitempty"`
	Payload qdrantPayload `json:"payload"`
}

func pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String()
}

func (q *QdrantBackend) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", q.url, q.collection, suffix)
}

func (q *QdrantBackend) EnsureCollection(ctx context.Context, dimension int) error {
	status, err := q.do(ctx, http.MethodGet, q.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := q.do(ctx, http.MethodPut, q.collectionURL(""), body, nil); err != nil {
		return err
	}
	return nil
}

func (q *QdrantBackend) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	points := make([]qdrantPoint, len(entries))
	for i, e := range entries {
		points[i] = qdrantPoint{
			ID:      pointID(e.ID),
			Vector:  e.Vector,
			Payload: qdrantPayload{DocID: e.ID, Payload: e.Payload},
		}
	}
	_, err := q.do(ctx, http.MethodPut, q.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

func (q *QdrantBackend) Search(ctx context.Context, vector models.Embedding, limit int, scoreFloor float64) ([]models.SearchHit, error) {
	req := map[string]any{
		"vector":          vector,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": scoreFloor,
	}
	var resp struct {
		Result []struct {
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	if _, err := q.do(ctx, http.MethodPost, q.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]models.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, models.SearchHit{ID: r.Payload.DocID, Score: r.Score, Payload: r.Payload.Payload})
	}
	return hits, nil
}

func (q *QdrantBackend) List(ctx context.Context) ([]models.IndexEntry, error) {
	var out []models.IndexEntry
	var offset any
	for {
		req := map[string]any{"limit": 256, "with_payload": true, "with_vector": false}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []qdrantPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		if _, err := q.do(ctx, http.MethodPost, q.collectionURL("/points/scroll"), req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, models.IndexEntry{ID: p.Payload.DocID, Payload: p.Payload.Payload})
		}
		if resp.Result.NextPageOffset == nil {
			return out, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (q *QdrantBackend) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := q.do(ctx, http.MethodPost, q.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (q *QdrantBackend) DeleteCollection(ctx context.Context) error {
	status, err := q.do(ctx, http.MethodDelete, q.collectionURL(""), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

// do sends body as JSON and decodes the response into out when given. The
// status code is returned even on failure so callers can branch on 404.
func (q *QdrantBackend) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("qdrant: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("qdrant: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
