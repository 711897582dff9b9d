package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github/itish2003/newsrag/models"
)

const chromaPayloadKey = "payload"

// ChromaBackend stores entries in a Chroma collection. The document text is
// the article content; the full payload travels as a JSON metadata string.
type ChromaBackend struct {
	client chromago.Client
	name   string

	mu         sync.Mutex
	collection chromago.Collection
}

// NewChromaBackend connects to the Chroma server at baseURL. An empty URL
// uses the client default (http://localhost:8000).
func NewChromaBackend(baseURL, collection string) (*ChromaBackend, error) {
	var opts []chromago.ClientOption
	if baseURL != "" {
		opts = append(opts, chromago.WithBaseURL(baseURL))
	}
	client, err := chromago.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	return &ChromaBackend{client: client, name: collection}, nil
}

func (c *ChromaBackend) Name() string { return "chroma" }

func (c *ChromaBackend) Close() error { return c.client.Close() }

func (c *ChromaBackend) EnsureCollection(ctx context.Context, dimension int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collection != nil {
		return nil
	}
	col, err := c.client.GetOrCreateCollection(
		ctx,
		c.name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", "cosine"),
				chromago.NewIntAttribute("dimension", int64(dimension)),
				chromago.NewStringAttribute("created_by", "newsrag"),
			),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to get or create collection %q: %w", c.name, err)
	}
	c.collection = col
	return nil
}

func (c *ChromaBackend) current() (chromago.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collection == nil {
		return nil, errors.New("chroma collection not initialised")
	}
	return c.collection, nil
}

func (c *ChromaBackend) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	col, err := c.current()
	if err != nil {
		return err
	}
	ids := make([]chromago.DocumentID, 0, len(entries))
	texts := make([]string, 0, len(entries))
	vecs := make([]embeddings.Embedding, 0, len(entries))
	metas := make([]chromago.DocumentMetadata, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of %s: %w", e.ID, err)
		}
		ids = append(ids, chromago.DocumentID(e.ID))
		texts = append(texts, e.Payload.Content)
		vecs = append(vecs, embeddings.NewEmbeddingFromFloat32(e.Vector))
		metas = append(metas, chromago.NewDocumentMetadata(
			chromago.NewStringAttribute(chromaPayloadKey, string(raw)),
			chromago.NewStringAttribute("url", e.Payload.URL),
			chromago.NewStringAttribute("source", e.Payload.Source),
		))
	}
	err = col.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vecs...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert records to chromadb: %w", err)
	}
	return nil
}

func (c *ChromaBackend) Search(ctx context.Context, vector models.Embedding, limit int, _ float64) ([]models.SearchHit, error) {
	col, err := c.current()
	if err != nil {
		return nil, err
	}
	results, err := col.Query(
		ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	idGroups := results.GetIDGroups()
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}

	hits := make([]models.SearchHit, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		var payload models.Payload
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			payload = decodeChromaPayload(metaGroups[0][i])
		}
		score := 0.0
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			// cosine distance -> similarity
			score = 1 - float64(distGroups[0][i])
		}
		hits = append(hits, models.SearchHit{ID: string(id), Score: score, Payload: payload})
	}
	return hits, nil
}

func (c *ChromaBackend) List(ctx context.Context) ([]models.IndexEntry, error) {
	col, err := c.current()
	if err != nil {
		return nil, err
	}
	results, err := col.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents from chromadb: %w", err)
	}
	ids := results.GetIDs()
	metadatas := results.GetMetadatas()
	out := make([]models.IndexEntry, 0, len(ids))
	for i, id := range ids {
		var payload models.Payload
		if i < len(metadatas) {
			payload = decodeChromaPayload(metadatas[i])
		}
		out = append(out, models.IndexEntry{ID: string(id), Payload: payload})
	}
	return out, nil
}

func (c *ChromaBackend) Count(ctx context.Context) (int, error) {
	col, err := c.current()
	if err != nil {
		return 0, err
	}
	n, err := col.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(n), nil
}

func (c *ChromaBackend) DeleteCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.client.DeleteCollection(ctx, c.name); err != nil {
		return fmt.Errorf("failed to delete collection %q: %w", c.name, err)
	}
	c.collection = nil
	return nil
}

// decodeChromaPayload goes through JSON because DocumentMetadata does not
// expose its attribute map.
func decodeChromaPayload(meta chromago.DocumentMetadata) models.Payload {
	var payload models.Payload
	if meta == nil {
		return payload
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return payload
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return payload
	}
	if s, ok := attrs[chromaPayloadKey].(string); ok {
		_ = json.Unmarshal([]byte(s), &payload)
	}
	return payload
}
