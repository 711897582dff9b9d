package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/time/rate"

	"github/itish2003/newsrag/embedding"
	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
)

// IngestionOptions tune batching and filtering of incoming documents.
type IngestionOptions struct {
	BatchSize        int
	BatchPause       time.Duration
	MinTitleLength   int
	MinContentLength int
	// ExcerptChars bounds the content that is embedded with the title.
	ExcerptChars int
}

// IngestionService embeds raw documents and upserts them into the index.
type IngestionService struct {
	embedder embedding.Gateway
	index    VectorIndex
	opts     IngestionOptions
	splitter textsplitter.RecursiveCharacter
	limiter  *rate.Limiter
	log      logrus.FieldLogger
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(embedder embedding.Gateway, index VectorIndex, opts IngestionOptions, log logrus.FieldLogger) *IngestionService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = 1000
	}
	limit := rate.Inf
	if opts.BatchPause > 0 {
		limit = rate.Every(opts.BatchPause)
	}
	return &IngestionService{
		embedder: embedder,
		index:    index,
		opts:     opts,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.ExcerptChars),
			textsplitter.WithChunkOverlap(0),
		),
		limiter: rate.NewLimiter(limit, 1),
		log:     logging.Component(log, "ingestion"),
	}
}

// Ingest deduplicates docs by url, drops near-empty ones and indexes the
// rest in paced batches. Per-document failures are logged and skipped; the
// returned count is the number of documents indexed. The error is non-nil
// only when ctx ends before all batches ran.
func (s *IngestionService) Ingest(ctx context.Context, docs []models.Document) (int, error) {
	prepared := s.prepare(docs)
	s.log.WithField("received", len(docs)).WithField("accepted", len(prepared)).Info("INDEXER: starting ingestion")

	indexed := 0
	for start := 0; start < len(prepared); start += s.opts.BatchSize {
		if err := s.limiter.Wait(ctx); err != nil {
			return indexed, err
		}
		end := min(start+s.opts.BatchSize, len(prepared))
		indexed += s.ingestBatch(ctx, start/s.opts.BatchSize, prepared[start:end])
	}

	s.log.WithField("indexed", indexed).WithField("received", len(docs)).Info("INDEXER: ingestion finished")
	return indexed, nil
}

// prepare keeps the first document per url and drops documents whose title
// or content is shorter than the configured minimum. Ids default to a
// name-based UUID of the url, so re-ingesting an article overwrites it.
func (s *IngestionService) prepare(docs []models.Document) []models.Document {
	seen := make(map[string]bool, len(docs))
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		url := strings.TrimSpace(d.URL)
		if url != "" {
			if seen[url] {
				s.log.WithField("url", url).Debug("INDEXER: duplicate url dropped")
				continue
			}
			seen[url] = true
		}
		if utf8.RuneCountInString(strings.TrimSpace(d.Title)) < s.opts.MinTitleLength ||
			utf8.RuneCountInString(strings.TrimSpace(d.Content)) < s.opts.MinContentLength {
			s.log.WithField("url", url).Debug("INDEXER: near-empty document dropped")
			continue
		}
		if d.ID == "" {
			if url == "" {
				s.log.WithField("title", d.Title).Warn("INDEXER: document without id or url dropped")
				continue
			}
			d.ID = DocumentID(url)
		}
		out = append(out, d)
	}
	return out
}

// DocumentID is the id given to a document that arrives without one.
func DocumentID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}

func (s *IngestionService) ingestBatch(ctx context.Context, n int, batch []models.Document) int {
	log := s.log.WithField("batch", n)

	texts := make([]string, len(batch))
	for i, d := range batch {
		texts[i] = s.embeddingText(d)
	}

	vectors, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		log.WithError(err).Warn("INDEXER: batch embedding failed, retrying per document")
		vectors = make([]models.Embedding, len(batch))
		for i := range batch {
			v, err := s.embedder.Embed(ctx, texts[i])
			if err != nil {
				log.WithError(err).WithField("doc_id", batch[i].ID).Error("INDEXER: could not embed document")
				continue
			}
			vectors[i] = v
		}
	}

	entries := make([]models.IndexEntry, 0, len(batch))
	for i, d := range batch {
		if vectors[i] == nil {
			continue
		}
		entries = append(entries, models.IndexEntry{ID: d.ID, Vector: vectors[i], Payload: models.PayloadFromDocument(d)})
	}
	if len(entries) == 0 {
		return 0
	}

	err = s.index.Upsert(ctx, entries)
	if err == nil {
		log.WithField("count", len(entries)).Debug("INDEXER: batch indexed")
		return len(entries)
	}
	log.WithError(err).Warn("INDEXER: batch upsert failed, retrying per document")

	ok := 0
	for _, e := range entries {
		if err := s.index.Upsert(ctx, []models.IndexEntry{e}); err != nil {
			entry := log.WithError(err).WithField("doc_id", e.ID)
			if errors.Is(err, models.ErrDimensionMismatch) {
				entry.Error("INDEXER: vector dimension does not match collection")
			} else {
				entry.Error("INDEXER: could not index document")
			}
			continue
		}
		ok++
	}
	return ok
}

// embeddingText is the title followed by the first excerpt of the content.
func (s *IngestionService) embeddingText(d models.Document) string {
	body := strings.TrimSpace(d.Content)
	if chunks, err := s.splitter.SplitText(body); err == nil && len(chunks) > 0 {
		body = chunks[0]
	} else if r := []rune(body); len(r) > s.opts.ExcerptChars {
		body = string(r[:s.opts.ExcerptChars])
	}
	return fmt.Sprintf("%s\n\n%s", strings.TrimSpace(d.Title), body)
}
