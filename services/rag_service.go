package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github/itish2003/newsrag/archive"
	"github/itish2003/newsrag/cache"
	"github/itish2003/newsrag/embedding"
	"github/itish2003/newsrag/generation"
	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
	"github/itish2003/newsrag/session"
)

const (
	minQueryLength = 3
	maxQueryLength = 500

	// NoContextNote is attached to results answered without retrieved context.
	NoContextNote = "No relevant articles were found for this question; the answer is not grounded in indexed sources."
)

// RAGService is the caller-facing surface of the query pipeline.
type RAGService interface {
	CreateSession(ctx context.Context, meta map[string]string) (*models.Session, error)
	Ask(ctx context.Context, sessionID, query string) (*models.QueryResult, error)
	AskStream(ctx context.Context, sessionID, query string) (*AskStream, error)
	GetHistory(ctx context.Context, sessionID string) ([]models.Message, error)
	ClearHistory(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]*models.Session, error)
	Stats(ctx context.Context) (*Stats, error)
}

// VectorIndex is the part of vectorindex.Index the services use.
type VectorIndex interface {
	Upsert(ctx context.Context, entries []models.IndexEntry) error
	Search(ctx context.Context, vector models.Embedding, k int, scoreFloor float64) ([]models.SearchHit, error)
	List(ctx context.Context) ([]models.IndexEntry, error)
	Count(ctx context.Context) (int, error)
	Backend() string
}

// Stats summarises the running pipeline for health checks.
type Stats struct {
	Sessions         int    `json:"sessions"`
	IndexedDocuments int    `json:"indexedDocuments"`
	IndexBackend     string `json:"indexBackend"`
	EmbeddingMode    string `json:"embeddingMode"`
	GenerationMode   string `json:"generationMode"`
	// ArchivedSessions is set when the archive can count its sessions.
	ArchivedSessions *int `json:"archivedSessions,omitempty"`
}

// SessionCounter is implemented by archives that can report their size.
type SessionCounter interface {
	SessionCount(ctx context.Context) (int, error)
}

// RAGDeps are the collaborators of the query pipeline.
type RAGDeps struct {
	Embedder  embedding.Gateway
	Index     VectorIndex
	Generator generation.Gateway
	Cache     cache.Store
	Sessions  *session.Store
	// Archive is optional.
	Archive archive.Recorder
	Log     logrus.FieldLogger
}

// RAGOptions are the retrieval defaults of the pipeline.
type RAGOptions struct {
	TopK          int
	ScoreFloor    float64
	HistoryWindow int
	QueryTTL      time.Duration
	Now           func() time.Time
}

// ragServiceImpl holds the dependencies it needs to do its job
type ragServiceImpl struct {
	embedder  embedding.Gateway
	index     VectorIndex
	generator generation.Gateway
	cache     cache.Store
	sessions  *session.Store
	archive   archive.Recorder
	log       logrus.FieldLogger

	opts  RAGOptions
	locks *sessionLocks
}

// NewRAGService creates a new RAG service instance
func NewRAGService(deps RAGDeps, opts RAGOptions) RAGService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 5
	}
	if opts.QueryTTL <= 0 {
		opts.QueryTTL = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rec := deps.Archive
	if rec == nil {
		rec = archive.Noop{}
	}
	return &ragServiceImpl{
		embedder:  deps.Embedder,
		index:     deps.Index,
		generator: deps.Generator,
		cache:     deps.Cache,
		sessions:  deps.Sessions,
		archive:   rec,
		log:       logging.Component(deps.Log, "rag"),
		opts:      opts,
		locks:     newSessionLocks(),
	}
}

func (r *ragServiceImpl) CreateSession(ctx context.Context, meta map[string]string) (*models.Session, error) {
	sess, err := r.sessions.Create(ctx, uuid.NewString(), meta)
	if err != nil {
		return nil, err
	}
	r.archive.RecordSession(*sess)
	r.log.WithField("session_id", sess.ID).Info("SERVICE: session created")
	return sess, nil
}

func (r *ragServiceImpl) GetHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Messages, nil
}

func (r *ragServiceImpl) ClearHistory(ctx context.Context, sessionID string) error {
	if err := r.sessions.Clear(ctx, sessionID); err != nil {
		return err
	}
	r.log.WithField("session_id", sessionID).Info("SERVICE: session cleared")
	return nil
}

func (r *ragServiceImpl) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return r.sessions.List(ctx)
}

func (r *ragServiceImpl) Stats(ctx context.Context) (*Stats, error) {
	sessions, err := r.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := r.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Sessions:         len(sessions),
		IndexedDocuments: docs,
		IndexBackend:     r.index.Backend(),
		EmbeddingMode:    r.embedder.Mode(),
		GenerationMode:   r.generator.Mode(),
	}
	if counter, ok := r.archive.(SessionCounter); ok {
		// the archive is best effort and never fails a health check
		if n, err := counter.SessionCount(ctx); err != nil {
			r.log.WithError(err).Warn("ARCHIVE: could not count sessions")
		} else {
			st.ArchivedSessions = &n
		}
	}
	return st, nil
}

// turn is a query that missed the cache and has been retrieved, holding the
// session lock until finish.
type turn struct {
	query     string
	sessionID string
	history   []models.Message
	hits      []models.SearchHit
	release   func()
}

// Ask answers query within sessionID, creating the session on first use.
// An empty sessionID starts a new session.
func (r *ragServiceImpl) Ask(ctx context.Context, sessionID, query string) (*models.QueryResult, error) {
	cached, t, err := r.begin(ctx, sessionID, query)
	if err != nil || cached != nil {
		return cached, err
	}
	defer t.release()

	answer, err := r.generator.Generate(ctx, generation.Request{Query: t.query, Context: t.hits, History: t.history})
	if err != nil {
		return nil, r.stageErr(t, models.ErrGenerationFailed, err)
	}
	return r.finish(context.WithoutCancel(ctx), t, answer)
}

// begin runs CacheCheck, Embed and Retrieve. It returns either a cached
// result or a turn whose session lock is held.
func (r *ragServiceImpl) begin(ctx context.Context, sessionID, query string) (*models.QueryResult, *turn, error) {
	if err := validateQuery(query); err != nil {
		return nil, nil, err
	}

	// CacheCheck. A hit is a pure read: the session is not touched.
	key := cache.QueryKey(query)
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("query cache: %w", err)
	}
	if ok {
		var res models.QueryResult
		if err := json.Unmarshal(raw, &res); err == nil {
			r.log.WithField("session_id", sessionID).WithField("cached", true).Info("SERVICE: answered from cache")
			return &res, nil, nil
		}
		r.log.WithField("key", key).Warn("SERVICE: unreadable cache entry, recomputing")
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	release, err := r.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	t := &turn{query: query, sessionID: sessionID, release: release}
	handedOff := false
	defer func() {
		if !handedOff {
			release()
		}
	}()

	sess, created, err := r.sessions.GetOrCreate(ctx, sessionID, nil)
	if err != nil {
		return nil, nil, err
	}
	if created {
		r.archive.RecordSession(*sess)
	}
	t.history = sess.LastMessages(r.opts.HistoryWindow)

	// The user message is committed before generation and is not rolled back
	// if a later stage fails.
	if err := r.appendMessage(ctx, sessionID, models.Message{Role: models.RoleUser, Content: query}); err != nil {
		return nil, nil, err
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, r.stageErr(t, models.ErrEmbeddingFailed, err)
	}

	hits, err := r.index.Search(ctx, vector, r.opts.TopK, r.opts.ScoreFloor)
	if err != nil {
		return nil, nil, r.stageErr(t, models.ErrRetrievalFailed, err)
	}
	t.hits = hits
	r.log.WithField("session_id", sessionID).WithField("hits", len(hits)).Debug("SERVICE: retrieved context")

	handedOff = true
	return nil, t, nil
}

// finish builds the result envelope and persists it to the query cache and
// the session history. Callers pass a context detached from cancellation so
// a generated answer is always recorded.
func (r *ragServiceImpl) finish(ctx context.Context, t *turn, answer *generation.Answer) (*models.QueryResult, error) {
	citations := answer.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	res := &models.QueryResult{
		Text:      answer.Text,
		Citations: citations,
		Query:     t.query,
		SessionID: t.sessionID,
		Timestamp: r.opts.Now().UTC(),
	}
	if len(t.hits) == 0 {
		res.Note = NoContextNote
	}

	stored := *res
	stored.Cached = true
	if raw, err := json.Marshal(stored); err != nil {
		r.log.WithError(err).Warn("SERVICE: could not encode result for cache")
	} else if err := r.cache.Set(ctx, cache.QueryKey(t.query), raw, r.opts.QueryTTL); err != nil {
		// the answer exists; only later repeats lose the shortcut
		r.log.WithError(err).Warn("SERVICE: could not cache result")
	}

	if err := r.appendMessage(ctx, t.sessionID, models.Message{
		Role:    models.RoleAssistant,
		Content: res.Text,
		Sources: citations,
	}); err != nil {
		return nil, err
	}

	r.log.WithField("session_id", t.sessionID).WithField("citations", len(citations)).WithField("cached", false).Info("SERVICE: query answered")
	return res, nil
}

func (r *ragServiceImpl) appendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	sess, err := r.sessions.Append(ctx, sessionID, msg)
	if err != nil {
		return err
	}
	r.archive.RecordMessage(sessionID, sess.Messages[len(sess.Messages)-1])
	return nil
}

func (r *ragServiceImpl) stageErr(t *turn, stage, err error) error {
	r.log.WithError(err).WithField("session_id", t.sessionID).WithField("stage", stage.Error()).Error("SERVICE: query failed")
	return fmt.Errorf("%w: %w", stage, err)
}

func validateQuery(q string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(q))
	if n < minQueryLength || n > maxQueryLength {
		return fmt.Errorf("%w: query must be between %d and %d characters, got %d",
			models.ErrInvalidInput, minQueryLength, maxQueryLength, n)
	}
	return nil
}
