package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
	"github/itish2003/newsrag/services"
)

// DocumentIngester accepts raw documents for indexing.
type DocumentIngester interface {
	Ingest(ctx context.Context, docs []models.Document) (int, error)
}

// DocumentIndex is the administrative view of the vector collection.
type DocumentIndex interface {
	List(ctx context.Context) ([]models.IndexEntry, error)
	DeleteCollection(ctx context.Context) error
}

// RAGController handles the HTTP requests for the news RAG API. It is a thin
// adapter: all behaviour lives in the services package.
type RAGController struct {
	ragService services.RAGService
	ingester   DocumentIngester
	index      DocumentIndex
	log        logrus.FieldLogger
}

// NewRAGController is a constructor function that creates a new RAGController.
func NewRAGController(service services.RAGService, ingester DocumentIngester, index DocumentIndex, log logrus.FieldLogger) *RAGController {
	return &RAGController{
		ragService: service,
		ingester:   ingester,
		index:      index,
		log:        logging.Component(log, "http"),
	}
}

// RegisterRoutes mounts the API on router.
func (c *RAGController) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", c.Health)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/sessions", c.CreateSession)
		apiV1.GET("/sessions", c.ListSessions)
		apiV1.GET("/sessions/:id/messages", c.GetHistory)
		apiV1.DELETE("/sessions/:id", c.ClearHistory)
		apiV1.POST("/sessions/:id/ask", c.Ask)
		apiV1.POST("/documents", c.IngestDocuments)
		apiV1.GET("/documents", c.ListDocuments)
		apiV1.DELETE("/documents", c.ResetDocuments)
	}
}

// CORSMiddleware allows browser clients from any origin.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Health reports provider modes and backend reachability.
func (c *RAGController) Health(ctx *gin.Context) {
	stats, err := c.ragService.Stats(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
			"kind":   models.ErrorKind(err),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "newsrag",
		"stats":   stats,
	})
}

// CreateSession handles POST /api/v1/sessions. The body is optional.
func (c *RAGController) CreateSession(ctx *gin.Context) {
	var req models.CreateSessionRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error(), Kind: "InvalidInput"})
			return
		}
	}
	sess, err := c.ragService.CreateSession(ctx.Request.Context(), req.Metadata)
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, models.CreateSessionResponse{SessionID: sess.ID})
}

func (c *RAGController) ListSessions(ctx *gin.Context) {
	sessions, err := c.ragService.ListSessions(ctx.Request.Context())
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.ListSessionsResponse{Count: len(sessions), Sessions: sessions})
}

func (c *RAGController) GetHistory(ctx *gin.Context) {
	id := ctx.Param("id")
	messages, err := c.ragService.GetHistory(ctx.Request.Context(), id)
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.HistoryResponse{SessionID: id, Messages: messages})
}

func (c *RAGController) ClearHistory(ctx *gin.Context) {
	if err := c.ragService.ClearHistory(ctx.Request.Context(), ctx.Param("id")); err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// Ask handles POST /api/v1/sessions/:id/ask. With ?stream=true the answer is
// sent as server-sent "token" events followed by one "done" event carrying
// the full result.
func (c *RAGController) Ask(ctx *gin.Context) {
	var req models.AskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error(), Kind: "InvalidInput"})
		return
	}
	sessionID := ctx.Param("id")

	if ctx.Query("stream") != "true" {
		res, err := c.ragService.Ask(ctx.Request.Context(), sessionID, req.Query)
		if err != nil {
			c.writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, res)
		return
	}

	stream, err := c.ragService.AskStream(ctx.Request.Context(), sessionID, req.Query)
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Status(http.StatusOK)
	// A client that disconnects cancels the request context, which stops
	// forwarding and closes the channel.
	for f := range stream.Fragments() {
		ctx.SSEvent("token", f)
		ctx.Writer.Flush()
	}
	res, err := stream.Wait()
	if err != nil {
		ctx.SSEvent("error", models.ErrorResponse{Error: err.Error(), Kind: models.ErrorKind(err)})
	} else {
		ctx.SSEvent("done", res)
	}
	ctx.Writer.Flush()
}

// IngestDocuments handles POST /api/v1/documents.
func (c *RAGController) IngestDocuments(ctx *gin.Context) {
	var req models.IngestDocumentsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error(), Kind: "InvalidInput"})
		return
	}
	n, err := c.ingester.Ingest(ctx.Request.Context(), req.Documents)
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, models.IngestDocumentsResponse{Received: len(req.Documents), Ingested: n})
}

// ListDocuments handles GET /api/v1/documents.
func (c *RAGController) ListDocuments(ctx *gin.Context) {
	entries, err := c.index.List(ctx.Request.Context())
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	docs := make([]models.IndexedDocument, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, models.IndexedDocument{ID: e.ID, Payload: e.Payload})
	}
	ctx.JSON(http.StatusOK, models.ListDocumentsResponse{Count: len(docs), Documents: docs})
}

// ResetDocuments handles DELETE /api/v1/documents. It drops the whole
// collection; the next ingest recreates it.
func (c *RAGController) ResetDocuments(ctx *gin.Context) {
	if err := c.index.DeleteCollection(ctx.Request.Context()); err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *RAGController) writeError(ctx *gin.Context, err error) {
	status := StatusFor(err)
	entry := c.log.WithError(err).WithField("path", ctx.FullPath())
	if status >= http.StatusInternalServerError {
		entry.Error("HTTP: request failed")
	} else {
		entry.Debug("HTTP: request rejected")
	}
	ctx.JSON(status, models.ErrorResponse{Error: err.Error(), Kind: models.ErrorKind(err)})
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmbeddingFailed),
		errors.Is(err, models.ErrRetrievalFailed),
		errors.Is(err, models.ErrGenerationFailed),
		errors.Is(err, models.ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
