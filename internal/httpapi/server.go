// Package httpapi exposes the knowledge base over HTTP.
//
// The API mirrors the daemon's operations one to one: indexing documents,
// listing and clearing the knowledge base, and chat-style question
// answering. Routing is Echo with recovery, request ids, and Prometheus
// instrumentation; shutdown is graceful with a configured timeout.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/answer"
	"github.com/fyrsmithlabs/answerd/internal/config"
	"github.com/fyrsmithlabs/answerd/internal/embeddings"
	"github.com/fyrsmithlabs/answerd/internal/knowledge"
	"github.com/fyrsmithlabs/answerd/internal/retriever"
)

// Server is the answerd HTTP server.
type Server struct {
	config config.ServerConfig
	echo   *echo.Echo
	kb     *knowledge.Manager
	logger *zap.Logger
}

// HealthResponse is the JSON response for the /health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// AddRequest is the body of POST /api/knowledge-base/add.
type AddRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// DocumentsResponse is the body of GET /api/knowledge-base/documents.
type DocumentsResponse struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// DocumentInfo describes one indexed document.
type DocumentInfo struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	ChunkCount   int    `json:"chunk_count"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the body of POST /api/chat responses.
type ChatResponse struct {
	Response         string          `json:"response"`
	Sources          []answer.Source `json:"sources"`
	FoundInDocuments bool            `json:"found_in_documents"`
	ConversationID   string          `json:"conversation_id"`
}

// ErrorResponse is the JSON body of error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(cfg config.ServerConfig, kb *knowledge.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metricsMiddleware())

	s := &Server{
		config: cfg,
		echo:   e,
		kb:     kb,
		logger: logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.POST("/knowledge-base/add", s.handleAdd)
	api.GET("/knowledge-base/documents", s.handleListDocuments)
	api.DELETE("/knowledge-base/clear", s.handleClear)
	api.POST("/chat", s.handleChat)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "answerd"})
}

// handleAdd indexes the requested documents. With ?clear_first=true the
// existing index is dropped before anything is added. Per-document failures
// come back in the response body; the call itself still succeeds.
func (s *Server) handleAdd(c echo.Context) error {
	var req AddRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	clearFirst := strings.EqualFold(c.QueryParam("clear_first"), "true")

	result, err := s.kb.AddDocuments(c.Request().Context(), req.DocumentIDs, clearFirst)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	docs, err := s.kb.ListDocuments(c.Request().Context())
	if err != nil {
		return s.errorResponse(c, err)
	}

	resp := DocumentsResponse{Documents: make([]DocumentInfo, 0, len(docs)), Count: len(docs)}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, DocumentInfo{
			DocumentID:   d.DocumentID,
			DocumentName: d.DocumentName,
			ChunkCount:   d.ChunkCount,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClear(c echo.Context) error {
	if err := s.kb.Clear(c.Request().Context()); err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

// handleChat answers a question over the knowledge base. A missing
// conversation id is minted so clients can thread follow-ups.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	ans, err := s.kb.Ask(c.Request().Context(), req.Query)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Response:         ans.Text,
		Sources:          ans.Sources,
		FoundInDocuments: ans.FoundInDocuments,
		ConversationID:   conversationID,
	})
}

// errorResponse maps domain errors to HTTP statuses.
func (s *Server) errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, retriever.ErrEmptyQuery),
		errors.Is(err, knowledge.ErrNoDocumentIDs):
		status = http.StatusBadRequest
	case errors.Is(err, embeddings.ErrEmbeddingUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}

// Start starts the HTTP server and blocks until the context is cancelled.
//
// When the context is cancelled the server performs graceful shutdown with
// the configured timeout. Returns http.ErrServerClosed on graceful
// shutdown, or any other error encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance, for tests and extensions.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
