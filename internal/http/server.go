// Package http exposes the dossier API: case lifecycle, document
// ingest, and a streaming query endpoint. Answers are delivered as
// server-sent events so clients render increments as the model emits
// them; a final sources event names the files the answer leaned on.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dossier/internal/assistant"
	"github.com/fyrsmithlabs/dossier/internal/casefile"
	"github.com/fyrsmithlabs/dossier/internal/sanitize"
)

// Assistant is the orchestrator surface the server drives.
type Assistant interface {
	Ingest(ctx context.Context, caseName string, paths []string) (assistant.IngestReport, error)
	Ask(ctx context.Context, caseName, question string) (*assistant.AnswerStream, error)
	ListCases() ([]casefile.Case, error)
	CreateCase(name string) (string, error)
	PinCase(name string, pinned bool) error
	DeleteCase(name string) error
	RenameCase(oldName, newName string) (string, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaxUploadBytes caps the request body of document uploads.
	MaxUploadBytes int64
}

// Server provides the dossier HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	assistant Assistant
	metrics   *Metrics
	logger    *zap.Logger
	config    *Config
}

// NewServer creates the API server.
func NewServer(svc Assistant, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("assistant cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9180}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.MaxUploadBytes > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%d", cfg.MaxUploadBytes)))
	}
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		assistant: svc,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/cases", s.handleListCases)
	v1.POST("/cases", s.handleCreateCase)
	v1.POST("/cases/:case/documents", s.handleIngest)
	v1.POST("/cases/:case/query", s.handleQuery)
	v1.POST("/cases/:case/pin", s.handlePin)
	v1.POST("/cases/:case/rename", s.handleRename)
	v1.DELETE("/cases/:case", s.handleDelete)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// CreateCaseRequest is the request body for POST /api/v1/cases.
type CreateCaseRequest struct {
	Name string `json:"name"`
}

// CaseResponse reports a case name after create or rename.
type CaseResponse struct {
	Name string `json:"name"`
}

// QueryRequest is the request body for the streaming query endpoint.
type QueryRequest struct {
	Question string `json:"question"`
}

// PinRequest is the request body for POST /api/v1/cases/:case/pin.
type PinRequest struct {
	Pinned bool `json:"pinned"`
}

// RenameRequest is the request body for POST /api/v1/cases/:case/rename.
type RenameRequest struct {
	Name string `json:"name"`
}

// IngestResponse wraps the ingest report. Error carries the index
// fault, if any; per-file results are reported either way.
type IngestResponse struct {
	assistant.IngestReport
	Error string `json:"error,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListCases(c echo.Context) error {
	cases, err := s.assistant.ListCases()
	if err != nil {
		s.logger.Error("list cases failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list cases")
	}
	if cases == nil {
		cases = []casefile.Case{}
	}
	return c.JSON(http.StatusOK, cases)
}

func (s *Server) handleCreateCase(c echo.Context) error {
	var req CreateCaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	name, err := s.assistant.CreateCase(req.Name)
	if errors.Is(err, casefile.ErrExists) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		s.logger.Error("create case failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create case")
	}
	return c.JSON(http.StatusCreated, CaseResponse{Name: name})
}

// handleIngest accepts a multipart upload, stages the files on disk,
// and runs the batch through the assistant. Partial success is the
// normal case: per-file outcomes always come back, with a 200 even
// when indexing stopped partway.
func (s *Server) handleIngest(c echo.Context) error {
	caseName := c.Param("case")
	if !sanitize.Valid(caseName) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case name")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files uploaded")
	}

	staging, err := os.MkdirTemp("", "dossier-upload-*")
	if err != nil {
		s.logger.Error("staging dir failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to stage upload")
	}
	defer os.RemoveAll(staging)

	var paths []string
	for _, fh := range files {
		path, err := stageFile(staging, fh)
		if err != nil {
			s.logger.Warn("upload staging failed",
				zap.String("file", fh.Filename), zap.Error(err))
			continue
		}
		paths = append(paths, path)
	}

	report, err := s.assistant.Ingest(c.Request().Context(), caseName, paths)
	resp := IngestResponse{IngestReport: report}
	if err != nil {
		resp.Error = err.Error()
	}
	s.metrics.ObserveIngest(report)
	return c.JSON(http.StatusOK, resp)
}

// handleQuery streams the answer as SSE message events, then a sources
// event naming the files behind it. A question with no evidence gets
// the refusal text as its only increment.
func (s *Server) handleQuery(c echo.Context) error {
	caseName := c.Param("case")
	if !sanitize.Valid(caseName) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case name")
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	ctx := c.Request().Context()
	stream, err := s.assistant.Ask(ctx, caseName, req.Question)
	if err != nil {
		s.logger.Error("query failed",
			zap.String("case", caseName), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to answer question")
	}
	s.metrics.ObserveQuery(stream.Refused)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	for chunk := range stream.Chunks {
		if chunk.Err != nil {
			writeEvent(res, "error", chunk.Err.Error())
			return nil
		}
		if err := writeEvent(res, "", chunk.Text); err != nil {
			// Client went away; the context cancellation stops the model.
			return nil
		}
	}

	sources := stream.Sources
	if sources == nil {
		sources = []string{}
	}
	data, _ := json.Marshal(sources)
	writeEvent(res, "sources", string(data))
	return nil
}

func (s *Server) handlePin(c echo.Context) error {
	caseName := c.Param("case")
	if !sanitize.Valid(caseName) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case name")
	}
	var req PinRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.assistant.PinCase(caseName, req.Pinned)
	if errors.Is(err, casefile.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		s.logger.Error("pin failed", zap.String("case", caseName), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to pin case")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRename(c echo.Context) error {
	caseName := c.Param("case")
	if !sanitize.Valid(caseName) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case name")
	}
	var req RenameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name field is required")
	}

	name, err := s.assistant.RenameCase(caseName, req.Name)
	switch {
	case errors.Is(err, casefile.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, casefile.ErrExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("rename failed", zap.String("case", caseName), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to rename case")
	}
	return c.JSON(http.StatusOK, CaseResponse{Name: name})
}

func (s *Server) handleDelete(c echo.Context) error {
	caseName := c.Param("case")
	if !sanitize.Valid(caseName) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case name")
	}
	err := s.assistant.DeleteCase(caseName)
	if errors.Is(err, casefile.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		s.logger.Error("delete failed", zap.String("case", caseName), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete case")
	}
	return c.NoContent(http.StatusNoContent)
}

// writeEvent emits one SSE event and flushes it. An empty name means
// the default message event. Embedded newlines become separate data
// lines per the SSE framing rules.
func writeEvent(res *echo.Response, name, data string) error {
	if name != "" {
		if _, err := fmt.Fprintf(res, "event: %s\n", name); err != nil {
			return err
		}
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(res, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(res, "\n"); err != nil {
		return err
	}
	res.Flush()
	return nil
}

// stageFile copies one uploaded part into the staging directory under
// its original base name, which later becomes the fragment provenance.
func stageFile(dir string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := filepath.Join(dir, filepath.Base(fh.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return path, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
