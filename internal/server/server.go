// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the Parse operation, the liveness check and
// Prometheus metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pdiddy/eventparse/internal/export"
	"github.com/pdiddy/eventparse/internal/pipeline"
	"github.com/pdiddy/eventparse/pkg/types"
)

// Parser is the pipeline as the server sees it.
type Parser interface {
	Parse(ctx context.Context, req types.Request) (*types.Result, error)
	Health(ctx context.Context) pipeline.Health
}

// Server is the HTTP front end.
type Server struct {
	cfg    types.ServerConfig
	parser Parser
	engine *gin.Engine
	log    *zap.Logger
}

// New builds the router. A nil gatherer serves the default registry.
func New(cfg types.ServerConfig, p Parser, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{cfg: cfg.WithDefaults(), parser: p, engine: gin.New(), log: log.Named("http")}
	s.engine.Use(gin.Recovery(), s.accessLog())

	v1 := s.engine.Group("/v1")
	v1.POST("/parse", s.handleParse)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.Listen))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// parseRequest is the POST /v1/parse body. Query parameters mode, fields,
// format and no_cache override or extend it.
type parseRequest struct {
	Text          string     `json:"text"`
	ReferenceTime *time.Time `json:"reference_time"`
	Timezone      string     `json:"timezone"`
	Mode          string     `json:"mode"`
	Fields        []string   `json:"fields"`
}

type parseResponse struct {
	*types.NormalizedEvent
	Metadata types.Metadata `json:"metadata"`
}

type errorResponse struct {
	Error       string   `json:"error"`
	Expressions []string `json:"expressions,omitempty"`
}

func (s *Server) handleParse(c *gin.Context) {
	var body parseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	req := types.Request{
		Text:     body.Text,
		Timezone: body.Timezone,
		Mode:     types.Mode(body.Mode),
	}
	if body.ReferenceTime != nil {
		req.ReferenceTime = *body.ReferenceTime
	}
	if m, ok := c.GetQuery("mode"); ok {
		req.Mode = types.Mode(m)
	}
	fields := body.Fields
	if q := c.Query("fields"); q != "" {
		fields = append(fields, strings.Split(q, ",")...)
	}
	set, err := types.ParseFieldSet(strings.Join(fields, ","))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	req.Fields = set
	if v := c.Query("no_cache"); v != "" {
		req.NoCache, _ = strconv.ParseBool(v)
	}

	res, err := s.parser.Parse(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	switch c.Query("format") {
	case "", "json":
		c.JSON(http.StatusOK, parseResponse{NormalizedEvent: res.Event, Metadata: res.Metadata})
	case "ics":
		doc, err := export.ICS(res.Event, res.Metadata.RequestID, time.Now())
		if err != nil {
			c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(doc))
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown format " + strconv.Quote(c.Query("format"))})
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	var mce *types.MissingContextError
	switch {
	case errors.As(err, &mce):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Expressions: mce.Expressions})
	case pipeline.IsInvalidInput(err):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.log.Error("parse failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.HealthTimeout)
	defer cancel()
	c.JSON(http.StatusOK, s.parser.Health(ctx))
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
