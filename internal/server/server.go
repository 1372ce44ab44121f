// Package server exposes the corpus over a read-only JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sandwich/internal/domain"
	"sandwich/internal/events"
	"sandwich/internal/metrics"
)

type Config struct {
	Addr      string
	DebugMode bool
}

// EventHistory is the recent event feed served under /api/events.
type EventHistory interface {
	Recent(n int) []events.Event
}

type Server struct {
	engine *gin.Engine
	config Config
	corpus domain.CorpusReader
	events EventHistory
	log    *logrus.Logger
}

// New builds the router. history and m may be nil.
func New(config Config, corpus domain.CorpusReader, history EventHistory, m *metrics.Metrics, log *logrus.Logger) *Server {
	if !config.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	eng := gin.New()
	eng.Use(gin.Recovery())
	eng.Use(logRequest(log))
	eng.Use(cors.Default())

	s := &Server{engine: eng, config: config, corpus: corpus, events: history, log: log}

	eng.GET("/healthz", s.health)
	eng.GET("/metrics", gin.WrapH(m.Handler()))

	api := eng.Group("/api")
	{
		api.GET("/artifacts", s.listArtifacts)
		api.GET("/artifacts/:id", s.getArtifact)
		api.GET("/artifacts/:id/relations", s.listRelations)
		api.GET("/ingredients", s.listIngredients)
		api.GET("/ingredients/artifacts", s.findByIngredient)
		api.GET("/attempts", s.listAttempts)
		api.GET("/stats", s.stats)
		api.GET("/types", s.listTypes)
		api.GET("/events", s.recentEvents)
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.config.Addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(ctx *gin.Context) {
	n, err := s.corpus.CountArtifacts(ctx.Request.Context())
	if err != nil {
		s.internalError(ctx, "health", err)
		return
	}
	ctx.JSON(http.StatusOK, makeSuccessResp(gin.H{"status": "ok", "artifacts": n}))
}

func (s *Server) internalError(ctx *gin.Context, op string, err error) {
	s.log.WithError(err).Errorf("%s produce error", op)
	_ = ctx.Error(err)
	ctx.JSON(http.StatusInternalServerError, makeErrorResp(codeInternal, "internal error"))
}

func badRequest(ctx *gin.Context, msg string) {
	ctx.JSON(http.StatusBadRequest, makeErrorResp(codeBadRequest, msg))
}
