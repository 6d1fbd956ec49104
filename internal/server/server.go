// Package server exposes sync control, progress and backend reads to a
// local UI over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jakopako/leadsync/internal/api"
	"github.com/jakopako/leadsync/internal/campaign"
	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/types"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Addr string `yaml:"addr" env:"LEADSYNC_ADDR" env-default:"127.0.0.1:8765"`
}

// Syncer controls sync runs. It is implemented by syncer.Orchestrator.
type Syncer interface {
	Start(ctx context.Context, campaignID int64) (string, error)
	Cancel()
	Progress() types.SyncProgress
	Subscribe() (<-chan types.SyncProgress, func())
}

// Backend is implemented by api.Client.
type Backend interface {
	GetCampaigns(ctx context.Context, forceRefresh bool) ([]types.Campaign, error)
	GetStats(ctx context.Context, page, perPage int, useCache bool) (*api.Stats, error)
	GetLeads(ctx context.Context, q api.LeadsQuery, useCache bool) (*api.LeadsPage, error)
	SubmitLead(ctx context.Context, campaignID int64, lead types.CandidateLead) (api.LeadID, error)
}

// Capturer extracts the lead shown on a single page. It is implemented by
// fetch.Provider.
type Capturer interface {
	ExtractCurrentPageData(ctx context.Context, pageURL string) (*types.CandidateLead, types.PageClassification, error)
}

// SessionStore holds the user's campaign selection.
type SessionStore interface {
	Session(ctx context.Context) (campaign.Session, error)
}

type Server struct {
	syncer   Syncer
	backend  Backend
	capturer Capturer
	sessions SessionStore
}

func New(s Syncer, b Backend, c Capturer, sessions SessionStore) *Server {
	return &Server{syncer: s, backend: b, capturer: c, sessions: sessions}
}

// Router returns the handler serving all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/sync", func(r chi.Router) {
		r.Get("/progress", s.progress)
		r.Post("/start", s.start)
		r.Post("/cancel", s.cancel)
		r.Get("/events", s.events)
	})
	r.Get("/campaigns", s.campaigns)
	r.Get("/stats", s.stats)
	r.Get("/leads", s.leads)
	r.Post("/capture", s.capture)
	return r
}

// Run serves on addr until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	logger := log.LoggerFromContext(ctx).With(slog.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return log.ContextWithLogger(ctx, logger)
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		logger := log.LoggerFromContext(r.Context()).With(slog.String("request", middleware.GetReqID(r.Context())))
		next.ServeHTTP(ww, r.WithContext(log.ContextWithLogger(r.Context(), logger)))
		logger.Debug("handled request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
		)
	})
}
