// Package dashboard serves report results as a small HTML dashboard.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/shopflow/internal/engine"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// ReportRunner lists and executes reports.
type ReportRunner interface {
	ListReports() ([]*core.Report, error)
	Reports(ctx context.Context, names []string) ([]*engine.ReportResult, error)
}

// RunLister reads run history.
type RunLister interface {
	ListRuns(limit int) ([]*core.Run, error)
}

// Config holds dashboard settings.
type Config struct {
	Host string
	Port int
	// Refresh adds a meta refresh to report pages when positive.
	Refresh time.Duration
	// Runs enables the /runs page when set.
	Runs   RunLister
	Logger *slog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	reports ReportRunner
	runs    RunLister
	addr    string
	refresh time.Duration
	logger  *slog.Logger
	pages   *pages
}

// New creates a dashboard server.
func New(reports ReportRunner, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		reports: reports,
		runs:    cfg.Runs,
		addr:    net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		refresh: cfg.Refresh,
		logger:  logger,
		pages:   mustParsePages(),
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: slogPrinter{s.logger}, NoColor: true}),
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Get("/reports/{name}", s.handleReport)
	r.Get("/api/reports", s.handleAPIReports)
	r.Get("/api/reports/{name}", s.handleAPIReport)
	if s.runs != nil {
		r.Get("/runs", s.handleRuns)
	}
	return r
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("dashboard listening", "url", "http://"+ln.Addr().String())

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down dashboard")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// slogPrinter adapts a slog.Logger to chi's request logger.
type slogPrinter struct {
	logger *slog.Logger
}

func (p slogPrinter) Print(v ...any) {
	p.logger.Debug(fmt.Sprint(v...))
}
