package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/dashboard"
	"github.com/couchcryptid/mortality-etl/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dashboard serves the loaded mortality tables.
type Dashboard interface {
	Datasets() ([]dashboard.DatasetInfo, error)
	Table(dataset domain.Dataset) (*dashboard.Table, error)
}

// Server exposes health, readiness, metrics and dashboard HTTP endpoints.
type Server struct {
	httpServer *http.Server
	dashboard  Dashboard
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics routes.
// When dash is non-nil the /api routes are registered as well.
func NewServer(addr string, ready sharedobs.ReadinessChecker, dash Dashboard, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		dashboard: dash,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	if dash != nil {
		mux.HandleFunc("GET /api/datasets", s.handleDatasets)
		mux.HandleFunc("GET /api/series", s.handleSeries)
		mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	infos, err := s.dashboard.Datasets()
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, infos)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	table, err := s.dashboard.Table(q.dataset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	chart, err := table.Chart(q.view, q.jurisdictions, q.years)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, chart)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	table, err := s.dashboard.Table(q.dataset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	m, err := table.Metrics(q.jurisdictions)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, m)
}

var errBadQuery = errors.New("bad query")

type query struct {
	dataset       domain.Dataset
	view          dashboard.View
	jurisdictions []string
	years         []int
}

// parseQuery reads dataset, view, jurisdiction and year. List parameters
// may be repeated or comma separated.
func parseQuery(r *http.Request) (query, error) {
	values := r.URL.Query()
	q := query{dataset: domain.DatasetState}
	if d := values.Get("dataset"); d != "" {
		q.dataset = domain.Dataset(strings.ToLower(d))
	}

	view, err := dashboard.ParseView(values.Get("view"))
	if err != nil {
		return query{}, err
	}
	q.view = view

	q.jurisdictions = splitList(values["jurisdiction"], values["jurisdictions"])
	for _, y := range splitList(values["year"], values["years"]) {
		year, err := strconv.Atoi(y)
		if err != nil {
			return query{}, fmt.Errorf("%w: year: %q is not a year", errBadQuery, y)
		}
		q.years = append(q.years, year)
	}
	return q, nil
}

// splitList flattens repeated and comma separated parameter values.
func splitList(params ...[]string) []string {
	var out []string
	for _, values := range params {
		for _, p := range values {
			for _, v := range strings.Split(p, ",") {
				if v = strings.TrimSpace(v); v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadQuery),
		errors.Is(err, dashboard.ErrUnknownView),
		errors.Is(err, dashboard.ErrUnknownDataset),
		errors.Is(err, dashboard.ErrUnknownJurisdiction):
		status = http.StatusBadRequest
	case errors.Is(err, dashboard.ErrPopulationUnavailable):
		status = http.StatusConflict
	case errors.Is(err, dashboard.ErrNotLoaded):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("dashboard request failed", "error", err)
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
