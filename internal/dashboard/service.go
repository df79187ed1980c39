package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/mortality-etl/internal/adapter/csvout"
	"github.com/couchcryptid/mortality-etl/internal/domain"
)

// ErrNotLoaded is returned until the first successful Reload.
var ErrNotLoaded = errors.New("dashboard tables not loaded")

type tables map[domain.Dataset]*Table

// Service serves the two published tables. Reload swaps both tables at once
// so readers never mix tables from different runs.
type Service struct {
	paths      map[domain.Dataset]string
	growthRate float64
	logger     *slog.Logger
	current    atomic.Pointer[tables]
}

// NewService creates a Service reading the national and state output files.
func NewService(nationalPath, statePath string, growthRate float64, logger *slog.Logger) *Service {
	return &Service{
		paths: map[domain.Dataset]string{
			domain.DatasetNational: nationalPath,
			domain.DatasetState:    statePath,
		},
		growthRate: growthRate,
		logger:     logger,
	}
}

// Reload reads both output files and replaces the served tables. On error the
// previous tables stay in place.
func (s *Service) Reload() error {
	next := make(tables, len(s.paths))
	for _, dataset := range []domain.Dataset{domain.DatasetNational, domain.DatasetState} {
		records, err := csvout.ReadFile(s.paths[dataset])
		if err != nil {
			return fmt.Errorf("load %s table: %w", dataset, err)
		}
		next[dataset] = NewTable(dataset, records, s.growthRate)
		s.logger.Info("dashboard table loaded", "dataset", dataset, "records", len(records))
	}
	s.current.Store(&next)
	return nil
}

// Table returns the loaded table of dataset.
func (s *Service) Table(dataset domain.Dataset) (*Table, error) {
	loaded := s.current.Load()
	if loaded == nil {
		return nil, ErrNotLoaded
	}
	t, ok := (*loaded)[dataset]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDataset, dataset)
	}
	return t, nil
}

// Datasets describes the loaded tables, national first.
func (s *Service) Datasets() ([]DatasetInfo, error) {
	loaded := s.current.Load()
	if loaded == nil {
		return nil, ErrNotLoaded
	}
	return []DatasetInfo{
		(*loaded)[domain.DatasetNational].Info(),
		(*loaded)[domain.DatasetState].Info(),
	}, nil
}

// CheckReadiness reports whether tables have been loaded.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.current.Load() == nil {
		return ErrNotLoaded
	}
	return nil
}
