//go:build smoke

package fetch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/config"
	"github.com/couchcryptid/mortality-etl/internal/observability"
	"github.com/couchcryptid/mortality-etl/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests download the real public datasets.
// Run with: go test -tags=smoke ./internal/adapter/fetch/ -v -count=1

func smokeClient() *Client {
	return NewClient(Options{MaxAttempts: 2, Backoff: 2 * time.Second, Timeout: 120 * time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestSmoke_Historical(t *testing.T) {
	table, err := smokeClient().Fetch(context.Background(), "historical", config.DefaultHistoricalURL)
	require.NoError(t, err)

	res, err := source.Historical{Window: source.DefaultHistoricalWindow}.Normalize(table)
	require.NoError(t, err)
	assert.Greater(t, res.Kept(), 300, "six years of weekly national rows")
}

func TestSmoke_Provisional(t *testing.T) {
	table, err := smokeClient().Fetch(context.Background(), "provisional", config.DefaultProvisionalURL)
	require.NoError(t, err)

	res, err := source.Provisional{Window: source.DefaultProvisionalWindow}.Normalize(table)
	require.NoError(t, err)
	assert.Greater(t, res.Kept(), 52*50)
}

func TestSmoke_Archived(t *testing.T) {
	table, err := smokeClient().Fetch(context.Background(), "archived", config.DefaultArchivedURL)
	require.NoError(t, err)

	res, err := source.Archived{Window: source.DefaultArchivedWindow}.Normalize(table)
	require.NoError(t, err)
	assert.Greater(t, res.Kept(), 52*4*50)
}
