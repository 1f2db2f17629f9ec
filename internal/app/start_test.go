package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/config"
	"github.com/mynameiseileen/nestle-chatbot/internal/content"
	"github.com/mynameiseileen/nestle-chatbot/internal/crawler"
	graphmemory "github.com/mynameiseileen/nestle-chatbot/internal/graph/memory"
	"github.com/mynameiseileen/nestle-chatbot/internal/index"
)

func startConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Graph.Driver = "neo4j"
	cfg.Index.Driver = "sqlite"
	cfg.Index.DSN = ":memory:"
	cfg.Pipeline.InitAttempts = 3
	cfg.Pipeline.InitBackoff = 2 * time.Second
	return cfg
}

func startOptions(waits *[]time.Duration, graphOpen func(context.Context, config.GraphConfig, *zap.Logger) (graphBackend, error)) []Option {
	return []Option{
		WithRenderers(func(context.Context) (crawler.Renderer, error) { return nil, errors.New("unused") }),
		func(o *options) {
			o.openGraph = graphOpen
			o.sleep = func(_ context.Context, d time.Duration) error {
				*waits = append(*waits, d)
				return nil
			}
		},
	}
}

func TestNewRetriesUnreachableGraphStore(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	attempts := 0
	a, err := New(context.Background(), startConfig(t), zap.NewNop(), startOptions(&waits,
		func(context.Context, config.GraphConfig, *zap.Logger) (graphBackend, error) {
			attempts++
			if attempts == 1 {
				return nil, &content.FatalInitError{Component: "neo4j", Cause: errors.New("connection refused")}
			}
			return graphmemory.New(), nil
		})...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second}, waits)
	assert.NotNil(t, a.Pipeline)
}

func TestNewGivesUpOnGraphStoreAfterAttempts(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	attempts := 0
	_, err := New(context.Background(), startConfig(t), zap.NewNop(), startOptions(&waits,
		func(context.Context, config.GraphConfig, *zap.Logger) (graphBackend, error) {
			attempts++
			return nil, &content.FatalInitError{Component: "neo4j", Cause: errors.New("connection refused")}
		})...)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, waits, 2)
	var fatal *content.FatalInitError
	assert.ErrorAs(t, err, &fatal)
}

func TestNewRetriesUnreachableIndex(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	cfg := startConfig(t)
	cfg.Graph.Driver = "memory"
	attempts := 0
	opts := append(startOptions(&waits, openGraph), func(o *options) {
		o.openIndex = func(ctx context.Context, ic config.IndexConfig) (index.Index, error) {
			attempts++
			if attempts < 3 {
				return nil, &content.FatalInitError{Component: "postgres", Cause: errors.New("dial tcp: connection refused")}
			}
			return openIndex(ctx, ic)
		}
	})
	a, err := New(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	assert.Equal(t, 3, attempts)
	assert.Len(t, waits, 2)
}

func TestNewDoesNotRetryConfigErrors(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	cfg := startConfig(t)
	cfg.Graph.Driver = "memory"
	cfg.Index.Driver = "elastic"
	_, err := New(context.Background(), cfg, zap.NewNop(), startOptions(&waits, openGraph)...)
	require.ErrorContains(t, err, "unknown index driver")
	assert.Empty(t, waits)
}
