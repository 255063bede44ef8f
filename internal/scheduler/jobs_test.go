package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/vigil/internal/agents/advisory"
	"github.com/aristath/vigil/internal/clientdata"
	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/engine"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/history"
	"github.com/aristath/vigil/internal/reliability"
)

const historySchema = `
CREATE TABLE analysis_runs (
    run_id              TEXT PRIMARY KEY,
    generated_at        TEXT NOT NULL,
    symbols             TEXT NOT NULL,
    period              TEXT NOT NULL,
    unified_score       REAL NOT NULL,
    unified_level       TEXT NOT NULL,
    advisory_action     TEXT NOT NULL,
    advisory_confidence REAL NOT NULL,
    duration_ms         INTEGER NOT NULL,
    summary_json        TEXT NOT NULL
);
CREATE TABLE analysis_alerts (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id   TEXT NOT NULL REFERENCES analysis_runs (run_id) ON DELETE CASCADE,
    type     TEXT NOT NULL,
    severity TEXT NOT NULL,
    message  TEXT NOT NULL,
    value    REAL NOT NULL DEFAULT 0,
    symbol   TEXT,
    source   TEXT
);
`

const cacheSchema = `
CREATE TABLE client_cache (
    cache_key  TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,
    created_at TEXT NOT NULL,
    expires_at TEXT NOT NULL
);
`

func openMemoryDB(t *testing.T, schema string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// stubAgent returns a fixed medium signal for any input.
type stubAgent struct {
	name string
}

func (a *stubAgent) Name() string { return a.name }

func (a *stubAgent) Analyze(_ context.Context, _ *domain.AnalysisInput) domain.SignalResult {
	return domain.SignalResult{
		Agent:       a.name,
		Score:       40,
		Level:       domain.RiskMedium,
		Signal:      "STABLE",
		Confidence:  0.8,
		GeneratedAt: time.Now().UTC(),
	}
}

// blockingSupplier counts history fetches and can hold them open until
// released or the context expires.
type blockingSupplier struct {
	market  *domain.MarketData
	fetches atomic.Int64
	release chan struct{} // nil means return immediately
}

func (s *blockingSupplier) FetchHistory(ctx context.Context, _ []string, _ string) (*domain.MarketData, error) {
	s.fetches.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.market, nil
}

func (s *blockingSupplier) FetchNews(_ context.Context, _ []string, _ int) (map[string][]domain.NewsItem, error) {
	return nil, nil
}

func (s *blockingSupplier) FetchQuotes(_ context.Context, _ []string) ([]domain.Quote, error) {
	return nil, nil
}

func jobMarket() *domain.MarketData {
	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make(domain.PriceHistory, 30)
	price := 100.0
	for i := range bars {
		price *= 1.001
		bars[i] = domain.PricePoint{Date: date, Open: price, High: price, Low: price, Close: price, Volume: 1e6}
		date = date.AddDate(0, 0, 1)
	}
	return &domain.MarketData{
		Symbols:   []string{"AAPL"},
		Period:    "1y",
		History:   map[string]domain.PriceHistory{"AAPL": bars},
		FetchedAt: time.Now().UTC(),
	}
}

func newJobEngine(supplier domain.DataSupplier) *engine.Engine {
	log := zerolog.Nop()
	return engine.New(engine.Config{
		Supplier:    supplier,
		Risk:        &stubAgent{name: domain.AgentRisk},
		Forecast:    &stubAgent{name: domain.AgentForecast},
		Sentiment:   &stubAgent{name: domain.AgentSentiment},
		Correlation: &stubAgent{name: domain.AgentCorrelation},
		Advisory:    advisory.New(log),
		Log:         log,
	})
}

func TestAnalysisJobRunsEngine(t *testing.T) {
	supplier := &blockingSupplier{market: jobMarket()}
	eng := newJobEngine(supplier)

	job := NewAnalysisJob(eng, []string{"AAPL"}, "1y", zerolog.Nop())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, int64(1), supplier.fetches.Load())
	require.NotNil(t, eng.Last(), "a completed run is cached on the engine")
}

func TestAnalysisJobSkipsOverlappingRun(t *testing.T) {
	supplier := &blockingSupplier{market: jobMarket(), release: make(chan struct{})}
	job := NewAnalysisJob(newJobEngine(supplier), []string{"AAPL"}, "1y", zerolog.Nop())

	firstDone := make(chan error, 1)
	go func() { firstDone <- job.Run(context.Background()) }()

	// Wait for the first run to reach the supplier and hold there
	deadline := time.After(2 * time.Second)
	for supplier.fetches.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first run never started fetching")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A tick that fires while the first run is in flight is dropped, not queued
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(1), supplier.fetches.Load(), "overlapping run must not invoke the engine")

	close(supplier.release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, int64(1), supplier.fetches.Load())
}

func TestAnalysisJobTimesOut(t *testing.T) {
	supplier := &blockingSupplier{market: jobMarket(), release: make(chan struct{})}
	job := NewAnalysisJob(newJobEngine(supplier), []string{"AAPL"}, "1y", zerolog.Nop())
	job.timeout = 50 * time.Millisecond

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "a stalled fetch must hit the job deadline")
}

// fakeSnapshotter and fakeCheckpointer record the order of backup operations.
type fakeSnapshotter struct {
	ops *[]string
	err error
}

func (s *fakeSnapshotter) CreateBackup(_ context.Context) (*reliability.BackupInfo, error) {
	*s.ops = append(*s.ops, "upload")
	if s.err != nil {
		return nil, s.err
	}
	return &reliability.BackupInfo{Key: "vigil-backups/test.tar.gz", SizeBytes: 128}, nil
}

type fakeCheckpointer struct {
	name string
	ops  *[]string
	err  error
}

func (c *fakeCheckpointer) Name() string { return c.name }

func (c *fakeCheckpointer) WALCheckpoint(_ string) error {
	*c.ops = append(*c.ops, "checkpoint:"+c.name)
	return c.err
}

func TestBackupJobCheckpointsBeforeUpload(t *testing.T) {
	var ops []string
	job := NewBackupJob(
		&fakeSnapshotter{ops: &ops},
		[]Checkpointer{
			&fakeCheckpointer{name: "history", ops: &ops},
			&fakeCheckpointer{name: "cache", ops: &ops},
		},
		zerolog.Nop(),
	)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"checkpoint:history", "checkpoint:cache", "upload"}, ops)
}

func TestBackupJobCheckpointFailureDoesNotAbort(t *testing.T) {
	var ops []string
	job := NewBackupJob(
		&fakeSnapshotter{ops: &ops},
		[]Checkpointer{&fakeCheckpointer{name: "history", ops: &ops, err: errors.New("database is locked")}},
		zerolog.Nop(),
	)

	require.NoError(t, job.Run(context.Background()))
	assert.Contains(t, ops, "upload", "backup proceeds past a failed checkpoint")
}

func TestBackupJobReportsUploadFailure(t *testing.T) {
	var ops []string
	job := NewBackupJob(&fakeSnapshotter{ops: &ops, err: errors.New("bucket unreachable")}, nil, zerolog.Nop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestCleanupJobPrunesRunsAndCache(t *testing.T) {
	historyDB := openMemoryDB(t, historySchema)
	cacheDB := openMemoryDB(t, cacheSchema)

	historyRepo := history.NewRepository(historyDB, zerolog.Nop())
	cacheRepo := clientdata.NewRepository(cacheDB)

	// One stale run, one fresh run
	stale := &domain.UnifiedSummary{
		RunID:        "stale-run",
		GeneratedAt:  time.Now().AddDate(0, 0, -120).UTC(),
		Symbols:      []string{"AAPL"},
		Period:       "1y",
		UnifiedScore: 42,
		UnifiedLevel: domain.RiskMedium,
	}
	fresh := &domain.UnifiedSummary{
		RunID:        "fresh-run",
		GeneratedAt:  time.Now().UTC(),
		Symbols:      []string{"AAPL"},
		Period:       "1y",
		UnifiedScore: 42,
		UnifiedLevel: domain.RiskMedium,
	}
	require.NoError(t, historyRepo.SaveRun(stale))
	require.NoError(t, historyRepo.SaveRun(fresh))

	// One expired cache row, one fresh
	require.NoError(t, cacheRepo.Store("expired", "old", -time.Minute))
	require.NoError(t, cacheRepo.Store("fresh", "new", time.Hour))

	bus := events.NewBus(zerolog.Nop())
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	job := NewCleanupJob(historyRepo, cacheRepo, 90, bus, zerolog.Nop())
	require.NoError(t, job.Run(context.Background()))

	count, err := historyRepo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "only the fresh run survives")

	var fetched string
	found, err := cacheRepo.Get("fresh", &fetched)
	require.NoError(t, err)
	assert.True(t, found)

	select {
	case ev := <-ch:
		assert.Equal(t, events.CacheCleaned, ev.Type)
		data, ok := ev.Data.(*events.CacheCleanedData)
		require.True(t, ok)
		assert.Equal(t, int64(1), data.RunsRemoved)
		assert.Equal(t, int64(1), data.CacheRemoved)
	case <-time.After(time.Second):
		t.Fatal("expected a cache.cleaned event")
	}
}

func TestCleanupJobNoEventWhenNothingRemoved(t *testing.T) {
	historyRepo := history.NewRepository(openMemoryDB(t, historySchema), zerolog.Nop())
	cacheRepo := clientdata.NewRepository(openMemoryDB(t, cacheSchema))

	bus := events.NewBus(zerolog.Nop())
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	job := NewCleanupJob(historyRepo, cacheRepo, 90, bus, zerolog.Nop())
	require.NoError(t, job.Run(context.Background()))

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
