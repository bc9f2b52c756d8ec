package storage_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/procurelens/marketintel/internal/research"
	"github.com/procurelens/marketintel/internal/storage"
)

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "marketintel",
			"POSTGRES_PASSWORD": "marketintel",
			"POSTGRES_DB":       "marketintel",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	return fmt.Sprintf("postgres://marketintel:marketintel@%s:%s/marketintel?sslmode=disable", host, port.Port())
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	schemaSQL, err := os.ReadFile("../../migrations/0001_init.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.ExecContext(ctx, string(schemaSQL)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
}

func TestStoreRoundTrips(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dsn := startPostgres(t, ctx)
	applyMigrations(t, ctx, dsn)

	st, err := storage.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.Close()

	// users
	if err := st.CreateUser(ctx, "buyer@acme.example", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	id, hash, err := st.GetUserByEmail(ctx, "buyer@acme.example")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if id == "" || hash != "hash" {
		t.Fatalf("unexpected user row: id=%q hash=%q", id, hash)
	}
	if err := st.CreateUser(ctx, "buyer@acme.example", "other"); err == nil {
		t.Fatalf("expected unique violation on duplicate email")
	}

	// run statuses upsert in place
	runID := uuid.NewString()
	status := research.RunStatus{
		ID:        runID,
		Workspace: "acme",
		State:     research.StatePlanning,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := st.SaveRunStatus(ctx, status); err != nil {
		t.Fatalf("save status: %v", err)
	}
	status.State = research.StateComplete
	status.QueriesPlanned = 5
	status.DocumentsFetched = 7
	status.FinishedAt = time.Now().UTC().Truncate(time.Second)
	if err := st.SaveRunStatus(ctx, status); err != nil {
		t.Fatalf("upsert status: %v", err)
	}
	got, err := st.GetRunStatus(ctx, runID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if got.State != research.StateComplete || got.QueriesPlanned != 5 || got.DocumentsFetched != 7 {
		t.Fatalf("status round trip: %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Fatalf("finished_at lost")
	}

	runs, err := st.ListRuns(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Fatalf("list runs: %+v", runs)
	}

	// intelligence stores replace wholesale per workspace
	first := research.IntelligenceStore{
		Workspace:   "acme",
		Market:      "steel drums",
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Analyses: map[string]research.CategoryAnalysis{
			"pricing": {Category: "pricing"},
		},
	}
	if err := st.SaveIntelligenceStore(ctx, first); err != nil {
		t.Fatalf("save store: %v", err)
	}
	second := first
	second.RunID = uuid.NewString()
	second.Analyses = map[string]research.CategoryAnalysis{
		"supply": {Category: "supply"},
	}
	if err := st.SaveIntelligenceStore(ctx, second); err != nil {
		t.Fatalf("replace store: %v", err)
	}
	loaded, err := st.GetIntelligenceStore(ctx, "acme")
	if err != nil {
		t.Fatalf("get store: %v", err)
	}
	if loaded.RunID != second.RunID {
		t.Fatalf("store not replaced: %q", loaded.RunID)
	}
	if _, ok := loaded.Analyses["pricing"]; ok {
		t.Fatalf("previous run's analysis survived replacement")
	}
	if _, ok := loaded.Analyses["supply"]; !ok {
		t.Fatalf("new analysis missing")
	}

	// watchlists
	wID, err := st.CreateWatchlist(ctx, storage.Watchlist{
		Workspace:  "acme",
		Market:     "steel drums",
		Categories: []string{"pricing", "supply"},
		Depth:      "medium",
		CronSpec:   "@daily",
	})
	if err != nil {
		t.Fatalf("create watchlist: %v", err)
	}
	lists, err := st.ListWatchlists(ctx)
	if err != nil {
		t.Fatalf("list watchlists: %v", err)
	}
	if len(lists) != 1 || lists[0].ID != wID || len(lists[0].Categories) != 2 {
		t.Fatalf("watchlists: %+v", lists)
	}
	if lists[0].LastRunAt != nil {
		t.Fatalf("fresh watchlist has last_run_at")
	}
	if err := st.TouchWatchlist(ctx, wID); err != nil {
		t.Fatalf("touch watchlist: %v", err)
	}
	lists, err = st.ListWatchlists(ctx)
	if err != nil {
		t.Fatalf("list watchlists: %v", err)
	}
	if lists[0].LastRunAt == nil {
		t.Fatalf("touch did not record last_run_at")
	}
}
