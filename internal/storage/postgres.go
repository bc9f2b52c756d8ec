package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/procurelens/marketintel/config"
	"github.com/procurelens/marketintel/internal/research"
)

// Store is the Postgres persistence layer for users, runs, watchlists and
// intelligence stores.
type Store struct {
	db *sql.DB
}

func New(cfg config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewWithDSN opens a store against an explicit connection string.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateUser inserts a user with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (gen_random_uuid(), $1, $2, NOW())`,
		email, passwordHash)
	return err
}

// GetUserByEmail returns the user id and password hash for an email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		return "", "", err
	}
	return id, hash, nil
}

// SaveRunStatus upserts the observable status of a run.
func (s *Store) SaveRunStatus(ctx context.Context, status research.RunStatus) error {
	var finished *time.Time
	if !status.FinishedAt.IsZero() {
		finished = &status.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO research_runs (
  id, workspace, state, queries_planned, searches_done, searches_failed,
  documents_fetched, fetches_failed, categories_done, error, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
ON CONFLICT (id) DO UPDATE SET
  state = EXCLUDED.state,
  queries_planned = EXCLUDED.queries_planned,
  searches_done = EXCLUDED.searches_done,
  searches_failed = EXCLUDED.searches_failed,
  documents_fetched = EXCLUDED.documents_fetched,
  fetches_failed = EXCLUDED.fetches_failed,
  categories_done = EXCLUDED.categories_done,
  error = EXCLUDED.error,
  finished_at = EXCLUDED.finished_at;
`,
		status.ID, status.Workspace, string(status.State), status.QueriesPlanned,
		status.SearchesDone, status.SearchesFailed, status.DocumentsFetched,
		status.FetchesFailed, status.CategoriesDone, status.Error, status.StartedAt, finished)
	return err
}

// GetRunStatus loads one run status by id.
func (s *Store) GetRunStatus(ctx context.Context, id string) (research.RunStatus, error) {
	var (
		st       research.RunStatus
		state    string
		errMsg   sql.NullString
		finished sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, workspace, state, queries_planned, searches_done, searches_failed,
       documents_fetched, fetches_failed, categories_done, error, started_at, finished_at
FROM research_runs WHERE id = $1`, id).Scan(
		&st.ID, &st.Workspace, &state, &st.QueriesPlanned, &st.SearchesDone,
		&st.SearchesFailed, &st.DocumentsFetched, &st.FetchesFailed,
		&st.CategoriesDone, &errMsg, &st.StartedAt, &finished)
	if err != nil {
		return research.RunStatus{}, err
	}
	st.State = research.RunState(state)
	if errMsg.Valid {
		st.Error = errMsg.String
	}
	if finished.Valid {
		st.FinishedAt = finished.Time
	}
	return st, nil
}

// ListRuns returns recent runs for a workspace, newest first.
func (s *Store) ListRuns(ctx context.Context, workspace string, limit int) ([]research.RunStatus, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, workspace, state, queries_planned, searches_done, searches_failed,
       documents_fetched, fetches_failed, categories_done, error, started_at, finished_at
FROM research_runs WHERE workspace = $1 ORDER BY started_at DESC LIMIT $2`, workspace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []research.RunStatus
	for rows.Next() {
		var (
			st       research.RunStatus
			state    string
			errMsg   sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(&st.ID, &st.Workspace, &state, &st.QueriesPlanned, &st.SearchesDone,
			&st.SearchesFailed, &st.DocumentsFetched, &st.FetchesFailed,
			&st.CategoriesDone, &errMsg, &st.StartedAt, &finished); err != nil {
			return nil, err
		}
		st.State = research.RunState(state)
		if errMsg.Valid {
			st.Error = errMsg.String
		}
		if finished.Valid {
			st.FinishedAt = finished.Time
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveIntelligenceStore replaces the workspace's store wholesale.
func (s *Store) SaveIntelligenceStore(ctx context.Context, store research.IntelligenceStore) error {
	payload, err := json.Marshal(store)
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO intelligence_stores (workspace, run_id, market, payload, generated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (workspace) DO UPDATE SET
  run_id = EXCLUDED.run_id,
  market = EXCLUDED.market,
  payload = EXCLUDED.payload,
  generated_at = EXCLUDED.generated_at;
`, store.Workspace, store.RunID, store.Market, payload, store.GeneratedAt)
	return err
}

// GetIntelligenceStore loads the latest store for a workspace.
func (s *Store) GetIntelligenceStore(ctx context.Context, workspace string) (research.IntelligenceStore, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM intelligence_stores WHERE workspace = $1`, workspace).Scan(&payload)
	if err != nil {
		return research.IntelligenceStore{}, err
	}
	var store research.IntelligenceStore
	if err := json.Unmarshal(payload, &store); err != nil {
		return research.IntelligenceStore{}, fmt.Errorf("unmarshal store: %w", err)
	}
	return store, nil
}

// Watchlist is a recurring research request bound to a cron schedule.
type Watchlist struct {
	ID         string
	Workspace  string
	Market     string
	Categories []string
	Depth      string
	TimeWindow string
	CronSpec   string
	CreatedAt  time.Time
	LastRunAt  *time.Time
}

// CreateWatchlist registers a recurring run.
func (s *Store) CreateWatchlist(ctx context.Context, w Watchlist) (string, error) {
	cats, err := json.Marshal(w.Categories)
	if err != nil {
		return "", err
	}
	var id string
	err = s.db.QueryRowContext(ctx, `
INSERT INTO watchlists (id, workspace, market, categories, depth, time_window, cron_spec, created_at)
VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, NOW())
RETURNING id`, w.Workspace, w.Market, cats, w.Depth, w.TimeWindow, w.CronSpec).Scan(&id)
	return id, err
}

// ListWatchlists returns every registered watchlist.
func (s *Store) ListWatchlists(ctx context.Context) ([]Watchlist, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, workspace, market, categories, depth, time_window, cron_spec, created_at, last_run_at
FROM watchlists ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Watchlist
	for rows.Next() {
		var (
			w       Watchlist
			cats    []byte
			lastRun sql.NullTime
		)
		if err := rows.Scan(&w.ID, &w.Workspace, &w.Market, &cats, &w.Depth, &w.TimeWindow, &w.CronSpec, &w.CreatedAt, &lastRun); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(cats, &w.Categories)
		if lastRun.Valid {
			t := lastRun.Time
			w.LastRunAt = &t
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// TouchWatchlist records that a watchlist just ran.
func (s *Store) TouchWatchlist(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE watchlists SET last_run_at = NOW() WHERE id = $1`, id)
	return err
}
