package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/ytsub-pipeline/internal/jobs"
	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps usage totals, job records and watch state.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths are always slash separated
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// Read returns the running usage totals.
func (s *SQLiteStore) Read(ctx context.Context) (processor.UsageStats, error) {
	stats := processor.UsageStats{ProviderStats: map[string]processor.ProviderUsage{}}
	rows, err := s.db.QueryContext(ctx, `SELECT provider, requests, tokens FROM usage_stats ORDER BY provider`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var provider string
		var pu processor.ProviderUsage
		if err := rows.Scan(&provider, &pu.Requests, &pu.Tokens); err != nil {
			return stats, err
		}
		stats.ProviderStats[provider] = pu
		stats.TotalRequests += pu.Requests
		stats.TotalTokens += pu.Tokens
	}
	return stats, rows.Err()
}

// Update adds delta in a single statement, so concurrent callers never lose
// increments.
func (s *SQLiteStore) Update(ctx context.Context, delta processor.UsageDelta) error {
	if strings.TrimSpace(delta.Provider) == "" {
		return fmt.Errorf("usage delta has no provider")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_stats (provider, requests, tokens, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET
			requests=usage_stats.requests + excluded.requests,
			tokens=usage_stats.tokens + excluded.tokens,
			updated_at=excluded.updated_at`,
		delta.Provider,
		delta.Requests,
		delta.Tokens,
		s.now().UTC(),
	)
	return err
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.ProcessingJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, status, error, payload_json, result_json, failed, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.ProcessingJob, 0)
	for rows.Next() {
		var item jobs.ProcessingJob
		var status, payloadJSON, resultJSON string
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&status,
			&item.Error,
			&payloadJSON,
			&resultJSON,
			&item.Failed,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		if err := json.Unmarshal([]byte(payloadJSON), &item.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of job %s: %w", item.ID, err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &item.Result); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", item.ID, err)
		}
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.ProcessingJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}
	resultJSON := []byte("[]")
	if len(job.Result) > 0 {
		if resultJSON, err = json.Marshal(job.Result); err != nil {
			return err
		}
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, status, error, payload_json, result_json, failed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			status=excluded.status,
			error=excluded.error,
			payload_json=excluded.payload_json,
			result_json=excluded.result_json,
			failed=excluded.failed,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		string(job.Status),
		job.Error,
		string(payload),
		string(resultJSON),
		job.Failed,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	return err
}

// GetWatchState returns the stored state for pageURL, if any.
func (s *SQLiteStore) GetWatchState(ctx context.Context, pageURL string) (WatchState, bool, error) {
	var ret WatchState
	err := s.db.QueryRowContext(
		ctx,
		`SELECT page_url, video_id, signature, output_path, updated_at
		 FROM watch_state
		 WHERE page_url = ?`,
		pageURL,
	).Scan(&ret.PageURL, &ret.VideoID, &ret.Signature, &ret.OutputPath, &ret.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return WatchState{}, false, nil
	}
	if err != nil {
		return WatchState{}, false, err
	}
	return ret, true, nil
}

func (s *SQLiteStore) PutWatchState(ctx context.Context, state WatchState) error {
	updatedAt := state.UpdatedAt.UTC()
	if state.UpdatedAt.IsZero() {
		updatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO watch_state (page_url, video_id, signature, output_path, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(page_url) DO UPDATE SET
			video_id=excluded.video_id,
			signature=excluded.signature,
			output_path=excluded.output_path,
			updated_at=excluded.updated_at`,
		state.PageURL,
		state.VideoID,
		state.Signature,
		state.OutputPath,
		updatedAt,
	)
	return err
}
