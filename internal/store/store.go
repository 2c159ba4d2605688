// Package store archives imported runs and their headline numbers in a
// SQLite database so the server and CLI can list and reload them.
package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/loadview/loadview/internal/result"
	"github.com/loadview/loadview/internal/summary"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	imported_at   INTEGER NOT NULL,
	generated_by  TEXT NOT NULL,
	duration_us   INTEGER NOT NULL,
	streams       INTEGER NOT NULL,
	download_mbps REAL,
	upload_mbps   REAL,
	latency_ms    REAL,
	loss_count    INTEGER NOT NULL,
	raw           BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_imported_at ON runs (imported_at DESC);
`

// ErrNotFound is returned when a run id is not in the store.
var ErrNotFound = errors.New("store: run not found")

// RunInfo is one row of the run listing.
type RunInfo struct {
	ID           string
	ImportedAt   time.Time
	GeneratedBy  string
	Duration     time.Duration
	Streams      int
	DownloadMbps *float64
	UploadMbps   *float64
	LatencyMs    *float64
	LossCount    int
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put archives a run together with its summary and returns the new run id.
func (s *Store) Put(run *result.RawRun, sum summary.Summary) (string, error) {
	var raw bytes.Buffer
	if err := result.EncodeRun(&raw, run); err != nil {
		return "", err
	}

	var downloadMbps, uploadMbps, latencyMs any
	if sum.Download != nil {
		downloadMbps = sum.Download.AvgMbps
	}
	if sum.Upload != nil {
		uploadMbps = sum.Upload.AvgMbps
	}
	if sum.Latency.Samples > 0 {
		latencyMs = float64(sum.Latency.Mean) / float64(time.Millisecond)
	}

	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, imported_at, generated_by, duration_us, streams,
			download_mbps, upload_mbps, latency_ms, loss_count, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		time.Now().Unix(),
		run.GeneratedBy,
		run.Duration.Microseconds(),
		run.Streams(),
		downloadMbps,
		uploadMbps,
		latencyMs,
		sum.Latency.Lost,
		raw.Bytes(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Get loads the raw run stored under id.
func (s *Store) Get(id string) (*result.RawRun, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT raw FROM runs WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return result.DecodeRun(bytes.NewReader(raw))
}

// List returns all archived runs, newest first.
func (s *Store) List() ([]RunInfo, error) {
	rows, err := s.db.Query(
		`SELECT id, imported_at, generated_by, duration_us, streams,
			download_mbps, upload_mbps, latency_ms, loss_count
		FROM runs ORDER BY imported_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var infos []RunInfo
	for rows.Next() {
		var info RunInfo
		var importedAt, durationUs int64
		var download, upload, latency sql.NullFloat64
		if err := rows.Scan(&info.ID, &importedAt, &info.GeneratedBy, &durationUs,
			&info.Streams, &download, &upload, &latency, &info.LossCount); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		info.ImportedAt = time.Unix(importedAt, 0)
		info.Duration = time.Duration(durationUs) * time.Microsecond
		if download.Valid {
			info.DownloadMbps = &download.Float64
		}
		if upload.Valid {
			info.UploadMbps = &upload.Float64
		}
		if latency.Valid {
			info.LatencyMs = &latency.Float64
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Delete removes the run stored under id.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
