package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const tsLayout = "2006-01-02 15:04:05.000"

// Store is a write-mostly sqlite journal of scan sessions and their surfaced
// detections. Sessions never read it back.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Best-effort; older builds may not support it.
	_, _ = db.Exec(`PRAGMA foreign_keys = ON;`)
	// SQLite is single-writer; one connection avoids SQLITE_BUSY between the
	// session goroutine and the status ticker.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.Initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize %s: %w", dbPath, err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS scan_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT UNIQUE,
	mode TEXT NOT NULL,
	target TEXT,
	key_fingerprint TEXT,
	adapter TEXT,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	stop_reason TEXT,
	total_detections INTEGER,
	unique_addresses INTEGER,
	resolved_total INTEGER,
	resolved_addresses INTEGER,
	gps_start TEXT
);

CREATE TABLE IF NOT EXISTS detections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	address TEXT NOT NULL COLLATE NOCASE,
	kind TEXT NOT NULL,
	subtype TEXT,
	rssi INTEGER,
	tx_power INTEGER,
	distance_m REAL,
	name TEXT,
	local_name TEXT,
	vendor TEXT,
	seen_count INTEGER,
	match_count INTEGER,
	gps TEXT,
	gps_cached INTEGER,
	payload_json TEXT,
	FOREIGN KEY(session_id) REFERENCES scan_sessions(id) ON DELETE CASCADE
);
`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_detections_session_address ON detections(session_id, address);`)
	return err
}

func normalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

type SessionParams struct {
	RunID          string
	Mode           string
	Target         *string
	KeyFingerprint *string
	Adapter        *string
	StartedAt      time.Time
	GPSStart       *string
}

func (s *Store) CreateSession(ctx context.Context, p SessionParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO scan_sessions (run_id, mode, target, key_fingerprint, adapter, started_at, gps_start)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.RunID,
		p.Mode,
		optString(p.Target),
		optString(p.KeyFingerprint),
		optString(p.Adapter),
		p.StartedAt.Format(tsLayout),
		optString(p.GPSStart),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type FinishParams struct {
	EndedAt           time.Time
	StopReason        string
	TotalDetections   int
	UniqueAddresses   int
	ResolvedTotal     int
	ResolvedAddresses int
}

func (s *Store) FinishSession(ctx context.Context, sessionID int64, p FinishParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.EndedAt.IsZero() {
		p.EndedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE scan_sessions
SET ended_at = ?, stop_reason = ?, total_detections = ?, unique_addresses = ?, resolved_total = ?, resolved_addresses = ?
WHERE id = ?`,
		p.EndedAt.Format(tsLayout),
		p.StopReason,
		p.TotalDetections,
		p.UniqueAddresses,
		p.ResolvedTotal,
		p.ResolvedAddresses,
		sessionID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("scan session %d not found", sessionID)
	}
	return nil
}

type DetectionParams struct {
	SessionID   int64
	Timestamp   time.Time
	Address     string
	Kind        string
	Subtype     *string
	RSSI        *int
	TxPower     *int
	Distance    *float64
	Name        *string
	LocalName   *string
	Vendor      *string
	SeenCount   int
	MatchCount  *int
	GPS         *string
	GPSCached   *bool
	PayloadJSON *string
}

func (s *Store) RecordDetection(ctx context.Context, p DetectionParams) (int64, error) {
	p.Address = normalizeMAC(p.Address)
	if p.Address == "" {
		return 0, nil
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
INSERT INTO detections (
	session_id, timestamp, address, kind, subtype, rssi, tx_power, distance_m,
	name, local_name, vendor, seen_count, match_count, gps, gps_cached, payload_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID,
		p.Timestamp.Format(tsLayout),
		p.Address,
		p.Kind,
		optString(p.Subtype),
		optInt(p.RSSI),
		optInt(p.TxPower),
		optFloat(p.Distance),
		optString(p.Name),
		optString(p.LocalName),
		optString(p.Vendor),
		p.SeenCount,
		optInt(p.MatchCount),
		optString(p.GPS),
		optBool(p.GPSCached),
		optString(p.PayloadJSON),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Statistics summarises the journal of one session.
type Statistics struct {
	Detections int
	Addresses  int
	Resolved   int
	Warnings   int
}

func (s *Store) GetStatistics(ctx context.Context, sessionID int64) (Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Statistics
	err := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COUNT(DISTINCT address),
	COALESCE(SUM(CASE WHEN kind = 'irk_resolved' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN kind = 'non_resolvable' THEN 1 ELSE 0 END), 0)
FROM detections WHERE session_id = ?`, sessionID).Scan(&st.Detections, &st.Addresses, &st.Resolved, &st.Warnings)
	return st, err
}

func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func optFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func optBool(p *bool) any {
	if p == nil {
		return nil
	}
	if *p {
		return 1
	}
	return 0
}
