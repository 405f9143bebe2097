// Package storage provides SQLite-backed persistence for market snapshots,
// the alert log, and settings. Absent rows are a defined state, not an
// error: Get/Load return nil so callers can initialize defaults.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/matoracle/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxAlerts int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/matoracle/data.db.
func New(maxAlerts int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "matoracle", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			name           TEXT PRIMARY KEY COLLATE NOCASE,
			symbol         TEXT NOT NULL,
			price          REAL NOT NULL,
			change_24h     REAL NOT NULL,
			demand_index   REAL NOT NULL,
			supply_index   REAL NOT NULL,
			mismatch_score REAL NOT NULL,
			z_score        REAL NOT NULL,
			ema_20         REAL NOT NULL,
			ema_50         REAL NOT NULL,
			history        TEXT NOT NULL DEFAULT '[]',
			alert_level    TEXT NOT NULL,
			last_update    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id        TEXT PRIMARY KEY,
			market    TEXT NOT NULL COLLATE NOCASE,
			level     TEXT NOT NULL,
			message   TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			read      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_market_level ON alerts(market, level)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id                 INTEGER PRIMARY KEY CHECK (id = 1),
			warn_threshold     REAL NOT NULL,
			critical_threshold REAL NOT NULL,
			refresh_interval   INTEGER NOT NULL,
			markets            TEXT NOT NULL DEFAULT '[]'
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot inserts or replaces the snapshot for its market name.
func (s *Storage) SaveSnapshot(snapshot *models.MarketSnapshot) error {
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	historyJSON, err := json.Marshal(snapshot.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO snapshots
			(name, symbol, price, change_24h, demand_index, supply_index,
			 mismatch_score, z_score, ema_20, ema_50, history, alert_level, last_update)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		snapshot.Name, snapshot.Symbol, snapshot.Price, snapshot.Change24h,
		snapshot.DemandIndex, snapshot.SupplyIndex,
		snapshot.MismatchScore, snapshot.ZScore, snapshot.EMA20, snapshot.EMA50,
		string(historyJSON), string(snapshot.AlertLevel), snapshot.LastUpdate.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

const snapshotCols = `name, symbol, price, change_24h, demand_index, supply_index,
	mismatch_score, z_score, ema_20, ema_50, history, alert_level, last_update`

func scanSnapshot(scan func(...any) error) (*models.MarketSnapshot, error) {
	var snap models.MarketSnapshot
	var historyJSON, level string
	var lastUpdateNano int64
	err := scan(
		&snap.Name, &snap.Symbol, &snap.Price, &snap.Change24h,
		&snap.DemandIndex, &snap.SupplyIndex,
		&snap.MismatchScore, &snap.ZScore, &snap.EMA20, &snap.EMA50,
		&historyJSON, &level, &lastUpdateNano,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(historyJSON), &snap.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	snap.AlertLevel = models.AlertLevel(level)
	snap.LastUpdate = time.Unix(0, lastUpdateNano)
	return &snap, nil
}

// GetSnapshot returns the snapshot for name, matched case-insensitively.
// A missing market yields (nil, nil).
func (s *Storage) GetSnapshot(name string) (*models.MarketSnapshot, error) {
	row := s.db.QueryRow(`SELECT `+snapshotCols+` FROM snapshots WHERE name = ?`, name)
	snap, err := scanSnapshot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// GetAllSnapshots returns every stored snapshot ordered by market name.
func (s *Storage) GetAllSnapshots() ([]*models.MarketSnapshot, error) {
	rows, err := s.db.Query(`SELECT ` + snapshotCols + ` FROM snapshots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()
	snapshots := []*models.MarketSnapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// AddAlert appends alert to the log, evicting the oldest entries beyond the
// retained cap in the same transaction.
func (s *Storage) AddAlert(alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO alerts (id, market, level, message, timestamp, read)
		VALUES (?,?,?,?,?,?)`,
		alert.ID, alert.Market, string(alert.Level), alert.Message,
		alert.Timestamp.UnixNano(), boolToInt(alert.Read),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM alerts WHERE id NOT IN (
			SELECT id FROM alerts ORDER BY timestamp DESC LIMIT ?
		)`, s.maxAlerts); err != nil {
		return fmt.Errorf("failed to enforce alert cap: %w", err)
	}

	return tx.Commit()
}

// HasRecentAlert reports whether an alert for market (case-insensitive) with
// the given level exists at or after since.
func (s *Storage) HasRecentAlert(market string, level models.AlertLevel, since time.Time) (bool, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE market = ? AND level = ? AND timestamp >= ?
		)`, market, string(level), since.UnixNano()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query recent alerts: %w", err)
	}
	return exists != 0, nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Storage) RecentAlerts(limit int) ([]models.Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, market, level, message, timestamp, read
		FROM alerts ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		var level string
		var timestampNano int64
		var read int
		if err := rows.Scan(&a.ID, &a.Market, &level, &a.Message, &timestampNano, &read); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Level = models.AlertLevel(level)
		a.Timestamp = time.Unix(0, timestampNano)
		a.Read = read != 0
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkAlertRead flips the read flag of the alert with the given ID.
func (s *Storage) MarkAlertRead(id string) error {
	res, err := s.db.Exec(`UPDATE alerts SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

// UnreadCount returns the number of unread alerts in the log.
func (s *Storage) UnreadCount() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM alerts WHERE read = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	return count, nil
}

// ClearAlerts removes the whole alert log. This is the only way to delete
// individual alerts.
func (s *Storage) ClearAlerts() error {
	if _, err := s.db.Exec(`DELETE FROM alerts`); err != nil {
		return fmt.Errorf("failed to clear alerts: %w", err)
	}
	return nil
}

// LoadSettings returns the persisted settings, or (nil, nil) when none have
// been saved yet.
func (s *Storage) LoadSettings() (*models.Settings, error) {
	row := s.db.QueryRow(`
		SELECT warn_threshold, critical_threshold, refresh_interval, markets
		FROM settings WHERE id = 1`)

	var settings models.Settings
	var marketsJSON string
	var refreshNano int64
	err := row.Scan(&settings.WarnThreshold, &settings.CriticalThreshold, &refreshNano, &marketsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := json.Unmarshal([]byte(marketsJSON), &settings.Markets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal markets: %w", err)
	}
	settings.RefreshInterval = time.Duration(refreshNano)
	return &settings, nil
}

// SaveSettings persists the singleton settings record.
func (s *Storage) SaveSettings(settings *models.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	marketsJSON, err := json.Marshal(settings.Markets)
	if err != nil {
		return fmt.Errorf("failed to marshal markets: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO settings (id, warn_threshold, critical_threshold, refresh_interval, markets)
		VALUES (1,?,?,?,?)`,
		settings.WarnThreshold, settings.CriticalThreshold,
		int64(settings.RefreshInterval), string(marketsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
