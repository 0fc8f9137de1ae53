package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/meur/boundlexx/internal/models"
)

// Store writes exports of fully loaded resource stores to SQLite.
// Exports are offline dumps; the cache never reads them back.
type Store struct {
	db *sql.DB
}

// Export is one export run of one resource kind.
type Export struct {
	ID          string      `json:"id"`
	Kind        models.Kind `json:"kind"`
	Locale      string      `json:"locale"`
	RecordCount int         `json:"record_count"`
	CreatedAt   time.Time   `json:"created_at"`
}

// New creates a new Store with SQLite
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS exports (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			locale TEXT,
			record_count INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exports_kind ON exports(kind, created_at)`,
		`CREATE TABLE IF NOT EXISTS records (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			export_id TEXT NOT NULL REFERENCES exports(id),
			locale TEXT,
			data TEXT NOT NULL,
			PRIMARY KEY (kind, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_export ON records(export_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// --- Exports ---

// SaveExport writes records of one kind in a transaction and returns the
// export run. Records without an id are skipped, as in the cache.
// Rows from earlier exports of the same id are replaced.
func (s *Store) SaveExport(kind models.Kind, locale string, records []models.Record) (*Export, error) {
	spec, err := kind.Spec()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	exp := &Export{
		ID:        uuid.New().String(),
		Kind:      kind,
		Locale:    locale,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.Exec(`
		INSERT INTO exports (id, kind, locale, record_count, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, exp.ID, string(kind), locale, exp.CreatedAt); err != nil {
		return nil, err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO records (kind, id, export_id, locale, data)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, r := range records {
		id, ok := recordKey(spec, r)
		if !ok {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s: %w", kind, id, err)
		}
		if _, err := stmt.Exec(string(kind), id, exp.ID, locale, data); err != nil {
			return nil, err
		}
		exp.RecordCount++
	}

	if _, err := tx.Exec(`UPDATE exports SET record_count = ? WHERE id = ?`, exp.RecordCount, exp.ID); err != nil {
		return nil, err
	}

	return exp, tx.Commit()
}

// GetExports returns export runs, newest first.
func (s *Store) GetExports() ([]Export, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, locale, record_count, created_at
		FROM exports ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []Export
	for rows.Next() {
		var e Export
		var kind string
		var locale sql.NullString
		if err := rows.Scan(&e.ID, &kind, &locale, &e.RecordCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = models.Kind(kind)
		e.Locale = locale.String
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

// --- Records ---

// GetRecords returns the exported records of kind ordered by id.
func (s *Store) GetRecords(kind models.Kind) ([]models.Record, error) {
	rows, err := s.db.Query(`
		SELECT data FROM records WHERE kind = ?
		ORDER BY CAST(id AS INTEGER), id
	`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r models.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decoding %s record: %w", kind, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetRecord returns one exported record, or nil if it does not exist.
func (s *Store) GetRecord(kind models.Kind, id string) (models.Record, error) {
	var data string
	err := s.db.QueryRow(`
		SELECT data FROM records WHERE kind = ? AND id = ?
	`, string(kind), id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var r models.Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", kind, id, err)
	}
	return r, nil
}

func recordKey(spec models.KindSpec, r models.Record) (string, bool) {
	if spec.StringID {
		return models.StringID(spec.IDField)(r)
	}
	id, ok := r.Int(spec.IDField)
	if !ok {
		return "", false
	}
	return fmt.Sprint(id), true
}
