package convlog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS log_entries (
	patient_id TEXT    NOT NULL,
	position   INTEGER NOT NULL,
	id         INTEGER NOT NULL,
	message    TEXT    NOT NULL,
	category   TEXT    NOT NULL,
	timestamp  TEXT    NOT NULL,
	PRIMARY KEY (patient_id, position)
);
`

// SQLiteStore keeps all patients' logs in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements Store.
func (s *SQLiteStore) Load(patient string) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, message, category, timestamp FROM log_entries
		 WHERE patient_id = ? ORDER BY position`, patient)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e := Entry{PatientID: patient}
		if err := rows.Scan(&e.ID, &e.Message, &e.Category, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Save implements Store, replacing the patient's rows in one transaction.
func (s *SQLiteStore) Save(patient string, entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM log_entries WHERE patient_id = ?`, patient); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO log_entries (patient_id, position, id, message, category, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.Exec(patient, i, e.ID, e.Message, e.Category, e.Timestamp); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
