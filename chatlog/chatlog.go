// Package chatlog persists translated dialogue in a SQLite database so a
// session can be reviewed later, one day at a time.
package chatlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/minios-linux/dialogkit/dialogue"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Record is one stored line of dialogue.
type Record struct {
	ID             string
	Code           string
	Player         string
	Name           string
	Text           string
	TranslatedName string
	TranslatedText string
	From           string
	To             string
	// Timestamp is in Unix milliseconds.
	Timestamp int64
}

// Time returns the record timestamp.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Store is the dialogue log.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite database at path, creating its directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(path, 0600)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS dialogue_log (
		  id              TEXT PRIMARY KEY,
		  code            TEXT NOT NULL,
		  player          TEXT,
		  name            TEXT,
		  text            TEXT NOT NULL,
		  translated_name TEXT,
		  translated_text TEXT,
		  from_lang       TEXT,
		  to_lang         TEXT,
		  timestamp       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_dialogue_log_timestamp
		ON dialogue_log(timestamp);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// Save writes a translated entry, replacing any earlier record with the
// same id.
func (s *Store) Save(ctx context.Context, result dialogue.Result) error {
	e := result.Entry
	if e.ID == "" {
		return fmt.Errorf("saving dialogue: entry has no id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dialogue_log (id, code, player, name, text, translated_name, translated_text, from_lang, to_lang, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  code = excluded.code,
		  player = excluded.player,
		  name = excluded.name,
		  text = excluded.text,
		  translated_name = excluded.translated_name,
		  translated_text = excluded.translated_text,
		  from_lang = excluded.from_lang,
		  to_lang = excluded.to_lang,
		  timestamp = excluded.timestamp`,
		e.ID, e.Code, e.Player, e.Name, e.Text,
		result.TranslatedName, result.TranslatedText,
		e.Translation.From, e.Translation.To, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("saving dialogue %s: %w", e.ID, err)
	}
	return nil
}

// ListDay returns the records of the calendar day containing day, in day's
// location, ordered by timestamp.
func (s *Store) ListDay(ctx context.Context, day time.Time) ([]Record, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, COALESCE(player, ''), COALESCE(name, ''), text,
		       COALESCE(translated_name, ''), COALESCE(translated_text, ''),
		       COALESCE(from_lang, ''), COALESCE(to_lang, ''), timestamp
		FROM dialogue_log
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp, id`,
		start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing dialogue: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Code, &r.Player, &r.Name, &r.Text,
			&r.TranslatedName, &r.TranslatedText, &r.From, &r.To, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning dialogue: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
