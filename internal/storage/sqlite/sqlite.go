// Package sqlite opens the history database on the modernc driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// filePragmas let a wrap session and a history query share the file.
var filePragmas = []string{"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"}

// Open creates the parent directory if needed and opens the database file at dbPath.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := open(dsn(dbPath, nil, filePragmas))
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(time.Minute)
	return db, nil
}

// OpenMemory opens a private in-memory database. Handles opened with the same
// name share one database until the last is closed.
func OpenMemory(name string) (*sql.DB, error) {
	params := url.Values{"mode": {"memory"}, "cache": {"shared"}}
	return open(dsn(name, params, []string{"foreign_keys(1)"}))
}

func dsn(path string, params url.Values, pragmas []string) string {
	if params == nil {
		params = url.Values{}
	}
	for _, p := range pragmas {
		params.Add("_pragma", p)
	}
	return "file:" + path + "?" + params.Encode()
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers and keeps a shared in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return db, nil
}
