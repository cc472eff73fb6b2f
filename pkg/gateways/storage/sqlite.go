package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const queryTimeout = 3 * time.Second

type sqliteBackend struct {
	db *sql.DB
}

// NewSQLiteStore keeps documents as rows of a single table, for boards whose flash is
// mounted as one database file.
func NewSQLiteStore(path string, log *logrus.Entry) (DocumentStore, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, errors.Wrap(err, "create sqlite directory")
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "ping sqlite")
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents(path TEXT PRIMARY KEY, body BLOB NOT NULL, updated INTEGER NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "create documents table")
	}
	return &loggedStore{backend: &sqliteBackend{db: db}, log: log}, db.Close, nil
}

func (s *sqliteBackend) read(path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE path = ?`, path).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	return body, errors.Wrap(err, "select document")
}

func (s *sqliteBackend) write(path string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(path, body, updated) VALUES(?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated = excluded.updated`,
		path, data, time.Now().Unix())
	return errors.Wrap(err, "upsert document")
}
