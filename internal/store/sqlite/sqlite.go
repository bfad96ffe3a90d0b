// Package sqlite implements store.Store on top of database/sql and
// mattn/go-sqlite3, following wansing/ulist's prepared-statement convention:
// one *sql.Stmt field per query, schema created with CREATE TABLE IF NOT
// EXISTS inside Open, MustPrepare panics on a malformed query at boot.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ktnl/ktnl/internal/feedtemplate"
	"github.com/ktnl/ktnl/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS feeds (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now')),
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now')),
	reference  TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now')),
	reference  TEXT NOT NULL REFERENCES feeds(reference),
	title      TEXT,
	author     TEXT,
	content    TEXT
);
`

// DB is a store.Store backed by a SQLite file.
type DB struct {
	sqlDB *sql.DB

	emailDomain string
	webURL      string

	feedExistsStmt   *sql.Stmt
	getTitleStmt     *sql.Stmt
	insertFeedStmt   *sql.Stmt
	insertEntryStmt  *sql.Stmt
	entriesByRefStmt *sql.Stmt
}

func (db *DB) mustPrepare(query string) *sql.Stmt {
	stmt, err := db.sqlDB.Prepare(query)
	if err != nil {
		panic(fmt.Errorf("sqlite: prepare %q: %w", query, err))
	}
	return stmt
}

// Open creates (if needed) the schema at path and prepares all statements.
// emailDomain and webURL are embedded in the sentinel welcome entry rendered
// by CreateFeed.
func Open(path, emailDomain, webURL string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{sqlDB: sqlDB, emailDomain: emailDomain, webURL: webURL}

	db.feedExistsStmt = db.mustPrepare(`SELECT COUNT(1) FROM feeds WHERE reference = ?`)
	db.getTitleStmt = db.mustPrepare(`SELECT title FROM feeds WHERE reference = ?`)
	db.insertFeedStmt = db.mustPrepare(`INSERT INTO feeds (reference, title) VALUES (?, ?)`)
	db.insertEntryStmt = db.mustPrepare(`
		INSERT INTO entries (reference, title, author, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	db.entriesByRefStmt = db.mustPrepare(`
		SELECT id, reference, title, author, content, created_at
		FROM entries WHERE reference = ? ORDER BY created_at DESC
	`)

	return db, nil
}

func (db *DB) Close() error {
	return db.sqlDB.Close()
}

func (db *DB) FeedExists(reference string) (bool, error) {
	var count int
	if err := db.feedExistsStmt.QueryRow(reference).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) GetTitle(reference string) (string, error) {
	var title string
	err := db.getTitleStmt.QueryRow(reference).Scan(&title)
	if err == sql.ErrNoRows {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return title, nil
}

func (db *DB) SaveEntry(reference, title, author, content string, createdAt time.Time) error {
	exists, err := db.FeedExists(reference)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	created := createdAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err = db.insertEntryStmt.Exec(reference, title, author, content, created.UTC().Format(store.TimeLayout))
	return err
}

func (db *DB) FindEntriesByReference(reference string) ([]store.Entry, error) {
	rows, err := db.entriesByRefStmt.Query(reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var e store.Entry
		var createdAtStr string
		if err := rows.Scan(&e.ID, &e.Reference, &e.Title, &e.Author, &e.Content, &createdAtStr); err != nil {
			return nil, err
		}
		e.CreatedAt, err = time.ParseInLocation(store.TimeLayout, createdAtStr, time.UTC)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateFeed inserts the feed row and its sentinel welcome entry inside a
// single transaction so both are atomically observable together. If
// reference is non-empty and already names a feed, CreateFeed is a no-op
// returning that reference unchanged, making retried feed creation
// idempotent; otherwise it generates a reference (if one wasn't supplied)
// and creates the feed.
func (db *DB) CreateFeed(title, reference string) (string, error) {
	if reference != "" {
		exists, err := db.FeedExists(reference)
		if err != nil {
			return "", err
		}
		if exists {
			return reference, nil
		}
	} else {
		var err error
		reference, err = store.NewReference()
		if err != nil {
			return "", err
		}
	}

	tx, err := db.sqlDB.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Stmt(db.insertFeedStmt).Exec(reference, title); err != nil {
		return "", err
	}

	content, err := feedtemplate.RenderSentinel(feedtemplate.SentinelData{
		EmailDomain: db.emailDomain,
		Reference:   reference,
		Title:       title,
		WebURL:      db.webURL,
	})
	if err != nil {
		return "", err
	}

	entryTitle := feedtemplate.SentinelEntryTitle(title)
	now := time.Now().UTC().Format(store.TimeLayout)
	_, err = tx.Stmt(db.insertEntryStmt).Exec(reference, entryTitle, feedtemplate.SentinelAuthor, content, now)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	return reference, nil
}
