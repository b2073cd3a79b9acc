// Package sessiondb persists portal sessions between runs of the cli so a
// user does not have to log in on every invocation.
package sessiondb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sigaa-scraper/internal/scrapers/sigaa/session"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

var ErrNoSession = errors.New("no saved session")

type DB struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path, ":memory:" works too.
func Open(path string) (DB, error) {
	sqlite, err := sql.Open("sqlite", path)
	if err != nil {
		return DB{}, fmt.Errorf("open session db: %w", err)
	}
	// an in memory database only lives as long as its connection
	sqlite.SetMaxOpenConns(1)

	_, err = sqlite.Exec(Schema)
	if err != nil {
		sqlite.Close()
		return DB{}, fmt.Errorf("init session db: %w", err)
	}
	return DB{db: sqlite}, nil
}

func (d DB) Close() error {
	return d.db.Close()
}

func (d DB) Save(ctx context.Context, username string, snapshot session.Snapshot) error {
	tokens, err := json.Marshal(snapshot.Tokens)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(
		ctx,
		`insert into session(username, base_url, tokens, updated_at) values (?, ?, ?, ?)
		on conflict (username) do update set
			base_url = excluded.base_url,
			tokens = excluded.tokens,
			updated_at = excluded.updated_at`,
		username, snapshot.BaseUrl, string(tokens), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save session of '%s': %w", username, err)
	}
	return nil
}

// Load returns the snapshot saved for username or ErrNoSession.
func (d DB) Load(ctx context.Context, username string) (session.Snapshot, error) {
	var baseUrl, tokens string
	err := d.db.QueryRowContext(
		ctx,
		"select base_url, tokens from session where username = ?",
		username,
	).Scan(&baseUrl, &tokens)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Snapshot{}, ErrNoSession
	}
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("load session of '%s': %w", username, err)
	}

	snapshot := session.Snapshot{BaseUrl: baseUrl}
	err = json.Unmarshal([]byte(tokens), &snapshot.Tokens)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("decode tokens of '%s': %w", username, err)
	}
	return snapshot, nil
}

func (d DB) Delete(ctx context.Context, username string) error {
	_, err := d.db.ExecContext(ctx, "delete from session where username = ?", username)
	return err
}
