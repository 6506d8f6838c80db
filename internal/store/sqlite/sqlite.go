// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite implements the connection store on SQLite. Connection
// payloads are stored as JSON blobs; identity and timestamps are columns so
// listings do not require decoding every row.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/conduit/internal/store"
	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
)

// Store implements store.ConnectionStore on a SQLite database file.
//
// WAL mode is enabled for concurrent readers alongside the single writer.
type Store struct {
	db *sql.DB
}

// Config contains SQLite store configuration.
type Config struct {
	// Path is the filesystem path to the database file.
	Path string
}

// New opens (creating if needed) the database and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// WAL mode for better concurrency
	connStr := cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS connections (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL,
			integration_id TEXT NOT NULL,
			connector_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_integration
			ON connections(integration_id)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_external
			ON connections(external_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Create persists a new connection.
func (s *Store) Create(ctx context.Context, conn *connector.Connection) error {
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	payload, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("failed to encode connection: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO connections (id, external_id, integration_id, connector_id, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.ExternalID, conn.IntegrationID, conn.ConnectorID,
		string(payload), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return &errors.AlreadyExistsError{Resource: "connection", ID: conn.ID}
		}
		return fmt.Errorf("failed to insert connection: %w", err)
	}
	return nil
}

// Read returns the connection by ID.
func (s *Store) Read(ctx context.Context, id string) (*connector.Connection, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM connections WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "connection", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read connection: %w", err)
	}

	return decode(payload)
}

// ReadAll returns one page of connections ordered by creation time.
func (s *Store) ReadAll(ctx context.Context, page, limit int) (*store.Page, error) {
	page, limit = store.ClampPage(page, limit)

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connections`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count connections: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM connections ORDER BY created_at, id LIMIT ? OFFSET ?`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	data := make([]*connector.Connection, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conn, err := decode(payload)
		if err != nil {
			return nil, err
		}
		data = append(data, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}

	return &store.Page{
		Data:       data,
		Pagination: store.PaginationFor(page, limit, total),
	}, nil
}

// Update overwrites an existing connection.
func (s *Store) Update(ctx context.Context, conn *connector.Connection) error {
	conn.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("failed to encode connection: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE connections
		 SET external_id = ?, integration_id = ?, connector_id = ?, payload = ?, updated_at = ?
		 WHERE id = ?`,
		conn.ExternalID, conn.IntegrationID, conn.ConnectorID,
		string(payload), conn.UpdatedAt.Format(time.RFC3339Nano), conn.ID)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return &errors.NotFoundError{Resource: "connection", ID: conn.ID}
	}
	return nil
}

// Delete removes the connection.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return &errors.NotFoundError{Resource: "connection", ID: id}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decode(payload string) (*connector.Connection, error) {
	var conn connector.Connection
	if err := json.Unmarshal([]byte(payload), &conn); err != nil {
		return nil, fmt.Errorf("failed to decode connection: %w", err)
	}
	return &conn, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
