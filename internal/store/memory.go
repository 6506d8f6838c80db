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

package store

import (
	"context"
	"sync"
	"time"

	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
)

// MemoryStore is the in-memory ConnectionStore used by tests and by daemons
// that run without a database. All records are lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	connections map[string]*connector.Connection

	// seq preserves insertion order for stable listings.
	seq []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		connections: make(map[string]*connector.Connection),
	}
}

// Create persists a new connection.
func (s *MemoryStore) Create(ctx context.Context, conn *connector.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.connections[conn.ID]; exists {
		return &errors.AlreadyExistsError{Resource: "connection", ID: conn.ID}
	}

	now := time.Now().UTC()
	stored := conn.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.connections[conn.ID] = stored
	s.seq = append(s.seq, conn.ID)

	conn.CreatedAt = now
	conn.UpdatedAt = now
	return nil
}

// Read returns the connection by ID.
func (s *MemoryStore) Read(ctx context.Context, id string) (*connector.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, exists := s.connections[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "connection", ID: id}
	}
	return conn.Clone(), nil
}

// ReadAll returns one page of connections in insertion order.
func (s *MemoryStore) ReadAll(ctx context.Context, page, limit int) (*Page, error) {
	page, limit = ClampPage(page, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.seq)
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	data := make([]*connector.Connection, 0, end-start)
	for _, id := range s.seq[start:end] {
		data = append(data, s.connections[id].Clone())
	}

	return &Page{
		Data:       data,
		Pagination: PaginationFor(page, limit, total),
	}, nil
}

// Update overwrites an existing connection.
func (s *MemoryStore) Update(ctx context.Context, conn *connector.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.connections[conn.ID]
	if !exists {
		return &errors.NotFoundError{Resource: "connection", ID: conn.ID}
	}

	stored := conn.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	s.connections[conn.ID] = stored

	conn.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete removes the connection.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.connections[id]; !exists {
		return &errors.NotFoundError{Resource: "connection", ID: id}
	}
	delete(s.connections, id)

	for i, sid := range s.seq {
		if sid == id {
			s.seq = append(s.seq[:i], s.seq[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
