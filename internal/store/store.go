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

// Package store persists connections. Backends must keep records
// JSON-serializable end to end and must not return shared mutable state.
package store

import (
	"context"

	"github.com/tombee/conduit/pkg/connector"
)

// Pagination describes one page of a listing. Pages are 1-indexed.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Page is one page of connections.
type Page struct {
	Data       []*connector.Connection `json:"data"`
	Pagination Pagination              `json:"pagination"`
}

// ConnectionStore persists connection records. Implementations return copies;
// callers own what they get back and mutations are only visible after Update.
type ConnectionStore interface {
	// Create persists a new connection. Returns AlreadyExistsError if the
	// ID is taken.
	Create(ctx context.Context, conn *connector.Connection) error

	// Read returns the connection by ID, or NotFoundError.
	Read(ctx context.Context, id string) (*connector.Connection, error)

	// ReadAll returns one page of connections ordered by creation time.
	// page is 1-indexed; limit caps the page size.
	ReadAll(ctx context.Context, page, limit int) (*Page, error)

	// Update overwrites an existing connection. Returns NotFoundError if
	// the ID is unknown.
	Update(ctx context.Context, conn *connector.Connection) error

	// Delete removes the connection. Returns NotFoundError if the ID is
	// unknown.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

// DefaultPageLimit is used when a listing does not specify a limit.
const DefaultPageLimit = 50

// MaxPageLimit caps the page size a caller may request.
const MaxPageLimit = 200

// ClampPage normalizes raw pagination parameters.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// PaginationFor computes page metadata for a listing of total records.
func PaginationFor(page, limit, total int) Pagination {
	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
