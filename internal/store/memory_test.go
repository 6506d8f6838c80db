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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
)

func newConn(id string) *connector.Connection {
	return &connector.Connection{
		ID:            id,
		ExternalID:    "user-" + id,
		IntegrationID: "int-1",
		ConnectorID:   "slack",
		Config:        map[string]interface{}{"apiKey": "sk-" + id},
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	conn := newConn("c1")
	require.NoError(t, s.Create(ctx, conn))
	assert.False(t, conn.CreatedAt.IsZero())

	// Duplicate ID is rejected.
	err := s.Create(ctx, newConn("c1"))
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))

	got, err := s.Read(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "sk-c1", got.Config["apiKey"])

	// Reads return copies; mutating them does not touch the store.
	got.Config["apiKey"] = "tampered"
	again, err := s.Read(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "sk-c1", again.Config["apiKey"])

	got.ID = "c1"
	got.Config["apiKey"] = "rotated"
	require.NoError(t, s.Update(ctx, got))
	updated, err := s.Read(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "rotated", updated.Config["apiKey"])
	assert.Equal(t, conn.CreatedAt, updated.CreatedAt)

	require.NoError(t, s.Delete(ctx, "c1"))
	_, err = s.Read(ctx, "c1")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Read(ctx, "ghost")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(s.Update(ctx, newConn("ghost"))))
	assert.True(t, errors.IsNotFound(s.Delete(ctx, "ghost")))
}

func TestMemoryStorePagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Create(ctx, newConn(fmt.Sprintf("c%d", i))))
	}

	page, err := s.ReadAll(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, "c0", page.Data[0].ID)
	assert.Equal(t, 7, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrev)

	page, err = s.ReadAll(ctx, 3, 3)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "c6", page.Data[0].ID)
	assert.False(t, page.Pagination.HasNext)
	assert.True(t, page.Pagination.HasPrev)

	// Pages past the end are empty, not errors.
	page, err = s.ReadAll(ctx, 9, 3)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, DefaultPageLimit},
		{-3, -1, 1, DefaultPageLimit},
		{2, 25, 2, 25},
		{1, 10000, 1, MaxPageLimit},
	}

	for _, tt := range tests {
		gotPage, gotLimit := ClampPage(tt.page, tt.limit)
		assert.Equal(t, tt.wantPage, gotPage)
		assert.Equal(t, tt.wantLimit, gotLimit)
	}
}
