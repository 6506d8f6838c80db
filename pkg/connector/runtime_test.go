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

package connector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveSyncs(t *testing.T) {
	conn := &Connection{ID: "conn-1"}

	conn.AddActiveSync("users")
	conn.AddActiveSync("channels")
	conn.AddActiveSync("users")
	assert.Equal(t, []string{"users", "channels"}, conn.ActiveSyncs)
	assert.True(t, conn.HasActiveSync("users"))

	conn.RemoveActiveSync("users")
	assert.Equal(t, []string{"channels"}, conn.ActiveSyncs)
	assert.False(t, conn.HasActiveSync("users"))

	// Removing a sync that is not present is a no-op.
	conn.RemoveActiveSync("ghost")
	assert.Equal(t, []string{"channels"}, conn.ActiveSyncs)
}

func TestSetSyncRecord(t *testing.T) {
	conn := &Connection{ID: "conn-1"}
	ran := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	conn.SetSyncRecord("users", SyncRecord{
		Success:       true,
		LastRun:       ran,
		ExecutionTime: 125,
		LastResult:    []interface{}{"alice", "bob"},
	})

	rec := conn.SyncRecordFor("users")
	require.NotNil(t, rec)
	assert.Equal(t, true, rec["success"])
	assert.Equal(t, "2026-03-14T09:26:53Z", rec["lastRun"])
	assert.Equal(t, int64(125), rec["executionTime"])
	assert.Equal(t, []interface{}{"alice", "bob"}, rec["lastResult"])
	_, hasErr := rec["error"]
	assert.False(t, hasErr)

	// A failed run replaces the record and carries error instead of lastResult.
	conn.SetSyncRecord("users", SyncRecord{
		Success:       false,
		LastRun:       ran.Add(time.Hour),
		ExecutionTime: 30,
		Error:         "upstream 503",
	})

	rec = conn.SyncRecordFor("users")
	require.NotNil(t, rec)
	assert.Equal(t, false, rec["success"])
	assert.Equal(t, "upstream 503", rec["error"])
	_, hasResult := rec["lastResult"]
	assert.False(t, hasResult)

	assert.Nil(t, conn.SyncRecordFor("channels"))
}

func TestConnectionClone(t *testing.T) {
	conn := &Connection{
		ID:          "conn-1",
		Config:      map[string]interface{}{"apiKey": "sk-1"},
		ActiveSyncs: []string{"users"},
		Metadata: map[string]interface{}{
			"syncs": map[string]interface{}{
				"users": map[string]interface{}{"success": true},
			},
		},
	}

	clone := conn.Clone()
	clone.Config["apiKey"] = "other"
	clone.AddActiveSync("channels")
	clone.Metadata["syncs"].(map[string]interface{})["users"].(map[string]interface{})["success"] = false

	assert.Equal(t, "sk-1", conn.Config["apiKey"])
	assert.Equal(t, []string{"users"}, conn.ActiveSyncs)
	assert.Equal(t, true, conn.Metadata["syncs"].(map[string]interface{})["users"].(map[string]interface{})["success"])
}
