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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/conduit/internal/engine"
	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/schema"
)

type fixture struct {
	router *Router
	engine *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c, err := connector.New("acme").
		DisplayName("Acme").
		IntegrationSchema(schema.Object(map[string]interface{}{
			"baseUrl": schema.String(),
		}, "baseUrl")).
		ConnectionSchema(schema.Object(map[string]interface{}{
			"apiKey": schema.String(),
		}, "apiKey")).
		Action("ping", func(ctx context.Context, params map[string]interface{}, conn *connector.Connection) (interface{}, error) {
			return map[string]interface{}{"reply": "pong"}, nil
		}).
		Sync("users", func(ctx context.Context, conn *connector.Connection) (interface{}, error) {
			return []interface{}{"alice"}, nil
		}).
		AuthFlow("setup").
		Form("creds", "Credentials",
			connector.FormField{Name: "apiKey", Label: "API Key", Type: connector.FieldPassword, Required: true}).
		Return(func(fc connector.FlowContext) (map[string]interface{}, error) {
			return fc.Block("creds"), nil
		}).
		Build()
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{Connectors: []*connector.Connector{c}})
	require.NoError(t, err)
	t.Cleanup(eng.Destroy)

	return &fixture{
		router: NewRouter(eng, log.New(nil), RouterConfig{Version: "test"}),
		engine: eng,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (f *fixture) seedIntegration(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/integrations", map[string]any{
		"id":          "int-1",
		"connectorId": "acme",
		"name":        "Acme Prod",
		"config":      map[string]any{"baseUrl": "https://api.acme.test"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (f *fixture) seedConnection(t *testing.T, id string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/connections", map[string]any{
		"id":            id,
		"externalId":    "user-1",
		"integrationId": "int-1",
		"config":        map[string]any{"apiKey": "sk-1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
	// Responses always carry a correlation ID.
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.seedIntegration(t)

	rec := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode(t, rec)["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["connectors"])
	assert.Equal(t, float64(1), stats["integrations"])
	assert.Equal(t, float64(0), stats["connections"])
}

func TestListConnectorsSanitized(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/connectors", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	entry := body["connectors"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "acme", entry["id"])
	assert.Equal(t, true, entry["hasAuthFlow"])
	// Schemas and handlers never cross the wire.
	_, hasSchema := entry["connectionConfig"]
	assert.False(t, hasSchema)

	actions := entry["actions"].([]interface{})
	require.Len(t, actions, 1)
	assert.Equal(t, "ping", actions[0].(map[string]interface{})["name"])
}

func TestGetConnectorNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/connectors/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIntegrationLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedIntegration(t)

	rec := f.do(t, http.MethodGet, "/api/integrations/int-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme Prod", decode(t, rec)["name"])

	// Duplicate create conflicts.
	rec = f.do(t, http.MethodPost, "/api/integrations", map[string]any{
		"id": "int-1", "connectorId": "acme",
		"config": map[string]any{"baseUrl": "x"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Config failing the schema is a 400.
	rec = f.do(t, http.MethodPost, "/api/integrations", map[string]any{
		"id": "int-2", "connectorId": "acme", "config": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/integrations/int-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/integrations/int-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedIntegration(t)
	f.seedConnection(t, "conn-1")

	rec := f.do(t, http.MethodGet, "/api/connections/conn-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "acme", body["connectorId"])

	rec = f.do(t, http.MethodGet, "/api/connections?page=1&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	pagination := page["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["total"])

	rec = f.do(t, http.MethodPut, "/api/connections/conn-1", map[string]any{
		"id":            "conn-1",
		"externalId":    "user-2",
		"integrationId": "int-1",
		"config":        map[string]any{"apiKey": "sk-2"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/connections/conn-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/connections/conn-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectionValidationMapsTo400(t *testing.T) {
	f := newFixture(t)
	f.seedIntegration(t)

	rec := f.do(t, http.MethodPost, "/api/connections", map[string]any{
		"id":            "conn-1",
		"integrationId": "int-1",
		"connectorId":   "other",
		"config":        map[string]any{"apiKey": "k"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlowOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedIntegration(t)

	rec := f.do(t, http.MethodPost, "/api/flows/start", map[string]any{"integrationId": "int-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	start := decode(t, rec)
	sessionID := start["sessionId"].(string)
	require.NotEmpty(t, sessionID)
	next := start["nextStep"].(map[string]interface{})
	assert.Equal(t, "creds", next["blockName"])

	rec = f.do(t, http.MethodPost, "/api/flows/"+sessionID+"/step", map[string]any{
		"input": map[string]any{"apiKey": "sk-9"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	final := decode(t, rec)
	assert.Equal(t, true, final["isComplete"])
	assert.Equal(t, true, final["success"])

	rec = f.do(t, http.MethodGet, "/api/flows/"+sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/flows/"+sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/flows/"+sessionID, nil)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestSyncManagementOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedIntegration(t)
	f.seedConnection(t, "conn-1")

	rec := f.do(t, http.MethodPost, "/api/connections/conn-1/syncs/users/activate", map[string]any{
		"syncInterval": 15,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/connections/conn-1/syncs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	syncs := decode(t, rec)["syncs"].([]interface{})
	require.Len(t, syncs, 1)
	assert.Equal(t, true, syncs[0].(map[string]interface{})["isActive"])

	rec = f.do(t, http.MethodGet, "/api/sync/jobs/conn-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode(t, rec)["jobs"].([]interface{})
	require.Len(t, jobs, 1)
	assert.Equal(t, "conn-1:users", jobs[0].(map[string]interface{})["id"])

	rec = f.do(t, http.MethodGet, "/api/sync/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/sync/execute/conn-1/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode(t, rec)
	assert.Equal(t, true, result["success"])

	rec = f.do(t, http.MethodPost, "/api/connections/conn-1/syncs/users/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sync/jobs/conn-1", nil)
	jobs = decode(t, rec)["jobs"].([]interface{})
	assert.Empty(t, jobs)
}

func TestScheduleConnectionOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedIntegration(t)
	f.seedConnection(t, "conn-1")

	rec := f.do(t, http.MethodPost, "/api/sync/schedule/conn-1", map[string]any{
		"syncInterval": 5,
		"syncNames":    []string{"users"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	jobs := decode(t, rec)["jobs"].([]interface{})
	require.Len(t, jobs, 1)

	rec = f.do(t, http.MethodDelete, "/api/sync/schedule/conn-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sync/jobs/conn-1", nil)
	assert.Empty(t, decode(t, rec)["jobs"])
}

func TestActionsOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedIntegration(t)
	f.seedConnection(t, "conn-1")

	rec := f.do(t, http.MethodGet, "/api/actions/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	actions := decode(t, rec)["actions"].([]interface{})
	require.Len(t, actions, 1)

	rec = f.do(t, http.MethodPost, "/api/actions/execute/conn-1/ping", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode(t, rec)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "pong", result["data"].(map[string]interface{})["reply"])
}

func TestMalformedBodyIs400(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/flows/start", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
