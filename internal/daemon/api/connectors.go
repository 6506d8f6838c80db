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
	"net/http"

	"github.com/tombee/conduit/internal/daemon/httputil"
	"github.com/tombee/conduit/pkg/connector"
)

// handleListConnectors returns the sanitized catalog: identity and
// operation metadata, never schemas or handlers.
func (r *Router) handleListConnectors(w http.ResponseWriter, req *http.Request) {
	connectors := r.engine.Connectors()
	summaries := make([]connector.Summary, 0, len(connectors))
	for _, c := range connectors {
		summaries = append(summaries, c.Summarize())
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"connectors": summaries,
		"count":      len(summaries),
	})
}

func (r *Router) handleGetConnector(w http.ResponseWriter, req *http.Request) {
	c, err := r.engine.Connector(req.PathValue("id"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c.Summarize())
}

// handleListActions returns a connector's action metadata.
func (r *Router) handleListActions(w http.ResponseWriter, req *http.Request) {
	c, err := r.engine.Connector(req.PathValue("connectorId"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	summary := c.Summarize()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"connectorId": summary.ID,
		"actions":     summary.Actions,
	})
}
