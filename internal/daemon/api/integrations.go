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
	"github.com/tombee/conduit/internal/daemon/middleware"
	"github.com/tombee/conduit/pkg/connector"
)

func (r *Router) handleListIntegrations(w http.ResponseWriter, req *http.Request) {
	integrations := r.engine.Integrations()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"integrations": integrations,
		"count":        len(integrations),
	})
}

func (r *Router) handleGetIntegration(w http.ResponseWriter, req *http.Request) {
	integration, err := r.engine.Integration(req.PathValue("id"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, integration)
}

func (r *Router) handleCreateIntegration(w http.ResponseWriter, req *http.Request) {
	var integration connector.Integration
	if err := decodeJSON(req, &integration); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	integration.ID = middleware.SanitizeString(integration.ID)
	integration.Name = middleware.SanitizeString(integration.Name)

	if err := r.engine.AddIntegration(req.Context(), &integration); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, integration)
}

func (r *Router) handleDeleteIntegration(w http.ResponseWriter, req *http.Request) {
	if err := r.engine.RemoveIntegration(req.Context(), req.PathValue("id")); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
