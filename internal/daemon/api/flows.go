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
)

type startFlowRequest struct {
	IntegrationID string `json:"integrationId"`
}

type flowStepRequest struct {
	Input map[string]interface{} `json:"input"`
}

func (r *Router) handleStartFlow(w http.ResponseWriter, req *http.Request) {
	var body startFlowRequest
	if err := decodeJSON(req, &body); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	resp, err := r.engine.StartFlow(req.Context(), middleware.SanitizeString(body.IntegrationID))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (r *Router) handleFlowStep(w http.ResponseWriter, req *http.Request) {
	var body flowStepRequest
	if err := decodeJSON(req, &body); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	resp, err := r.engine.ExecuteFlowStep(req.Context(), req.PathValue("sessionId"),
		middleware.SanitizeMap(body.Input))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (r *Router) handleGetFlowSession(w http.ResponseWriter, req *http.Request) {
	session, err := r.engine.FlowSession(req.PathValue("sessionId"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (r *Router) handleDeleteFlowSession(w http.ResponseWriter, req *http.Request) {
	if err := r.engine.DeleteFlowSession(req.PathValue("sessionId")); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
