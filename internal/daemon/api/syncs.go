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
	"github.com/tombee/conduit/internal/scheduler"
	"github.com/tombee/conduit/internal/store"
)

type scheduleRequest struct {
	SyncInterval int      `json:"syncInterval,omitempty"`
	SyncNames    []string `json:"syncNames,omitempty"`
}

type activateRequest struct {
	SyncInterval int `json:"syncInterval,omitempty"`
}

func (r *Router) handleListJobs(w http.ResponseWriter, req *http.Request) {
	jobs := r.engine.Jobs()
	page, limit := pageParams(req)

	start := (page - 1) * limit
	if start > len(jobs) {
		start = len(jobs)
	}
	end := start + limit
	if end > len(jobs) {
		end = len(jobs)
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"data":       jobs[start:end],
		"pagination": store.PaginationFor(page, limit, len(jobs)),
	})
}

func (r *Router) handleConnectionJobs(w http.ResponseWriter, req *http.Request) {
	connectionID := req.PathValue("connectionId")
	jobs := r.engine.JobsForConnection(connectionID)
	if jobs == nil {
		jobs = []*scheduler.Job{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"connectionId": connectionID,
		"jobs":         jobs,
	})
}

func (r *Router) handleExecuteSync(w http.ResponseWriter, req *http.Request) {
	result, err := r.engine.ExecuteSyncNow(req.Context(),
		req.PathValue("connectionId"), req.PathValue("syncName"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (r *Router) handleScheduleConnection(w http.ResponseWriter, req *http.Request) {
	var body scheduleRequest
	if err := decodeJSON(req, &body); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	connectionID := req.PathValue("connectionId")
	if err := r.engine.ScheduleConnection(req.Context(), connectionID,
		body.SyncInterval, body.SyncNames); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"connectionId": connectionID,
		"jobs":         r.engine.JobsForConnection(connectionID),
	})
}

func (r *Router) handleUnscheduleConnection(w http.ResponseWriter, req *http.Request) {
	if err := r.engine.UnscheduleConnection(req.Context(), req.PathValue("connectionId")); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "unscheduled"})
}

func (r *Router) handleConnectionSyncs(w http.ResponseWriter, req *http.Request) {
	connectionID := req.PathValue("id")
	statuses, err := r.engine.ConnectionSyncs(req.Context(), connectionID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"connectionId": connectionID,
		"syncs":        statuses,
	})
}

func (r *Router) handleActivateSync(w http.ResponseWriter, req *http.Request) {
	var body activateRequest
	if req.ContentLength != 0 {
		if err := decodeJSON(req, &body); err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
	}

	if err := r.engine.ActivateSync(req.Context(), req.PathValue("id"),
		req.PathValue("name"), body.SyncInterval); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

func (r *Router) handleDeactivateSync(w http.ResponseWriter, req *http.Request) {
	if err := r.engine.DeactivateSync(req.Context(), req.PathValue("id"),
		req.PathValue("name")); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (r *Router) handleExecuteAction(w http.ResponseWriter, req *http.Request) {
	var params map[string]interface{}
	if req.ContentLength != 0 {
		if err := decodeJSON(req, &params); err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
	}

	result, err := r.engine.ExecuteAction(req.Context(),
		req.PathValue("connectionId"), req.PathValue("actionName"),
		middleware.SanitizeMap(params))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
