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

func (r *Router) handleListConnections(w http.ResponseWriter, req *http.Request) {
	page, limit := pageParams(req)
	result, err := r.engine.Connections(req.Context(), page, limit)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (r *Router) handleGetConnection(w http.ResponseWriter, req *http.Request) {
	conn, err := r.engine.Connection(req.Context(), req.PathValue("id"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conn)
}

func (r *Router) handleCreateConnection(w http.ResponseWriter, req *http.Request) {
	conn, err := decodeConnection(req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if err := r.engine.AddConnection(req.Context(), conn); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, conn)
}

func (r *Router) handleUpdateConnection(w http.ResponseWriter, req *http.Request) {
	conn, err := decodeConnection(req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	conn.ID = req.PathValue("id")

	if err := r.engine.UpdateConnection(req.Context(), conn); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conn)
}

func (r *Router) handleDeleteConnection(w http.ResponseWriter, req *http.Request) {
	if err := r.engine.DeleteConnection(req.Context(), req.PathValue("id")); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func decodeConnection(req *http.Request) (*connector.Connection, error) {
	var conn connector.Connection
	if err := decodeJSON(req, &conn); err != nil {
		return nil, err
	}
	conn.ID = middleware.SanitizeString(conn.ID)
	conn.ExternalID = middleware.SanitizeString(conn.ExternalID)
	return &conn, nil
}
