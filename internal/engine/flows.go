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

package engine

import (
	"context"

	"github.com/tombee/conduit/internal/flow"
	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/pkg/errors"
)

// StartFlow begins the authentication flow for an integration's connector.
// The session context is seeded with the integration's (already resolved)
// config and its ID, and the first step response is returned immediately:
// either the first interactive block's render descriptor, or the terminal
// result if the whole flow is non-interactive.
func (e *Engine) StartFlow(ctx context.Context, integrationID string) (*flow.StepResponse, error) {
	integration, ok := e.registry.Integration(integrationID)
	if !ok {
		return nil, &errors.NotFoundError{Resource: "integration", ID: integrationID}
	}
	c, ok := e.registry.Connector(integration.ConnectorID)
	if !ok {
		return nil, &errors.NotFoundError{Resource: "connector", ID: integration.ConnectorID}
	}

	session, err := e.flows.CreateSession(c, map[string]interface{}{
		"integration":   integration.Config,
		"integrationId": integration.ID,
	})
	if err != nil {
		return nil, err
	}

	resp, err := e.flows.ExecuteStep(ctx, session.ID, c, nil)
	if err != nil {
		e.flows.Delete(session.ID)
		return nil, err
	}
	return resp, nil
}

// ExecuteFlowStep advances a session with the given user input.
func (e *Engine) ExecuteFlowStep(ctx context.Context, sessionID string, input map[string]interface{}) (*flow.StepResponse, error) {
	session, err := e.flows.Get(sessionID)
	if err != nil {
		return nil, err
	}
	c, ok := e.registry.Connector(session.ConnectorID)
	if !ok {
		return nil, &errors.NotFoundError{Resource: "connector", ID: session.ConnectorID}
	}
	return e.flows.ExecuteStep(ctx, sessionID, c, input)
}

// FlowSession returns a snapshot of the session, safe to marshal while a
// concurrent step executes.
func (e *Engine) FlowSession(sessionID string) (*flow.Session, error) {
	s, err := e.flows.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// DeleteFlowSession discards a session.
func (e *Engine) DeleteFlowSession(sessionID string) error {
	if !e.flows.Delete(sessionID) {
		return &errors.SessionExpiredError{SessionID: sessionID}
	}
	e.logger.Debug("flow session deleted", log.SessionKey, sessionID)
	return nil
}
