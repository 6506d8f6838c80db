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

package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
)

const (
	// DefaultTTL is how long a session stays resumable after creation.
	DefaultTTL = 30 * time.Minute

	// DefaultSweepInterval is how often expired sessions are reaped.
	DefaultSweepInterval = 5 * time.Minute
)

// StepRecord is the per-step audit entry of a session.
type StepRecord struct {
	BlockName     string      `json:"blockName"`
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         string      `json:"error,omitempty"`
	ExecutionTime int64       `json:"executionTime"`
}

// Session is one in-progress execution of a flow. Step execution for a
// session is strictly serialized on its mutex; the sweeper takes the same
// mutex so a session is never reaped mid-step.
type Session struct {
	ID               string                `json:"id"`
	FlowName         string                `json:"flowName"`
	ConnectorID      string                `json:"connectorId"`
	CurrentStepIndex int                   `json:"currentStepIndex"`
	CurrentBlockName string                `json:"currentBlockName"`
	Context          connector.FlowContext `json:"context"`
	Steps            []StepRecord          `json:"steps"`
	IsComplete       bool                  `json:"isComplete"`
	Error            string                `json:"error,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`

	// finalData is the terminal value produced at completion.
	finalData interface{}

	// responded is set once a step response has been returned; after that
	// an interactive block demands userInput.
	responded bool

	mu sync.Mutex
}

// StepResponse is the uniform shape of every non-creation flow call.
type StepResponse struct {
	SessionID  string      `json:"sessionId"`
	IsComplete bool        `json:"isComplete"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	NextStep   *NextStep   `json:"nextStep,omitempty"`
}

// Manager owns flow sessions: creation, step execution, TTL reaping.
type Manager struct {
	runner *Runner
	logger *slog.Logger
	ttl    time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewManager creates a session manager and starts its TTL sweeper. A zero
// ttl selects the 30 minute default.
func NewManager(runner *Runner, logger *slog.Logger, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		runner:    runner,
		logger:    log.WithComponent(logger, "flow"),
		ttl:       ttl,
		sessions:  make(map[string]*Session),
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop(DefaultSweepInterval)
	return m
}

// CreateSession starts a session over the connector's authentication flow,
// seeding context with the initial values (integration config and id).
func (m *Manager) CreateSession(c *connector.Connector, initialContext map[string]interface{}) (*Session, error) {
	flow := c.AuthenticationFlow
	if flow == nil {
		return nil, &errors.NotFoundError{Resource: "authentication flow", ID: c.ID}
	}

	fc := make(connector.FlowContext, len(initialContext))
	for k, v := range initialContext {
		fc[k] = v
	}

	s := &Session{
		ID:               uuid.NewString(),
		FlowName:         flow.Name,
		ConnectorID:      c.ID,
		CurrentStepIndex: 0,
		CurrentBlockName: flow.BlockOrder[0],
		Context:          fc,
		Steps:            []StepRecord{},
		CreatedAt:        time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("flow session created",
		log.SessionKey, s.ID,
		log.ConnectorKey, c.ID,
		"flow", flow.Name,
	)
	return s, nil
}

// Get returns the live session, or SessionExpired if it never existed or
// has been reaped.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	s, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if !exists {
		return nil, &errors.SessionExpiredError{SessionID: sessionID}
	}
	if time.Since(s.CreatedAt) > m.ttl {
		m.remove(s)
		return nil, &errors.SessionExpiredError{SessionID: sessionID}
	}
	return s, nil
}

// Delete removes the session. Returns false if it did not exist.
func (m *Manager) Delete(sessionID string) bool {
	m.mu.RLock()
	s, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if !exists {
		return false
	}
	m.remove(s)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the TTL sweeper. Idempotent.
func (m *Manager) Close() {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
}

// ExecuteStep advances the session. For an interactive current block,
// userInput becomes the block's output; a nil userInput on the first call
// instead returns the block's render descriptor without consuming a step.
// Non-interactive blocks run and auto-advance until the next interactive
// block or completion.
func (m *Manager) ExecuteStep(ctx context.Context, sessionID string, c *connector.Connector, userInput map[string]interface{}) (*StepResponse, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the session lock; the sweeper may have won the race.
	if time.Since(s.CreatedAt) > m.ttl {
		m.removeFromMap(s.ID)
		return nil, &errors.SessionExpiredError{SessionID: sessionID}
	}

	flow := c.AuthenticationFlow

	if s.IsComplete {
		return s.terminalResponse(), nil
	}

	block := flow.BlockAt(s.CurrentStepIndex)

	if block.RequiresInteraction() {
		if userInput == nil {
			if !s.responded {
				next, err := renderBlock(block, s.Context, s.ID)
				if err != nil {
					return m.failSession(s, block, err), nil
				}
				s.responded = true
				return &StepResponse{
					SessionID: s.ID,
					Success:   true,
					NextStep:  next,
				}, nil
			}
			return nil, &errors.ValidationError{
				Field:   "input",
				Message: "block " + block.Name + " requires user input",
			}
		}

		output := userInput
		switch block.Kind {
		case connector.BlockForm:
			validated, err := validateFormInput(block.Form, userInput)
			if err != nil {
				return m.failSession(s, block, err), nil
			}
			output = validated
		case connector.BlockOAuth:
			// The UI hands back the full redirect URL; the block's output
			// is its query parameters (code, state, error).
			if raw, ok := userInput["redirectUrl"].(string); ok && raw != "" {
				params, err := connector.ParseRedirect(raw)
				if err != nil {
					return m.failSession(s, block, err), nil
				}
				output = params
			}
		}
		m.completeBlock(s, flow, block, output, 0)
	} else {
		if resp := m.runBlock(ctx, s, flow, block); resp != nil {
			return resp, nil
		}
	}

	// Auto-advance: sessions only suspend at interactive blocks or the end.
	for {
		block = flow.BlockAt(s.CurrentStepIndex)
		if block == nil {
			return m.completeSession(s, c, flow), nil
		}
		if block.RequiresInteraction() {
			next, err := renderBlock(block, s.Context, s.ID)
			if err != nil {
				return m.failSession(s, block, err), nil
			}
			s.responded = true
			return &StepResponse{
				SessionID: s.ID,
				Success:   true,
				NextStep:  next,
			}, nil
		}
		if resp := m.runBlock(ctx, s, flow, block); resp != nil {
			return resp, nil
		}
	}
}

// runBlock executes one non-interactive block. A nil return means the block
// succeeded and the session advanced; otherwise the returned response is
// terminal.
func (m *Manager) runBlock(ctx context.Context, s *Session, flow *connector.Flow, block *connector.Block) *StepResponse {
	start := time.Now()
	output, err := m.runner.Run(ctx, block, s.Context.Clone())
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		stepErr := &errors.FlowStepError{Block: block.Name, Cause: err}
		m.logger.Error("flow block failed", log.Error(err),
			log.SessionKey, s.ID, log.BlockKey, block.Name)
		return m.failSessionWith(s, block, stepErr, elapsed)
	}

	var merged map[string]interface{}
	if output != nil {
		if asMap, ok := output.(map[string]interface{}); ok {
			merged = asMap
		} else {
			merged = map[string]interface{}{"result": output}
		}
	}
	m.completeBlock(s, flow, block, merged, elapsed)
	return nil
}

// completeBlock merges a block's output into context and advances the
// session. Keys already present in context are never overwritten.
func (m *Manager) completeBlock(s *Session, flow *connector.Flow, block *connector.Block, output map[string]interface{}, elapsed int64) {
	if output != nil {
		if _, exists := s.Context[block.Name]; !exists {
			s.Context[block.Name] = output
		}
	}

	s.Steps = append(s.Steps, StepRecord{
		BlockName:     block.Name,
		Success:       true,
		Data:          output,
		ExecutionTime: elapsed,
	})

	s.CurrentStepIndex++
	if next := flow.BlockAt(s.CurrentStepIndex); next != nil {
		s.CurrentBlockName = next.Name
	} else {
		s.CurrentBlockName = ""
	}
}

// completeSession finalizes a session that advanced past its last block:
// the return transform produces the connection config candidate, which is
// validated against the connector's connection schema.
func (m *Manager) completeSession(s *Session, c *connector.Connector, flow *connector.Flow) *StepResponse {
	var data interface{}
	if flow.ReturnTransform != nil {
		out, err := flow.ReturnTransform(s.Context.Clone())
		if err != nil {
			return m.failSessionWith(s, nil, &errors.FlowStepError{Block: "return", Cause: err}, 0)
		}
		data = out
	} else if n := flow.Len(); n > 0 {
		data = s.Context.Block(flow.BlockOrder[n-1])
	}

	if c.ConnectionConfig != nil && data != nil {
		validated, err := c.ConnectionConfig.Parse(data)
		if err != nil {
			return m.failSessionWith(s, nil, &errors.FlowStepError{Block: "return", Cause: err}, 0)
		}
		data = validated
	}

	s.IsComplete = true
	s.finalData = data
	s.responded = true

	m.logger.Info("flow session completed",
		log.SessionKey, s.ID,
		log.ConnectorKey, s.ConnectorID,
	)
	return s.terminalResponse()
}

func (m *Manager) failSession(s *Session, block *connector.Block, err error) *StepResponse {
	return m.failSessionWith(s, block, err, 0)
}

// failSessionWith records the failing step and marks the session terminal.
func (m *Manager) failSessionWith(s *Session, block *connector.Block, err error, elapsed int64) *StepResponse {
	name := "return"
	if block != nil {
		name = block.Name
	}
	s.Steps = append(s.Steps, StepRecord{
		BlockName:     name,
		Success:       false,
		Error:         err.Error(),
		ExecutionTime: elapsed,
	})
	s.IsComplete = true
	s.Error = err.Error()
	s.responded = true
	return s.terminalResponse()
}

// Snapshot returns a deep copy safe to read or marshal while steps execute
// against the live session.
func (s *Session) Snapshot() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := make([]StepRecord, len(s.Steps))
	copy(steps, s.Steps)

	return &Session{
		ID:               s.ID,
		FlowName:         s.FlowName,
		ConnectorID:      s.ConnectorID,
		CurrentStepIndex: s.CurrentStepIndex,
		CurrentBlockName: s.CurrentBlockName,
		Context:          s.Context.Clone(),
		Steps:            steps,
		IsComplete:       s.IsComplete,
		Error:            s.Error,
		CreatedAt:        s.CreatedAt,
	}
}

func (s *Session) terminalResponse() *StepResponse {
	return &StepResponse{
		SessionID:  s.ID,
		IsComplete: true,
		Success:    s.Error == "",
		Data:       s.finalData,
		Error:      s.Error,
	}
}

// remove deletes a session, waiting for any in-flight step to finish.
func (m *Manager) remove(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.removeFromMap(s.ID)
}

func (m *Manager) removeFromMap(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopSweep:
			return
		}
	}
}

// sweep reaps sessions past their TTL.
func (m *Manager) sweep() {
	m.mu.RLock()
	var expired []*Session
	for _, s := range m.sessions {
		if time.Since(s.CreatedAt) > m.ttl {
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range expired {
		m.remove(s)
		m.logger.Debug("flow session expired", log.SessionKey, s.ID)
	}
}
