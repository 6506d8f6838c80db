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

// Package flow executes authentication flows: a block runtime for the
// non-interactive kinds and a session manager that suspends at interactive
// blocks and auto-advances through the rest.
package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tombee/conduit/internal/jq"
	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
)

// defaultHTTPTimeout bounds an http block call when the block declares none.
const defaultHTTPTimeout = 30 * time.Second

// maxResponseBytes caps how much of a provider response an http block reads.
const maxResponseBytes = 10 * 1024 * 1024

// Runner executes non-interactive blocks against the accumulated context.
type Runner struct {
	client *http.Client
	jq     *jq.Executor
	logger *slog.Logger
}

// NewRunner creates a block runner.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		client: &http.Client{},
		jq:     jq.NewExecutor(0, 0),
		logger: log.WithComponent(logger, "flow"),
	}
}

// Run executes one non-interactive block and returns its output. Calling Run
// on an interactive block is a programmer error and fails loudly.
func (r *Runner) Run(ctx context.Context, block *connector.Block, fc connector.FlowContext) (interface{}, error) {
	switch block.Kind {
	case connector.BlockHTTP:
		return r.runHTTP(ctx, block.HTTP, fc)
	case connector.BlockTransform:
		return block.Transform.EvalTransform(fc)
	case connector.BlockDelay:
		return r.runDelay(ctx, block.Delay)
	case connector.BlockLog:
		return r.runLog(block.Log, fc)
	default:
		return nil, fmt.Errorf("block %q (%s) is interactive and cannot be run", block.Name, block.Kind)
	}
}

func (r *Runner) runHTTP(ctx context.Context, cfg *connector.HTTPConfig, fc connector.FlowContext) (interface{}, error) {
	rawURL, err := cfg.URL.Eval(fc)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate url: %w", err)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string, len(cfg.Headers))
	for name, value := range cfg.Headers {
		evaled, err := value.Eval(fc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate header %q: %w", name, err)
		}
		headers[name] = evaled
	}

	var body io.Reader
	if !cfg.Body.IsZero() {
		value, err := cfg.Body.Eval(fc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate body: %w", err)
		}

		contentType := headerValue(headers, "Content-Type")
		if contentType == "" {
			contentType = "application/json"
			headers["Content-Type"] = contentType
		}

		if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
			form, ok := value.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("form-urlencoded body must be a map, got %T", value)
			}
			values := url.Values{}
			for k, v := range form {
				values.Set(k, fmt.Sprintf("%v", v))
			}
			body = strings.NewReader(values.Encode())
		} else {
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to encode body: %w", err)
			}
			body = bytes.NewReader(encoded)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	r.logger.Debug("http block request", "method", method, "url", rawURL)

	resp, err := r.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, &errors.TimeoutError{Operation: "http block", Duration: timeout, Cause: err}
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errors.UpstreamError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(raw),
		}
	}

	var parsed interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("response is not valid JSON: %w", err)
		}
	}

	if cfg.ResponseTransform != "" {
		parsed, err = r.jq.Execute(ctx, cfg.ResponseTransform, parsed)
		if err != nil {
			return nil, fmt.Errorf("response transform failed: %w", err)
		}
	}
	return parsed, nil
}

func (r *Runner) runDelay(ctx context.Context, cfg *connector.DelayConfig) (interface{}, error) {
	select {
	case <-time.After(cfg.Duration):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Runner) runLog(cfg *connector.LogConfig, fc connector.FlowContext) (interface{}, error) {
	message, err := cfg.Message.Eval(fc)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate log message: %w", err)
	}
	r.logger.Info("flow log block", "message", message)
	return nil, nil
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
