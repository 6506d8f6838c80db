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
	"fmt"
	"time"

	"github.com/tombee/conduit/pkg/schema"
)

// Builder provides fluent connector authoring. Retry and timeout metadata
// declared here is applied by the execution core, not stamped onto the
// handler, so bare handlers and authored handlers share one envelope.
//
// Example:
//
//	conn, err := connector.New("slack").
//		DisplayName("Slack").
//		Version("1.0.0").
//		ConnectionSchema(schema.Object(...)).
//		Action("post", postHandler, connector.WithMaxRetries(3)).
//		Sync("users", usersHandler, connector.WithInterval(...)).
//		Build()
type Builder struct {
	c    *Connector
	errs []error
}

// New starts building a connector with the given ID.
func New(id string) *Builder {
	return &Builder{
		c: &Connector{
			ID:      id,
			Version: "0.1.0",
			Actions: make(map[string]*Action),
			Syncs:   make(map[string]*Sync),
		},
	}
}

// DisplayName sets the human-readable name.
func (b *Builder) DisplayName(name string) *Builder {
	b.c.Name = name
	return b
}

// Version sets the connector version.
func (b *Builder) Version(v string) *Builder {
	b.c.Version = v
	return b
}

// Author sets the connector author.
func (b *Builder) Author(a string) *Builder {
	b.c.Author = a
	return b
}

// Logo sets the logo URL.
func (b *Builder) Logo(url string) *Builder {
	b.c.Logo = url
	return b
}

// DocURL sets the documentation URL.
func (b *Builder) DocURL(url string) *Builder {
	b.c.DocURL = url
	return b
}

// Description sets the connector description.
func (b *Builder) Description(d string) *Builder {
	b.c.Description = d
	return b
}

// Categories sets catalog categories.
func (b *Builder) Categories(cats ...string) *Builder {
	b.c.Categories = cats
	return b
}

// Tags sets catalog tags.
func (b *Builder) Tags(tags ...string) *Builder {
	b.c.Tags = tags
	return b
}

// IntegrationSchema sets the integration-level config descriptor.
func (b *Builder) IntegrationSchema(d schema.Descriptor) *Builder {
	b.c.IntegrationConfig = d
	return b
}

// ConnectionSchema sets the per-connection config descriptor.
func (b *Builder) ConnectionSchema(d schema.Descriptor) *Builder {
	b.c.ConnectionConfig = d
	return b
}

// RateLimit declares the connector's admission policy.
func (b *Builder) RateLimit(requests int, window time.Duration, strategy RateLimitStrategy) *Builder {
	b.c.RateLimit = &RateLimitPolicy{Requests: requests, Window: window, Strategy: strategy}
	return b
}

// Refresh sets the connection refresh handler.
func (b *Builder) Refresh(fn RefreshHandler) *Builder {
	b.c.Refresh = fn
	return b
}

// OperationOption configures an action or sync declaration.
type OperationOption func(*operationSettings)

type operationSettings struct {
	description  string
	inputSchema  schema.Descriptor
	outputSchema schema.Descriptor
	maxRetries   int
	timeout      time.Duration
}

// WithDescription sets the operation description.
func WithDescription(d string) OperationOption {
	return func(s *operationSettings) { s.description = d }
}

// WithInputSchema sets the action input descriptor.
func WithInputSchema(d schema.Descriptor) OperationOption {
	return func(s *operationSettings) { s.inputSchema = d }
}

// WithOutputSchema sets the result descriptor.
func WithOutputSchema(d schema.Descriptor) OperationOption {
	return func(s *operationSettings) { s.outputSchema = d }
}

// WithMaxRetries sets the retry budget (retries after the first attempt).
func WithMaxRetries(n int) OperationOption {
	return func(s *operationSettings) { s.maxRetries = n }
}

// WithTimeout sets the per-attempt handler budget.
func WithTimeout(d time.Duration) OperationOption {
	return func(s *operationSettings) { s.timeout = d }
}

// DefaultTimeout is the per-attempt budget used when an operation does not
// declare one.
const DefaultTimeout = 30 * time.Second

// Action declares a one-shot operation.
func (b *Builder) Action(name string, handler ActionHandler, opts ...OperationOption) *Builder {
	if _, exists := b.c.Actions[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("action %q declared twice", name))
		return b
	}
	if handler == nil {
		b.errs = append(b.errs, fmt.Errorf("action %q requires a handler", name))
		return b
	}

	s := operationSettings{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&s)
	}

	b.c.Actions[name] = &Action{
		Name:         name,
		Description:  s.description,
		InputSchema:  s.inputSchema,
		OutputSchema: s.outputSchema,
		MaxRetries:   s.maxRetries,
		Timeout:      s.timeout,
		Handler:      handler,
	}
	return b
}

// Sync declares a recurring data-pull operation.
func (b *Builder) Sync(name string, handler SyncHandler, opts ...OperationOption) *Builder {
	if _, exists := b.c.Syncs[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("sync %q declared twice", name))
		return b
	}
	if handler == nil {
		b.errs = append(b.errs, fmt.Errorf("sync %q requires a handler", name))
		return b
	}

	s := operationSettings{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&s)
	}

	b.c.Syncs[name] = &Sync{
		Name:         name,
		Description:  s.description,
		OutputSchema: s.outputSchema,
		MaxRetries:   s.maxRetries,
		Timeout:      s.timeout,
		Handler:      handler,
	}
	return b
}

// AuthFlow starts building the connector's authentication flow.
func (b *Builder) AuthFlow(name string) *FlowBuilder {
	return &FlowBuilder{
		parent: b,
		flow: &Flow{
			Name:   name,
			Blocks: make(map[string]*Block),
		},
	}
}

// Build validates and returns the connector.
func (b *Builder) Build() (*Connector, error) {
	if b.c.ID == "" {
		b.errs = append(b.errs, fmt.Errorf("connector requires an id"))
	}
	if b.c.Name == "" {
		b.c.Name = b.c.ID
	}
	if b.c.AuthenticationFlow != nil {
		if err := b.c.AuthenticationFlow.Validate(); err != nil {
			b.errs = append(b.errs, err)
		}
	}
	if b.c.RateLimit != nil {
		if b.c.RateLimit.Requests <= 0 || b.c.RateLimit.Window <= 0 {
			b.errs = append(b.errs, fmt.Errorf("rate limit requires positive requests and window"))
		}
		switch b.c.RateLimit.Strategy {
		case PerIntegration, PerConnection:
		default:
			b.errs = append(b.errs, fmt.Errorf("unknown rate limit strategy %q", b.c.RateLimit.Strategy))
		}
	}

	if len(b.errs) > 0 {
		return nil, fmt.Errorf("connector %q is invalid: %w", b.c.ID, joinErrs(b.errs))
	}
	return b.c, nil
}

func joinErrs(errs []error) error {
	err := errs[0]
	for _, e := range errs[1:] {
		err = fmt.Errorf("%w; %v", err, e)
	}
	return err
}

// FlowBuilder accumulates blocks in declaration order.
type FlowBuilder struct {
	parent *Builder
	flow   *Flow
}

func (fb *FlowBuilder) add(block *Block) *FlowBuilder {
	if _, exists := fb.flow.Blocks[block.Name]; exists {
		fb.parent.errs = append(fb.parent.errs, fmt.Errorf("flow %q declares block %q twice", fb.flow.Name, block.Name))
		return fb
	}
	fb.flow.BlockOrder = append(fb.flow.BlockOrder, block.Name)
	fb.flow.Blocks[block.Name] = block
	return fb
}

// Form adds a form block collecting the given fields.
func (fb *FlowBuilder) Form(name, label string, fields ...FormField) *FlowBuilder {
	return fb.add(&Block{
		Name:  name,
		Label: label,
		Kind:  BlockForm,
		Form:  &FormConfig{Fields: fields},
	})
}

// Confirm adds a confirmation block.
func (fb *FlowBuilder) Confirm(name, label string, title, message StringValue) *FlowBuilder {
	return fb.add(&Block{
		Name:    name,
		Label:   label,
		Kind:    BlockConfirm,
		Confirm: &ConfirmConfig{Title: title, Message: message},
	})
}

// Display adds a display block.
func (fb *FlowBuilder) Display(name, label string, title, content StringValue) *FlowBuilder {
	return fb.add(&Block{
		Name:    name,
		Label:   label,
		Kind:    BlockDisplay,
		Display: &DisplayConfig{Title: title, Content: content},
	})
}

// OAuth adds an oauth authorization block.
func (fb *FlowBuilder) OAuth(name, label string, cfg OAuthConfig) *FlowBuilder {
	return fb.add(&Block{
		Name:  name,
		Label: label,
		Kind:  BlockOAuth,
		OAuth: &cfg,
	})
}

// HTTP adds a non-interactive HTTP call block.
func (fb *FlowBuilder) HTTP(name, label string, cfg HTTPConfig) *FlowBuilder {
	return fb.add(&Block{
		Name:  name,
		Label: label,
		Kind:  BlockHTTP,
		HTTP:  &cfg,
	})
}

// Transform adds a pure transform block computed by fn.
func (fb *FlowBuilder) Transform(name, label string, fn TransformFunc) *FlowBuilder {
	return fb.add(&Block{
		Name:      name,
		Label:     label,
		Kind:      BlockTransform,
		Transform: &TransformConfig{Func: fn},
	})
}

// TransformExpr adds a transform block evaluated from an expr-lang source
// string that must return a map.
func (fb *FlowBuilder) TransformExpr(name, label, source string) *FlowBuilder {
	return fb.add(&Block{
		Name:      name,
		Label:     label,
		Kind:      BlockTransform,
		Transform: &TransformConfig{Expr: source},
	})
}

// Delay adds a fixed sleep block.
func (fb *FlowBuilder) Delay(name string, d time.Duration) *FlowBuilder {
	return fb.add(&Block{
		Name:  name,
		Label: "Delay",
		Kind:  BlockDelay,
		Delay: &DelayConfig{Duration: d},
	})
}

// Log adds a log passthrough block.
func (fb *FlowBuilder) Log(name string, message StringValue) *FlowBuilder {
	return fb.add(&Block{
		Name:  name,
		Label: "Log",
		Kind:  BlockLog,
		Log:   &LogConfig{Message: message},
	})
}

// Describe sets the label and description of the most recently added block.
func (fb *FlowBuilder) Describe(label, description string) *FlowBuilder {
	if n := len(fb.flow.BlockOrder); n > 0 {
		block := fb.flow.Blocks[fb.flow.BlockOrder[n-1]]
		block.Label = label
		block.Description = description
	}
	return fb
}

// Return sets the flow's return transform and finishes the flow.
func (fb *FlowBuilder) Return(fn ReturnTransform) *Builder {
	fb.flow.ReturnTransform = fn
	fb.parent.c.AuthenticationFlow = fb.flow
	return fb.parent
}

// Done finishes the flow without a return transform; the completed context's
// final block output becomes the connection config candidate.
func (fb *FlowBuilder) Done() *Builder {
	fb.parent.c.AuthenticationFlow = fb.flow
	return fb.parent
}
