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
)

// BlockKind discriminates the block variants of a flow.
type BlockKind string

const (
	// BlockForm collects field values from the user.
	BlockForm BlockKind = "form"
	// BlockConfirm asks the user to confirm with a yes/no.
	BlockConfirm BlockKind = "confirm"
	// BlockDisplay shows static or context-derived content.
	BlockDisplay BlockKind = "display"
	// BlockOAuth sends the user through an authorization redirect.
	BlockOAuth BlockKind = "oauth"
	// BlockHTTP performs an HTTP call derived from context.
	BlockHTTP BlockKind = "http"
	// BlockTransform computes a record from context.
	BlockTransform BlockKind = "transform"
	// BlockDelay sleeps for a fixed duration.
	BlockDelay BlockKind = "delay"
	// BlockLog emits a log message.
	BlockLog BlockKind = "log"
)

// FlowContext accumulates block outputs keyed by block name. It is seeded
// with "integration" (the integration config) and "integrationId" before the
// first block runs. Downstream blocks reach into it by name and are
// responsible for coercing what they pull out.
type FlowContext map[string]interface{}

// Block returns the output of a completed block as a map, or nil.
func (fc FlowContext) Block(name string) map[string]interface{} {
	m, _ := fc[name].(map[string]interface{})
	return m
}

// String returns a string value from a completed block's output.
func (fc FlowContext) String(block, key string) string {
	m := fc.Block(block)
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Bool returns a boolean value from a completed block's output.
func (fc FlowContext) Bool(block, key string) bool {
	m := fc.Block(block)
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// Integration returns the seeded integration config.
func (fc FlowContext) Integration() map[string]interface{} {
	return fc.Block("integration")
}

// Clone returns a shallow copy safe to hand to user-supplied functions.
func (fc FlowContext) Clone() FlowContext {
	out := make(FlowContext, len(fc))
	for k, v := range fc {
		out[k] = v
	}
	return out
}

// FieldType enumerates the input types a form field can render as.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	FieldURL      FieldType = "url"
	FieldPassword FieldType = "password"
	FieldTel      FieldType = "tel"
)

// FormField describes one input of a form block.
type FormField struct {
	Name         string    `json:"name"`
	Label        string    `json:"label"`
	Type         FieldType `json:"type"`
	Required     bool      `json:"required"`
	DefaultValue string    `json:"defaultValue,omitempty"`
	Placeholder  string    `json:"placeholder,omitempty"`
}

// FormConfig is the payload of a form block.
type FormConfig struct {
	Fields []FormField `json:"fields"`
}

// ConfirmConfig is the payload of a confirm block. Title and Message may be
// static or derived from context.
type ConfirmConfig struct {
	Title   StringValue `json:"-"`
	Message StringValue `json:"-"`
}

// DisplayConfig is the payload of a display block.
type DisplayConfig struct {
	Title   StringValue `json:"-"`
	Content StringValue `json:"-"`
}

// OAuthConfig is the payload of an oauth block. The authorization URL is
// built from the integration's client credentials in context plus the
// endpoint declared here; the block's output is the set of parameters
// extracted from the authorization redirect URL.
type OAuthConfig struct {
	// AuthURL is the provider's authorization endpoint
	AuthURL string `json:"authUrl"`

	// TokenURL is the provider's token endpoint, carried through for the
	// exchange step
	TokenURL string `json:"tokenUrl,omitempty"`

	// Scopes requested during authorization
	Scopes []string `json:"scopes,omitempty"`

	// ExtraParams are appended to the authorization URL verbatim
	ExtraParams map[string]string `json:"extraParams,omitempty"`
}

// HTTPConfig is the payload of an http block. URL, headers, and body are
// evaluated against the current context before the request is sent.
type HTTPConfig struct {
	URL     StringValue
	Method  string
	Headers map[string]StringValue
	Body    Value

	// Timeout bounds the call; zero means the 30s default
	Timeout time.Duration

	// ResponseTransform is an optional jq expression applied to the
	// parsed JSON response
	ResponseTransform string
}

// TransformFunc computes a record from the accumulated context.
type TransformFunc func(fc FlowContext) (map[string]interface{}, error)

// TransformConfig is the payload of a transform block. Exactly one of Func
// or Expr must be set; Expr is an expr-lang source string that must evaluate
// to a map.
type TransformConfig struct {
	Func TransformFunc
	Expr string
}

// DelayConfig is the payload of a delay block.
type DelayConfig struct {
	Duration time.Duration `json:"duration"`
}

// LogConfig is the payload of a log block.
type LogConfig struct {
	Message StringValue
}

// Block is one step within a flow: a tagged variant over the block kinds with
// a shared header. Exactly the payload field matching Kind is set.
type Block struct {
	// Name identifies the block within its flow; outputs are merged into
	// context under this name
	Name string `json:"name"`

	// Label is the human-readable step title
	Label string `json:"label"`

	// Description optionally elaborates on the step
	Description string `json:"description,omitempty"`

	// Kind discriminates the payload
	Kind BlockKind `json:"kind"`

	Form      *FormConfig      `json:"form,omitempty"`
	Confirm   *ConfirmConfig   `json:"confirm,omitempty"`
	Display   *DisplayConfig   `json:"display,omitempty"`
	OAuth     *OAuthConfig     `json:"oauth,omitempty"`
	HTTP      *HTTPConfig      `json:"-"`
	Transform *TransformConfig `json:"-"`
	Delay     *DelayConfig     `json:"delay,omitempty"`
	Log       *LogConfig       `json:"-"`
}

// RequiresInteraction reports whether the block suspends the session and
// waits for user input. Interactive blocks are rendered remotely; their run
// path must never be invoked.
func (b *Block) RequiresInteraction() bool {
	switch b.Kind {
	case BlockForm, BlockConfirm, BlockDisplay, BlockOAuth:
		return true
	default:
		return false
	}
}

// Validate checks that the block's payload matches its kind.
func (b *Block) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("block requires a name")
	}

	var ok bool
	switch b.Kind {
	case BlockForm:
		ok = b.Form != nil && len(b.Form.Fields) > 0
	case BlockConfirm:
		ok = b.Confirm != nil
	case BlockDisplay:
		ok = b.Display != nil
	case BlockOAuth:
		ok = b.OAuth != nil && b.OAuth.AuthURL != ""
	case BlockHTTP:
		ok = b.HTTP != nil && !b.HTTP.URL.IsZero()
	case BlockTransform:
		ok = b.Transform != nil && (b.Transform.Func != nil || b.Transform.Expr != "")
	case BlockDelay:
		ok = b.Delay != nil
	case BlockLog:
		ok = b.Log != nil
	default:
		return fmt.Errorf("block %q has unknown kind %q", b.Name, b.Kind)
	}

	if !ok {
		return fmt.Errorf("block %q (%s) is missing its payload", b.Name, b.Kind)
	}
	return nil
}

// ReturnTransform maps the completed flow context onto the final connection
// config. The result is validated against the connector's ConnectionConfig
// schema before it is returned to the caller.
type ReturnTransform func(fc FlowContext) (map[string]interface{}, error)

// Flow is an ordered set of blocks encoding a multi-step authentication
// interaction. The order list is authoritative; the block map alone is not.
type Flow struct {
	// Name identifies the flow
	Name string `json:"name"`

	// BlockOrder lists block names in execution order
	BlockOrder []string `json:"blockOrder"`

	// Blocks maps block names to definitions
	Blocks map[string]*Block `json:"-"`

	// ReturnTransform produces the final connection config from context
	ReturnTransform ReturnTransform `json:"-"`
}

// BlockAt returns the block at the given step index, or nil past the end.
func (f *Flow) BlockAt(index int) *Block {
	if index < 0 || index >= len(f.BlockOrder) {
		return nil
	}
	return f.Blocks[f.BlockOrder[index]]
}

// Len returns the number of blocks in the flow.
func (f *Flow) Len() int {
	return len(f.BlockOrder)
}

// Validate checks ordering consistency and every block's payload.
func (f *Flow) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("flow requires a name")
	}
	if len(f.BlockOrder) == 0 {
		return fmt.Errorf("flow %q has no blocks", f.Name)
	}

	seen := make(map[string]bool, len(f.BlockOrder))
	for _, name := range f.BlockOrder {
		if seen[name] {
			return fmt.Errorf("flow %q lists block %q twice", f.Name, name)
		}
		seen[name] = true

		block, exists := f.Blocks[name]
		if !exists {
			return fmt.Errorf("flow %q orders unknown block %q", f.Name, name)
		}
		if block.Name != name {
			return fmt.Errorf("flow %q block %q is registered under name %q", f.Name, block.Name, name)
		}
		if err := block.Validate(); err != nil {
			return err
		}
	}

	return nil
}
