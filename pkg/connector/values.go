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
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// StringValue is a string that is either literal, an expr-lang expression
// over the flow context, or a Go function of the flow context. At most one
// source should be set; evaluation picks Func, then Expr, then Static.
type StringValue struct {
	Static string
	Expr   string
	Func   func(fc FlowContext) (string, error)
}

// Static wraps a literal string.
func Static(s string) StringValue {
	return StringValue{Static: s}
}

// FromExpr wraps an expr-lang expression that must evaluate to a string.
func FromExpr(source string) StringValue {
	return StringValue{Expr: source}
}

// FromFunc wraps a function of the flow context.
func FromFunc(fn func(fc FlowContext) (string, error)) StringValue {
	return StringValue{Func: fn}
}

// IsZero reports whether no source is set.
func (s StringValue) IsZero() bool {
	return s.Static == "" && s.Expr == "" && s.Func == nil
}

// Eval resolves the string against the flow context.
func (s StringValue) Eval(fc FlowContext) (string, error) {
	switch {
	case s.Func != nil:
		return s.Func(fc.Clone())
	case s.Expr != "":
		out, err := evalExpr(s.Expr, fc)
		if err != nil {
			return "", err
		}
		str, ok := out.(string)
		if !ok {
			return "", fmt.Errorf("expression %q must return string, got %T", s.Expr, out)
		}
		return str, nil
	default:
		return s.Static, nil
	}
}

// Value is an arbitrary value that is either literal, an expr-lang
// expression over the flow context, or a Go function of the flow context.
// Used for http block bodies.
type Value struct {
	Static interface{}
	Expr   string
	Func   func(fc FlowContext) (interface{}, error)
}

// IsZero reports whether no source is set.
func (v Value) IsZero() bool {
	return v.Static == nil && v.Expr == "" && v.Func == nil
}

// Eval resolves the value against the flow context.
func (v Value) Eval(fc FlowContext) (interface{}, error) {
	switch {
	case v.Func != nil:
		return v.Func(fc.Clone())
	case v.Expr != "":
		return evalExpr(v.Expr, fc)
	default:
		return v.Static, nil
	}
}

// exprCache holds compiled programs keyed by source. Connector definitions
// are static, so the cache is bounded by the catalog.
var exprCache = struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}{programs: make(map[string]*vm.Program)}

// evalExpr compiles (with caching) and runs an expr-lang expression against
// the flow context. Block outputs are addressable by block name, e.g.
// `creds.clientId` or `integration.baseUrl`.
func evalExpr(source string, fc FlowContext) (interface{}, error) {
	exprCache.mu.RLock()
	program, ok := exprCache.programs[source]
	exprCache.mu.RUnlock()

	if !ok {
		var err error
		program, err = expr.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression %q: %w", source, err)
		}
		exprCache.mu.Lock()
		exprCache.programs[source] = program
		exprCache.mu.Unlock()
	}

	out, err := expr.Run(program, map[string]interface{}(fc))
	if err != nil {
		return nil, fmt.Errorf("expression %q evaluation failed: %w", source, err)
	}
	return out, nil
}

// evalTransformExpr runs a transform block's expression, which must evaluate
// to a map.
func evalTransformExpr(source string, fc FlowContext) (map[string]interface{}, error) {
	out, err := evalExpr(source, fc)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("transform expression %q must return a map, got %T", source, out)
	}
	return m, nil
}

// EvalTransform resolves a transform config against the flow context.
func (t *TransformConfig) EvalTransform(fc FlowContext) (map[string]interface{}, error) {
	if t.Func != nil {
		return t.Func(fc.Clone())
	}
	return evalTransformExpr(t.Expr, fc)
}
