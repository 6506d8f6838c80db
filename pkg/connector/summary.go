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

import "sort"

// OperationSummary is the wire-safe description of an action or sync.
// Schemas and handler bodies are stripped.
type OperationSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MaxRetries  int    `json:"maxRetries"`
	TimeoutMS   int64  `json:"timeoutMs"`
}

// RateLimitSummary is the wire representation of a rate-limit policy.
type RateLimitSummary struct {
	Requests int               `json:"requests"`
	WindowMS int64             `json:"windowMs"`
	Strategy RateLimitStrategy `json:"strategy"`
}

// Summary is the sanitized connector listing returned by the catalog API:
// identity and metadata only, no schemas, no handlers.
type Summary struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Version     string             `json:"version"`
	Author      string             `json:"author,omitempty"`
	Logo        string             `json:"logo,omitempty"`
	DocURL      string             `json:"docUrl,omitempty"`
	Description string             `json:"description,omitempty"`
	Categories  []string           `json:"categories,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	HasAuthFlow bool               `json:"hasAuthFlow"`
	RateLimit   *RateLimitSummary  `json:"rateLimit,omitempty"`
	Actions     []OperationSummary `json:"actions"`
	Syncs       []OperationSummary `json:"syncs"`
}

// Summarize produces the sanitized listing for the connector.
func (c *Connector) Summarize() Summary {
	s := Summary{
		ID:          c.ID,
		Name:        c.Name,
		Version:     c.Version,
		Author:      c.Author,
		Logo:        c.Logo,
		DocURL:      c.DocURL,
		Description: c.Description,
		Categories:  c.Categories,
		Tags:        c.Tags,
		HasAuthFlow: c.AuthenticationFlow != nil,
		Actions:     make([]OperationSummary, 0, len(c.Actions)),
		Syncs:       make([]OperationSummary, 0, len(c.Syncs)),
	}

	if c.RateLimit != nil {
		s.RateLimit = &RateLimitSummary{
			Requests: c.RateLimit.Requests,
			WindowMS: c.RateLimit.Window.Milliseconds(),
			Strategy: c.RateLimit.Strategy,
		}
	}

	for _, a := range c.Actions {
		s.Actions = append(s.Actions, OperationSummary{
			Name:        a.Name,
			Description: a.Description,
			MaxRetries:  a.MaxRetries,
			TimeoutMS:   a.Timeout.Milliseconds(),
		})
	}
	for _, sy := range c.Syncs {
		s.Syncs = append(s.Syncs, OperationSummary{
			Name:        sy.Name,
			Description: sy.Description,
			MaxRetries:  sy.MaxRetries,
			TimeoutMS:   sy.Timeout.Milliseconds(),
		})
	}

	// Map iteration order is random; keep listings stable.
	sort.Slice(s.Actions, func(i, j int) bool { return s.Actions[i].Name < s.Actions[j].Name })
	sort.Slice(s.Syncs, func(i, j int) bool { return s.Syncs[i].Name < s.Syncs[j].Name })

	return s
}
