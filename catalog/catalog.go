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

// Package catalog holds the built-in connectors shipped with conduitd.
// They are small but real: authored with the pkg/connector builder, each
// with a schema, an auth flow, actions, and a sync.
package catalog

import (
	"fmt"

	"github.com/tombee/conduit/pkg/connector"
)

// Connectors returns the built-in catalog.
func Connectors() ([]*connector.Connector, error) {
	httpbin, err := HTTPBin()
	if err != nil {
		return nil, fmt.Errorf("failed to build httpbin connector: %w", err)
	}
	relay, err := WebhookRelay()
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook-relay connector: %w", err)
	}
	return []*connector.Connector{httpbin, relay}, nil
}

// MustConnectors is Connectors for initialization paths where a build
// failure is a programming error.
func MustConnectors() []*connector.Connector {
	cs, err := Connectors()
	if err != nil {
		panic(err)
	}
	return cs
}
