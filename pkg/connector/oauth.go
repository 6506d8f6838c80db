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
	"net/url"

	"golang.org/x/oauth2"
)

// AuthorizationURL builds the provider authorization URL for an oauth block
// from the integration credentials seeded into the flow context. The
// integration config must carry clientId and redirectUri; clientSecret is
// not needed until the exchange step.
func (o *OAuthConfig) AuthorizationURL(fc FlowContext, state string) (string, error) {
	integration := fc.Integration()
	if integration == nil {
		return "", fmt.Errorf("oauth block requires integration config in context")
	}

	clientID, _ := integration["clientId"].(string)
	if clientID == "" {
		return "", fmt.Errorf("oauth block requires integration clientId")
	}
	redirectURI, _ := integration["redirectUri"].(string)

	cfg := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Scopes:      o.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  o.AuthURL,
			TokenURL: o.TokenURL,
		},
	}

	var opts []oauth2.AuthCodeOption
	for k, v := range o.ExtraParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return cfg.AuthCodeURL(state, opts...), nil
}

// ParseRedirect extracts the query parameters from an authorization redirect
// URL. This is the output an oauth block yields when the UI delivers the
// redirect back through the step endpoint.
func ParseRedirect(raw string) (map[string]interface{}, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}

	params := make(map[string]interface{})
	for key, values := range u.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params, nil
}
