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

package catalog

import (
	"context"
	"net/http"
	"time"

	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/schema"
)

const httpbinDefaultBaseURL = "https://httpbin.org"

// HTTPBin builds a connector against httpbin.org, useful for demos and
// end-to-end testing. The auth flow collects a token, verifies it against
// the /bearer endpoint, and stores it in the connection config.
func HTTPBin() (*connector.Connector, error) {
	return connector.New("httpbin").
		DisplayName("HTTPBin").
		Version("1.0.0").
		Author("Conduit").
		DocURL("https://httpbin.org").
		Description("Exercises the httpbin.org request inspection service.").
		Categories("developer-tools").
		Tags("http", "testing").
		IntegrationSchema(schema.Object(map[string]interface{}{
			"baseUrl": schema.String(),
		}, "baseUrl")).
		ConnectionSchema(schema.Object(map[string]interface{}{
			"apiKey":  schema.String(),
			"baseUrl": schema.String(),
		}, "apiKey")).
		RateLimit(30, time.Minute, connector.PerConnection).
		Action("get", httpbinGet,
			connector.WithDescription("GET an httpbin path and return the echoed request."),
			connector.WithTimeout(10*time.Second),
			connector.WithMaxRetries(2)).
		Action("post", httpbinPost,
			connector.WithDescription("POST the params to /anything and return the echo."),
			connector.WithTimeout(10*time.Second)).
		Sync("headers", httpbinHeaders,
			connector.WithDescription("Pull the request headers httpbin observes."),
			connector.WithTimeout(10*time.Second),
			connector.WithMaxRetries(1)).
		AuthFlow("token").
		Form("credentials", "API Token",
			connector.FormField{
				Name:        "apiKey",
				Label:       "Bearer token",
				Type:        connector.FieldPassword,
				Required:    true,
				Placeholder: "any non-empty token works against httpbin",
			}).
		HTTP("verify", "Verify token", connector.HTTPConfig{
			URL:    connector.FromExpr(`integration.baseUrl + "/bearer"`),
			Method: http.MethodGet,
			Headers: map[string]connector.StringValue{
				"Authorization": connector.FromExpr(`"Bearer " + credentials.apiKey`),
			},
			ResponseTransform: `{authenticated: .authenticated}`,
		}).
		Display("done", "Connected",
			connector.Static("Connected"),
			connector.FromExpr(`"Token accepted by " + integration.baseUrl`)).
		Return(func(fc connector.FlowContext) (map[string]interface{}, error) {
			creds := fc.Block("credentials")
			return map[string]interface{}{
				"apiKey":  creds["apiKey"],
				"baseUrl": fc.Block("integration")["baseUrl"],
			}, nil
		}).
		Build()
}

func httpbinGet(ctx context.Context, params map[string]interface{}, conn *connector.Connection) (interface{}, error) {
	base := configString(conn.Config, "baseUrl", httpbinDefaultBaseURL)
	path := "/get"
	if p, ok := params["path"].(string); ok && p != "" {
		path = p
	}
	return fetchJSON(ctx, http.MethodGet, base+path, httpbinAuth(conn), nil)
}

func httpbinPost(ctx context.Context, params map[string]interface{}, conn *connector.Connection) (interface{}, error) {
	base := configString(conn.Config, "baseUrl", httpbinDefaultBaseURL)
	return fetchJSON(ctx, http.MethodPost, base+"/anything", httpbinAuth(conn), params)
}

func httpbinHeaders(ctx context.Context, conn *connector.Connection) (interface{}, error) {
	base := configString(conn.Config, "baseUrl", httpbinDefaultBaseURL)
	return fetchJSON(ctx, http.MethodGet, base+"/headers", httpbinAuth(conn), nil)
}

func httpbinAuth(conn *connector.Connection) map[string]string {
	token := configString(conn.Config, "apiKey", "")
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}
