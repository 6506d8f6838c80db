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
	"net/url"
	"time"

	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
	"github.com/tombee/conduit/pkg/schema"
)

// WebhookRelay builds a connector that pushes payloads to a webhook relay
// endpoint and pulls back delivery records. The auth flow collects a
// channel name and folds the integration's endpoint and secret into the
// connection config.
func WebhookRelay() (*connector.Connector, error) {
	return connector.New("webhook-relay").
		DisplayName("Webhook Relay").
		Version("1.0.0").
		Author("Conduit").
		Description("Relays payloads to a webhook endpoint and tracks deliveries.").
		Categories("messaging").
		Tags("webhook", "events").
		IntegrationSchema(schema.Object(map[string]interface{}{
			"endpoint": schema.String(),
			"secret":   schema.String(),
		}, "endpoint", "secret")).
		ConnectionSchema(schema.Object(map[string]interface{}{
			"endpoint": schema.String(),
			"secret":   schema.String(),
			"channel":  schema.String(),
		}, "endpoint", "channel")).
		RateLimit(60, time.Minute, connector.PerIntegration).
		Action("send", relaySend,
			connector.WithDescription("Deliver a payload to the relay channel."),
			connector.WithTimeout(15*time.Second),
			connector.WithMaxRetries(3),
			connector.WithInputSchema(schema.Object(map[string]interface{}{
				"payload": map[string]interface{}{"type": "object"},
			}, "payload"))).
		Sync("deliveries", relayDeliveries,
			connector.WithDescription("Pull recent delivery records for the channel."),
			connector.WithTimeout(15*time.Second),
			connector.WithMaxRetries(1)).
		AuthFlow("channel-setup").
		Form("channel", "Channel",
			connector.FormField{
				Name:     "channel",
				Label:    "Channel name",
				Type:     connector.FieldText,
				Required: true,
			}).
		TransformExpr("settings", "Relay settings",
			`{endpoint: integration.endpoint, secret: integration.secret, channel: channel.channel}`).
		Confirm("review", "Review",
			connector.Static("Connect channel?"),
			connector.FromExpr(`"Payloads will be relayed to " + integration.endpoint`)).
		Return(func(fc connector.FlowContext) (map[string]interface{}, error) {
			return fc.Block("settings"), nil
		}).
		Build()
}

func relaySend(ctx context.Context, params map[string]interface{}, conn *connector.Connection) (interface{}, error) {
	endpoint := configString(conn.Config, "endpoint", "")
	if endpoint == "" {
		return nil, &errors.ValidationError{Field: "endpoint", Message: "connection has no relay endpoint"}
	}

	body := map[string]interface{}{
		"channel": configString(conn.Config, "channel", ""),
		"payload": params["payload"],
	}
	return fetchJSON(ctx, http.MethodPost, endpoint, relayAuth(conn), body)
}

func relayDeliveries(ctx context.Context, conn *connector.Connection) (interface{}, error) {
	endpoint := configString(conn.Config, "endpoint", "")
	if endpoint == "" {
		return nil, &errors.ValidationError{Field: "endpoint", Message: "connection has no relay endpoint"}
	}

	u := endpoint + "/deliveries?channel=" + url.QueryEscape(configString(conn.Config, "channel", ""))
	return fetchJSON(ctx, http.MethodGet, u, relayAuth(conn), nil)
}

func relayAuth(conn *connector.Connection) map[string]string {
	secret := configString(conn.Config, "secret", "")
	if secret == "" {
		return nil
	}
	return map[string]string{"X-Relay-Secret": secret}
}
