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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
)

func testRunner() *Runner {
	return NewRunner(log.New(nil))
}

func TestHTTPBlockJSONPost(t *testing.T) {
	var gotBody map[string]interface{}
	var gotContentType, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok-1", "scope": "all"})
	}))
	defer srv.Close()

	fc := connector.FlowContext{
		"creds": map[string]interface{}{"apiKey": "sk-1"},
	}
	block := &connector.Block{
		Name: "exchange",
		Kind: connector.BlockHTTP,
		HTTP: &connector.HTTPConfig{
			URL:    connector.Static(srv.URL),
			Method: http.MethodPost,
			Headers: map[string]connector.StringValue{
				"Authorization": connector.FromExpr(`"Bearer " + creds.apiKey`),
			},
			Body: connector.Value{Expr: `{"key": creds.apiKey}`},
		},
	}

	out, err := testRunner().Run(context.Background(), block, fc)
	require.NoError(t, err)

	// Body defaults to JSON and headers are evaluated against context.
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer sk-1", gotAuth)
	assert.Equal(t, map[string]interface{}{"key": "sk-1"}, gotBody)

	result := out.(map[string]interface{})
	assert.Equal(t, "tok-1", result["access_token"])
}

func TestHTTPBlockFormEncoded(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	block := &connector.Block{
		Name: "exchange",
		Kind: connector.BlockHTTP,
		HTTP: &connector.HTTPConfig{
			URL:    connector.Static(srv.URL),
			Method: http.MethodPost,
			Headers: map[string]connector.StringValue{
				"Content-Type": connector.Static("application/x-www-form-urlencoded"),
			},
			Body: connector.Value{Static: map[string]interface{}{"grant_type": "authorization_code"}},
		},
	}

	_, err := testRunner().Run(context.Background(), block, connector.FlowContext{})
	require.NoError(t, err)
	assert.Equal(t, "grant_type=authorization_code", gotBody)
}

func TestHTTPBlockResponseTransform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token": "tok-1", "noise": true}`))
	}))
	defer srv.Close()

	block := &connector.Block{
		Name: "exchange",
		Kind: connector.BlockHTTP,
		HTTP: &connector.HTTPConfig{
			URL:               connector.Static(srv.URL),
			ResponseTransform: `{apiKey: .access_token}`,
		},
	}

	out, err := testRunner().Run(context.Background(), block, connector.FlowContext{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"apiKey": "tok-1"}, out)
}

func TestHTTPBlockNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	block := &connector.Block{
		Name: "verify",
		Kind: connector.BlockHTTP,
		HTTP: &connector.HTTPConfig{URL: connector.Static(srv.URL)},
	}

	_, err := testRunner().Run(context.Background(), block, connector.FlowContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestHTTPBlockTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	block := &connector.Block{
		Name: "slow",
		Kind: connector.BlockHTTP,
		HTTP: &connector.HTTPConfig{
			URL:     connector.Static(srv.URL),
			Timeout: 20 * time.Millisecond,
		},
	}

	start := time.Now()
	_, err := testRunner().Run(context.Background(), block, connector.FlowContext{})
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDelayBlock(t *testing.T) {
	block := &connector.Block{
		Name:  "pause",
		Kind:  connector.BlockDelay,
		Delay: &connector.DelayConfig{Duration: 10 * time.Millisecond},
	}

	start := time.Now()
	out, err := testRunner().Run(context.Background(), block, connector.FlowContext{})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestLogBlock(t *testing.T) {
	block := &connector.Block{
		Name: "note",
		Kind: connector.BlockLog,
		Log:  &connector.LogConfig{Message: connector.Static("step reached")},
	}

	out, err := testRunner().Run(context.Background(), block, connector.FlowContext{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRunInteractiveBlockIsError(t *testing.T) {
	block := &connector.Block{
		Name: "creds",
		Kind: connector.BlockForm,
		Form: &connector.FormConfig{Fields: []connector.FormField{{Name: "apiKey"}}},
	}

	_, err := testRunner().Run(context.Background(), block, connector.FlowContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interactive")
}

func TestValidateFormInput(t *testing.T) {
	cfg := &connector.FormConfig{Fields: []connector.FormField{
		{Name: "apiKey", Required: true},
		{Name: "region", DefaultValue: "us-east-1"},
		{Name: "note"},
	}}

	out, err := validateFormInput(cfg, map[string]interface{}{
		"apiKey":  "sk-1",
		"ignored": "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-1", out["apiKey"])
	assert.Equal(t, "us-east-1", out["region"])
	_, hasNote := out["note"]
	assert.False(t, hasNote)
	_, hasIgnored := out["ignored"]
	assert.False(t, hasIgnored)

	_, err = validateFormInput(cfg, map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
