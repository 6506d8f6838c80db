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

// Package secrets resolves secret references embedded in integration and
// connection configs. String values of the form "env:NAME" or
// "keychain:key" are replaced with the secret they point to; everything else
// passes through untouched.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrSecretNotFound is returned when a reference points at a secret that
// does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// Provider resolves references within one scheme.
type Provider interface {
	// Scheme returns the reference prefix this provider handles (e.g. "env").
	Scheme() string

	// Resolve retrieves the secret for the reference (without the scheme
	// prefix). Returns ErrSecretNotFound if the secret does not exist.
	Resolve(ctx context.Context, reference string) (string, error)
}

// EnvProvider resolves env:NAME references from the process environment.
type EnvProvider struct{}

// Scheme returns "env".
func (e *EnvProvider) Scheme() string { return "env" }

// Resolve retrieves the named environment variable.
func (e *EnvProvider) Resolve(ctx context.Context, reference string) (string, error) {
	value, ok := os.LookupEnv(reference)
	if !ok {
		return "", fmt.Errorf("environment variable %s: %w", reference, ErrSecretNotFound)
	}
	return value, nil
}

// KeychainProvider resolves keychain:key references from the system keychain
// (macOS Keychain, Linux Secret Service, Windows Credential Manager).
type KeychainProvider struct {
	service string
}

// NewKeychainProvider creates a keychain provider using the given service
// name for all entries.
func NewKeychainProvider(service string) *KeychainProvider {
	return &KeychainProvider{service: service}
}

// Scheme returns "keychain".
func (k *KeychainProvider) Scheme() string { return "keychain" }

// Resolve retrieves the keychain entry.
func (k *KeychainProvider) Resolve(ctx context.Context, reference string) (string, error) {
	value, err := keyring.Get(k.service, reference)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keychain entry %s: %w", reference, ErrSecretNotFound)
		}
		return "", fmt.Errorf("keychain lookup failed for %s: %w", reference, err)
	}
	return value, nil
}

// Resolver dispatches references to providers by scheme.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver over the given providers.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Scheme()] = p
	}
	return r
}

// DefaultResolver resolves env: and keychain: references, the latter under
// the "conduit" keychain service.
func DefaultResolver() *Resolver {
	return NewResolver(&EnvProvider{}, NewKeychainProvider("conduit"))
}

// Resolve resolves a single reference string. Strings without a known scheme
// prefix are returned as-is.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	scheme, rest, ok := strings.Cut(value, ":")
	if !ok {
		return value, nil
	}

	provider, known := r.providers[scheme]
	if !known {
		return value, nil
	}
	return provider.Resolve(ctx, rest)
}

// ResolveConfig walks a config map and resolves every string leaf that
// carries a known scheme prefix. Nested maps are walked recursively; the
// input is not mutated.
func (r *Resolver) ResolveConfig(ctx context.Context, config map[string]interface{}) (map[string]interface{}, error) {
	if config == nil {
		return nil, nil
	}

	out := make(map[string]interface{}, len(config))
	for key, value := range config {
		switch v := value.(type) {
		case string:
			resolved, err := r.Resolve(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve config key %q: %w", key, err)
			}
			out[key] = resolved
		case map[string]interface{}:
			nested, err := r.ResolveConfig(ctx, v)
			if err != nil {
				return nil, err
			}
			out[key] = nested
		default:
			out[key] = value
		}
	}
	return out, nil
}

// Mask replaces all but the last four characters of a secret with asterisks
// for safe logging. Short secrets are fully masked.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
