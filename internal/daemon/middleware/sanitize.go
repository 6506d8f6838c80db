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

package middleware

import (
	"regexp"
	"strings"
)

var eventHandlerAttr = regexp.MustCompile(`(?i)\bon\w+\s*=`)

// SanitizeString strips markup and script-injection vectors from a string:
// angle brackets, javascript: prefixes, and on*= event-handler attributes.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	for {
		trimmed := strings.TrimSpace(s)
		if lower := strings.ToLower(trimmed); strings.HasPrefix(lower, "javascript:") {
			s = trimmed[len("javascript:"):]
			continue
		}
		break
	}
	s = eventHandlerAttr.ReplaceAllString(s, "")
	return s
}

// SanitizeValue walks a decoded JSON value and sanitizes every string leaf.
// Maps and slices are mutated in place where possible.
func SanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return SanitizeString(val)
	case map[string]interface{}:
		for k, item := range val {
			val[k] = SanitizeValue(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = SanitizeValue(item)
		}
		return val
	default:
		return v
	}
}

// SanitizeMap sanitizes every string leaf of a decoded JSON object.
func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	for k, v := range m {
		m[k] = SanitizeValue(v)
	}
	return m
}
