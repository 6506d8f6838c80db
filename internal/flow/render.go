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
	"fmt"

	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
)

// RenderConfig carries enough data for a remote UI to draw an interactive
// block. Context-derived strings are evaluated before transmission.
type RenderConfig struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// NextStep describes the interactive block a suspended session is waiting on.
type NextStep struct {
	BlockName           string        `json:"blockName"`
	RequiresInteraction bool          `json:"requiresInteraction"`
	Label               string        `json:"label"`
	Description         string        `json:"description,omitempty"`
	RenderConfig        *RenderConfig `json:"renderConfig,omitempty"`
}

// renderBlock builds the descriptor for an interactive block. The session ID
// doubles as the OAuth state parameter so the redirect can be correlated.
func renderBlock(block *connector.Block, fc connector.FlowContext, sessionID string) (*NextStep, error) {
	step := &NextStep{
		BlockName:           block.Name,
		RequiresInteraction: true,
		Label:               block.Label,
		Description:         block.Description,
	}

	switch block.Kind {
	case connector.BlockForm:
		step.RenderConfig = &RenderConfig{
			Type:   string(connector.BlockForm),
			Config: map[string]interface{}{"fields": block.Form.Fields},
		}

	case connector.BlockConfirm:
		title, err := block.Confirm.Title.Eval(fc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate confirm title: %w", err)
		}
		message, err := block.Confirm.Message.Eval(fc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate confirm message: %w", err)
		}
		step.RenderConfig = &RenderConfig{
			Type:   string(connector.BlockConfirm),
			Config: map[string]interface{}{"title": title, "message": message},
		}

	case connector.BlockDisplay:
		title, err := block.Display.Title.Eval(fc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate display title: %w", err)
		}
		content, err := block.Display.Content.Eval(fc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate display content: %w", err)
		}
		step.RenderConfig = &RenderConfig{
			Type:   string(connector.BlockDisplay),
			Config: map[string]interface{}{"title": title, "content": content},
		}

	case connector.BlockOAuth:
		authURL, err := block.OAuth.AuthorizationURL(fc, sessionID)
		if err != nil {
			return nil, err
		}
		config := map[string]interface{}{
			"authorizationUrl": authURL,
		}
		if block.OAuth.TokenURL != "" {
			config["tokenUrl"] = block.OAuth.TokenURL
		}
		if len(block.OAuth.Scopes) > 0 {
			config["scopes"] = block.OAuth.Scopes
		}
		step.RenderConfig = &RenderConfig{
			Type:   string(connector.BlockOAuth),
			Config: config,
		}

	default:
		return nil, fmt.Errorf("block %q (%s) is not interactive", block.Name, block.Kind)
	}

	return step, nil
}

// validateFormInput checks a form submission against the block's declared
// fields: required fields must be present and non-empty, and unknown keys
// are dropped so only declared fields enter context.
func validateFormInput(cfg *connector.FormConfig, input map[string]interface{}) (map[string]interface{}, error) {
	output := make(map[string]interface{}, len(cfg.Fields))
	for _, field := range cfg.Fields {
		value, present := input[field.Name]
		if !present || value == "" {
			if field.DefaultValue != "" {
				output[field.Name] = field.DefaultValue
				continue
			}
			if field.Required {
				return nil, &errors.ValidationError{
					Field:   field.Name,
					Message: fmt.Sprintf("required field %q is missing", field.Name),
				}
			}
			continue
		}
		output[field.Name] = value
	}
	return output, nil
}
