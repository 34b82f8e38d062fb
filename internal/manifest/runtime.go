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

package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
	"github.com/pieceflow/pieceflow/pkg/piece/polling"
)

// buildAction wires one action definition to an HTTP-backed run function.
func (l *Loader) buildAction(m *Manifest, name string, def ActionDef) (*piece.Action, error) {
	props, err := l.buildProps(m, def.Props)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", name, err)
	}

	rules, err := compileRules(def.Props)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", name, err)
	}

	displayName := def.DisplayName
	if displayName == "" {
		displayName = name
	}

	return &piece.Action{
		Name:        name,
		DisplayName: displayName,
		Description: def.Description,
		Props:       props,
		Run: func(ctx context.Context, rc piece.RunContext) (interface{}, error) {
			if err := runRules(rules, rc.Props); err != nil {
				return nil, err
			}

			body, err := l.doRequest(ctx, m, def.Request, rc.Auth, rc.Props)
			if err != nil {
				return nil, err
			}
			return l.executor.Execute(ctx, def.Transform, body)
		},
	}, nil
}

// buildTrigger wires one trigger definition to an HTTP-backed poll fetch.
func (l *Loader) buildTrigger(m *Manifest, name string, def TriggerDef) (*piece.Trigger, error) {
	props, err := l.buildProps(m, def.Props)
	if err != nil {
		return nil, fmt.Errorf("trigger %q: %w", name, err)
	}

	displayName := def.DisplayName
	if displayName == "" {
		displayName = name
	}

	return &piece.Trigger{
		Name:        name,
		DisplayName: displayName,
		Description: def.Description,
		Type:        piece.TriggerPolling,
		Props:       props,
		Polling: &piece.PollingDescriptor{
			Strategy: polling.Strategy(def.Strategy),
			Items: func(ctx context.Context, req piece.PollRequest) ([]polling.Item, error) {
				sinceMillis, err := cursorMillis(polling.Strategy(def.Strategy), req.LastCursor)
				if err != nil {
					return nil, err
				}

				body, err := l.doRequest(ctx, m, def.Request, req.Auth, cursorProps(req, sinceMillis))
				if err != nil {
					return nil, err
				}

				extracted, err := l.executor.Execute(ctx, def.Items, body)
				if err != nil {
					return nil, fmt.Errorf("extracting items: %w", err)
				}

				raw, ok := extracted.([]interface{})
				if !ok {
					return nil, fmt.Errorf("items expression returned %T, want array", extracted)
				}

				items := make([]polling.Item, 0, len(raw))
				for i, entry := range raw {
					item, err := itemFromEntry(entry, def.IDField, def.TimestampField)
					if err != nil {
						return nil, fmt.Errorf("item %d: %w", i, err)
					}
					if sinceMillis > 0 && item.Timestamp.UnixMilli() <= sinceMillis {
						continue
					}
					items = append(items, item)
				}
				return items, nil
			},
		},
	}, nil
}

// cursorMillis extracts the timestamp watermark from a persisted cursor.
// Zero means first run.
func cursorMillis(strategy polling.Strategy, cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	switch strategy {
	case polling.StrategyLastItem:
		c, err := polling.ParseLastItemCursor(cursor)
		if err != nil {
			return 0, err
		}
		return c.TimestampMillis, nil
	case polling.StrategyTimeBased:
		millis, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing cursor %q: %w", cursor, err)
		}
		return millis, nil
	default:
		return 0, fmt.Errorf("unknown polling strategy %q", strategy)
	}
}

// cursorPropNames are reserved placeholder names a trigger request can use
// to filter server-side. They never reach body_from_props payloads.
var cursorPropNames = map[string]bool{
	"cursor":        true,
	"cursor_millis": true,
	"cursor_iso":    true,
}

// cursorProps extends the trigger props with cursor placeholders so a
// manifest request can filter server-side: {cursor} is the raw persisted
// cursor, {cursor_millis} the epoch-millis watermark and {cursor_iso} the
// watermark as RFC 3339. On first run {cursor} and {cursor_iso} expand to
// empty and the fetch returns the full current window.
func cursorProps(req piece.PollRequest, sinceMillis int64) map[string]interface{} {
	props := make(map[string]interface{}, len(req.Props)+3)
	for k, v := range req.Props {
		props[k] = v
	}

	props["cursor"] = req.LastCursor
	props["cursor_millis"] = sinceMillis
	if sinceMillis > 0 {
		props["cursor_iso"] = time.UnixMilli(sinceMillis).UTC().Format(time.RFC3339)
	} else {
		props["cursor_iso"] = ""
	}
	return props
}

// optionsFetcher builds the dynamic dropdown fetch for a property with an
// options request.
func (l *Loader) optionsFetcher(m *Manifest, def PropDef) piece.OptionsFunc {
	return func(ctx context.Context, auth string, refresherValues map[string]interface{}) (*piece.DropdownState, error) {
		body, err := l.doRequest(ctx, m, *def.OptionsRequest, auth, refresherValues)
		if err != nil {
			return nil, err
		}

		transformed, err := l.executor.Execute(ctx, def.OptionsTransform, body)
		if err != nil {
			return nil, fmt.Errorf("transforming options: %w", err)
		}

		raw, ok := transformed.([]interface{})
		if !ok {
			return nil, fmt.Errorf("options transform returned %T, want array", transformed)
		}

		options := make([]piece.Option, 0, len(raw))
		for _, entry := range raw {
			obj, ok := entry.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("option entry is %T, want object with label and value", entry)
			}
			label, _ := obj["label"].(string)
			options = append(options, piece.Option{Label: label, Value: obj["value"]})
		}

		if len(options) == 0 {
			return piece.DisabledDropdown("No options available."), nil
		}
		return &piece.DropdownState{Options: options}, nil
	}
}

// itemFromEntry converts one extracted entry into a poll item.
func itemFromEntry(entry interface{}, idField, timestampField string) (polling.Item, error) {
	obj, ok := entry.(map[string]interface{})
	if !ok {
		return polling.Item{}, fmt.Errorf("entry is %T, want object", entry)
	}

	id := fmt.Sprintf("%v", obj[idField])
	if id == "" || id == "<nil>" {
		return polling.Item{}, fmt.Errorf("missing id field %q", idField)
	}

	rawTS, _ := obj[timestampField].(string)
	ts, err := time.Parse(time.RFC3339, rawTS)
	if err != nil {
		return polling.Item{}, fmt.Errorf("parsing timestamp field %q: %w", timestampField, err)
	}

	return polling.Item{ID: id, Timestamp: ts, Data: obj}, nil
}

// doRequest executes one declared request against the manifest's API.
func (l *Loader) doRequest(ctx context.Context, m *Manifest, def RequestDef, auth string, props map[string]interface{}) (interface{}, error) {
	path, err := expandPath(def.Path, props)
	if err != nil {
		return nil, err
	}

	reqURL := strings.TrimSuffix(m.BaseURL, "/") + path
	if len(def.Query) > 0 {
		query := url.Values{}
		for key, tmpl := range def.Query {
			query.Set(key, expandString(tmpl, auth, props))
		}
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	hasBody := false
	if def.BodyFromProps {
		payload := make(map[string]interface{}, len(props))
		for key, value := range props {
			if value != nil && !cursorPropNames[key] {
				payload[key] = value
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		reqBody = bytes.NewReader(data)
		hasBody = true
	} else if len(def.Body) > 0 {
		data, err := json.Marshal(expandBody(def.Body, auth, props))
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		reqBody = bytes.NewReader(data)
		hasBody = true
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(def.Method), reqURL, reqBody)
	if err != nil {
		return nil, err
	}

	for key, tmpl := range m.Headers {
		req.Header.Set(key, expandString(tmpl, auth, props))
	}
	if hasBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &errors.ServiceError{
			Service:    m.Name,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
		}
	}

	if len(data) == 0 {
		return nil, nil
	}

	var body interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return body, nil
}

// expandPath substitutes {name} path segments with escaped property
// values. An unresolved placeholder is an error: the request would hit
// the wrong endpoint.
func expandPath(tmpl string, props map[string]interface{}) (string, error) {
	result := tmpl
	for {
		start := strings.Index(result, "{")
		if start < 0 {
			return result, nil
		}
		end := strings.Index(result[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("unbalanced placeholder in path %q", tmpl)
		}
		end += start

		name := result[start+1 : end]
		value, ok := props[name]
		if !ok || value == nil {
			return "", &errors.ValidationError{Field: name, Message: "required by request path but not set"}
		}
		result = result[:start] + url.PathEscape(fmt.Sprintf("%v", value)) + result[end+1:]
	}
}

// expandString substitutes {auth} and {name} placeholders in headers and
// query values. Unresolved placeholders expand to empty.
func expandString(tmpl, auth string, props map[string]interface{}) string {
	result := strings.ReplaceAll(tmpl, "{auth}", auth)
	for key, value := range props {
		if value == nil {
			continue
		}
		result = strings.ReplaceAll(result, "{"+key+"}", fmt.Sprintf("%v", value))
	}
	return result
}

// expandBody substitutes string placeholders throughout a body template.
func expandBody(body map[string]interface{}, auth string, props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(body))
	for key, value := range body {
		out[key] = expandValue(value, auth, props)
	}
	return out
}

func expandValue(value interface{}, auth string, props map[string]interface{}) interface{} {
	switch v := value.(type) {
	case string:
		// A bare "{name}" placeholder passes the property through with
		// its original type.
		if strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}") && strings.Count(v, "{") == 1 {
			name := v[1 : len(v)-1]
			if name == "auth" {
				return auth
			}
			if prop, ok := props[name]; ok {
				return prop
			}
		}
		return expandString(v, auth, props)
	case map[string]interface{}:
		return expandBody(v, auth, props)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = expandValue(item, auth, props)
		}
		return out
	default:
		return v
	}
}

// compiledRule pairs a property with its compiled validate expression.
type compiledRule struct {
	prop    string
	source  string
	program *vm.Program
}

// compileRules compiles the validate expressions of a property list.
func compileRules(defs []PropDef) ([]compiledRule, error) {
	var rules []compiledRule
	for _, def := range defs {
		if def.Validate == "" {
			continue
		}
		program, err := expr.Compile(def.Validate, expr.Env(validateEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", def.Name, err)
		}
		rules = append(rules, compiledRule{prop: def.Name, source: def.Validate, program: program})
	}
	return rules, nil
}

// runRules evaluates validate expressions against the resolved inputs.
// Rules only run for set values; required-ness is a separate concern.
func runRules(rules []compiledRule, props map[string]interface{}) error {
	for _, rule := range rules {
		value, ok := props[rule.prop]
		if !ok || value == nil {
			continue
		}

		result, err := expr.Run(rule.program, validateEnv{Value: value, Props: props})
		if err != nil {
			return &errors.ValidationError{
				Field:   rule.prop,
				Message: fmt.Sprintf("validation rule failed: %v", err),
			}
		}
		if passed, _ := result.(bool); !passed {
			return &errors.ValidationError{
				Field:   rule.prop,
				Message: fmt.Sprintf("value rejected by rule %q", rule.source),
			}
		}
	}
	return nil
}
