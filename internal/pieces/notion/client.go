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

// Package notion implements the Notion piece: declarative actions and
// polling triggers over the Notion REST API.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/pieceflow/pieceflow/pkg/httpclient"
)

const (
	// DefaultBaseURL is the Notion REST API endpoint.
	DefaultBaseURL = "https://api.notion.com/v1"

	// notionVersion pins the API version for stable payload shapes.
	notionVersion = "2022-02-22"

	// Notion allows an average of three requests per second per
	// integration.
	requestsPerSecond = 3
)

// Client is a thin Notion REST API client. It authenticates with a Bearer
// token (OAuth2 access token or integration secret), pins the API version,
// and rate limits requests to Notion's documented budget.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  oauth2.TokenSource
	limiter *rate.Limiter
	tracer  trace.Tracer
}

// NewClient creates a client that authenticates with the given token
// source. Use oauth2.StaticTokenSource for integration secrets.
func NewClient(tokens oauth2.TokenSource) (*Client, error) {
	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "pieceflow-notion/1.0"

	httpClient, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: DefaultBaseURL,
		http:    httpClient,
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		tracer:  otel.Tracer("pieceflow/notion"),
	}, nil
}

// NewClientWithToken creates a client for a static integration secret or
// pre-obtained OAuth2 access token.
func NewClientWithToken(token string) (*Client, error) {
	return NewClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// do executes one API call, decoding the JSON response into out when out
// is non-nil. Notion error payloads are translated by translateError.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "notion.api",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("notion.path", path),
		))
	defer span.End()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Notion-Version", notionVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return translateError(resp.StatusCode, resp.Header.Get("X-Request-Id"), data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// objectList is the common shape of Notion list responses.
type objectList struct {
	Results    []json.RawMessage `json:"results"`
	NextCursor string            `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

// SearchDatabases returns one page of databases matching the query.
func (c *Client) SearchDatabases(ctx context.Context, query, startCursor string) ([]Database, string, bool, error) {
	body := map[string]interface{}{
		"filter": map[string]string{"property": "object", "value": "database"},
	}
	if query != "" {
		body["query"] = query
	}
	if startCursor != "" {
		body["start_cursor"] = startCursor
	}

	var list objectList
	if err := c.do(ctx, http.MethodPost, "/search", body, &list); err != nil {
		return nil, "", false, err
	}

	databases := make([]Database, 0, len(list.Results))
	for _, raw := range list.Results {
		var db Database
		if err := json.Unmarshal(raw, &db); err != nil {
			return nil, "", false, fmt.Errorf("decoding database: %w", err)
		}
		databases = append(databases, db)
	}
	return databases, list.NextCursor, list.HasMore, nil
}

// RetrieveDatabase fetches a database definition including its property
// schema.
func (c *Client) RetrieveDatabase(ctx context.Context, databaseID string) (*Database, error) {
	var db Database
	if err := c.do(ctx, http.MethodGet, "/databases/"+databaseID, nil, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

// QueryDatabase returns one page of database rows matching the query.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, query map[string]interface{}) ([]map[string]interface{}, string, bool, error) {
	var list objectList
	if err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", query, &list); err != nil {
		return nil, "", false, err
	}

	rows := make([]map[string]interface{}, 0, len(list.Results))
	for _, raw := range list.Results {
		var row map[string]interface{}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, "", false, fmt.Errorf("decoding row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, list.NextCursor, list.HasMore, nil
}

// CreatePage creates a page under a database or page parent.
func (c *Client) CreatePage(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	var page map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/pages", body, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// UpdatePage patches a page's properties.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties map[string]interface{}) (map[string]interface{}, error) {
	var page map[string]interface{}
	body := map[string]interface{}{"properties": properties}
	if err := c.do(ctx, http.MethodPatch, "/pages/"+pageID, body, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// AppendBlockChildren appends content blocks to a page or block.
func (c *Client) AppendBlockChildren(ctx context.Context, blockID string, children []map[string]interface{}) (map[string]interface{}, error) {
	var result map[string]interface{}
	body := map[string]interface{}{"children": children}
	if err := c.do(ctx, http.MethodPatch, "/blocks/"+blockID+"/children", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListBlockChildren returns one page of a block's children.
func (c *Client) ListBlockChildren(ctx context.Context, blockID, startCursor string) ([]map[string]interface{}, string, bool, error) {
	path := "/blocks/" + blockID + "/children?page_size=100"
	if startCursor != "" {
		path += "&start_cursor=" + url.QueryEscape(startCursor)
	}

	var list objectList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, "", false, err
	}

	blocks := make([]map[string]interface{}, 0, len(list.Results))
	for _, raw := range list.Results {
		var block map[string]interface{}
		if err := json.Unmarshal(raw, &block); err != nil {
			return nil, "", false, fmt.Errorf("decoding block: %w", err)
		}
		blocks = append(blocks, block)
	}
	return blocks, list.NextCursor, list.HasMore, nil
}

// CreateComment adds a comment to a page.
func (c *Client) CreateComment(ctx context.Context, pageID, text string) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"parent":    map[string]string{"page_id": pageID},
		"rich_text": []map[string]interface{}{{"text": map[string]string{"content": text}}},
	}

	var comment map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/comments", body, &comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments returns one page of comments on a page or block.
func (c *Client) ListComments(ctx context.Context, blockID, startCursor string) ([]map[string]interface{}, string, bool, error) {
	path := "/comments?block_id=" + url.QueryEscape(blockID) + "&page_size=100"
	if startCursor != "" {
		path += "&start_cursor=" + url.QueryEscape(startCursor)
	}

	var list objectList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, "", false, err
	}

	comments := make([]map[string]interface{}, 0, len(list.Results))
	for _, raw := range list.Results {
		var comment map[string]interface{}
		if err := json.Unmarshal(raw, &comment); err != nil {
			return nil, "", false, fmt.Errorf("decoding comment: %w", err)
		}
		comments = append(comments, comment)
	}
	return comments, list.NextCursor, list.HasMore, nil
}

// ListUsers returns one page of workspace users.
func (c *Client) ListUsers(ctx context.Context, startCursor string) ([]User, string, bool, error) {
	path := "/users?page_size=100"
	if startCursor != "" {
		path += "&start_cursor=" + url.QueryEscape(startCursor)
	}

	var list objectList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, "", false, err
	}

	users := make([]User, 0, len(list.Results))
	for _, raw := range list.Results {
		var u User
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, "", false, fmt.Errorf("decoding user: %w", err)
		}
		users = append(users, u)
	}
	return users, list.NextCursor, list.HasMore, nil
}
