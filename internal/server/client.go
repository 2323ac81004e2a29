/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gochatpresenter/internal/playback"
)

// Client drives a running server through the control API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a client. baseURL may include a trailing slash; it will
// be normalized.
func NewClient(baseURL string, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server %s %s: %s: %s", method, u.Path, resp.Status, e.Error)
		}
		return nil, fmt.Errorf("server %s %s: %s", method, u.Path, resp.Status)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, dest any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// State fetches the presenter state.
func (c *Client) State(ctx context.Context) (StateResponse, error) {
	var st StateResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/state", nil, &st)
	return st, err
}

// Command posts one of the argument-free control actions: begin, next,
// skip, back, reset or presenter.
func (c *Client) Command(ctx context.Context, action string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/api/"+url.PathEscape(action), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Choose picks the pending button at the 1-based position.
func (c *Client) Choose(ctx context.Context, position int) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/choose/%d", position), nil, nil)
}

// AddBookmark bookmarks the current step.
func (c *Client) AddBookmark(ctx context.Context, label string) (playback.Bookmark, error) {
	body, _ := json.Marshal(map[string]string{"label": label})
	var b playback.Bookmark
	err := c.doJSON(ctx, http.MethodPost, "/api/bookmarks", body, &b)
	return b, err
}

// GoToBookmark jumps to bookmark index.
func (c *Client) GoToBookmark(ctx context.Context, index int) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/bookmarks/%d/goto", index), nil, nil)
}

// Export streams an export in format to w.
func (c *Client) Export(ctx context.Context, format string, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/export/"+url.PathEscape(format), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// ImportState uploads a state export.
func (c *Client) ImportState(ctx context.Context, data []byte) error {
	return c.doJSON(ctx, http.MethodPost, "/api/state/import", data, nil)
}
