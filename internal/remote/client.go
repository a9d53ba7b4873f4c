// Package remote is the HTTP client for the download server's job API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrBatchUnsupported is returned by CancelTasks when the server does not
// expose the batch cancel endpoint; callers fall back to per-task cancels.
var ErrBatchUnsupported = errors.New("batch cancel not supported by server")

// Client talks to the download server's job endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:7171"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: client}
}

// StartJob starts a download by kind and resource URL. Bulk artist jobs
// return one task id per album.
func (c *Client) StartJob(ctx context.Context, req StartRequest) (*StartResult, error) {
	var result StartResult
	path := fmt.Sprintf("/api/download/%s", url.PathEscape(req.Kind))
	if err := c.postJSON(ctx, path, req, &result); err != nil {
		return nil, err
	}
	if len(result.TaskIDs) == 0 {
		return nil, fmt.Errorf("start %s job: server returned no task id", req.Kind)
	}
	return &result, nil
}

// TaskStatus polls the status endpoint for one task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*StatusEnvelope, error) {
	var env StatusEnvelope
	path := fmt.Sprintf("/api/tasks/%s", url.PathEscape(taskID))
	if err := c.getJSON(ctx, path, &env); err != nil {
		return nil, err
	}
	if env.TaskID == "" {
		env.TaskID = taskID
	}
	return &env, nil
}

// ListTasks fetches the full authoritative task list.
func (c *Client) ListTasks(ctx context.Context) ([]TaskInfo, error) {
	var infos []TaskInfo
	if err := c.getJSON(ctx, "/api/tasks", &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// CancelTask cancels one task. The server acknowledges with a status of
// "cancelled" or "cancel".
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	var resp struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/api/tasks/%s/cancel", url.PathEscape(taskID))
	if err := c.postJSON(ctx, path, nil, &resp); err != nil {
		return err
	}
	if resp.Status != "cancelled" && resp.Status != "cancel" {
		return fmt.Errorf("cancel task %s: unexpected status %q", taskID, resp.Status)
	}
	return nil
}

// CancelTasks issues a single batched cancel request.
func (c *Client) CancelTasks(ctx context.Context, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	body := struct {
		TaskIDs []string `json:"task_ids"`
	}{TaskIDs: taskIDs}

	var resp struct {
		Status string `json:"status"`
	}
	err := c.postJSON(ctx, "/api/tasks/cancel", body, &resp)
	var httpErr *StatusError
	if errors.As(err, &httpErr) && (httpErr.Code == http.StatusNotFound || httpErr.Code == http.StatusMethodNotAllowed) {
		return ErrBatchUnsupported
	}
	if err != nil {
		return err
	}
	if resp.Status != "cancelled" && resp.Status != "cancel" {
		return fmt.Errorf("batch cancel: unexpected status %q", resp.Status)
	}
	return nil
}

// StatusError reports a non-2xx response from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
