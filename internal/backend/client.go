package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/numera-app/numera/internal/task"
)

var (
	// ErrRemote wraps a failure the backend reported in its response
	// envelope, as opposed to a transport-level failure.
	ErrRemote = errors.New("backend error")

	// ErrTaskNotFound means the polled task id is unknown to the backend.
	ErrTaskNotFound = errors.New("task not found on backend")
)

// Client talks to the portfolio backend's REST API. One Client is shared by
// the whole process; it holds no per-call state.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// StartTask invokes one task-starting backend endpoint and returns the
// assigned task id. The call is made exactly once; retry policy, if any,
// belongs to the caller.
func (c *Client) StartTask(ctx context.Context, method, path string, payload any) (task.ID, error) {
	raw, err := c.call(ctx, method, path, payload)
	if err != nil {
		return 0, err
	}
	var out startResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode task id: %w", err)
	}
	if !out.TaskID.Valid() {
		return 0, fmt.Errorf("%w: start call returned task id %d", ErrRemote, out.TaskID)
	}
	return out.TaskID, nil
}

// QueryTasks returns the ids of all currently pending and completed tasks.
func (c *Client) QueryTasks(ctx context.Context) (TaskList, error) {
	raw, err := c.call(ctx, http.MethodGet, "/tasks", nil)
	if err != nil {
		return TaskList{}, err
	}
	var out TaskList
	if err := json.Unmarshal(raw, &out); err != nil {
		return TaskList{}, fmt.Errorf("decode task list: %w", err)
	}
	return out, nil
}

// TaskOutcome retrieves a finished task's outcome. This is a destructive
// read: the backend forgets the task once its outcome has been fetched.
// The boolean is false while the task is still pending.
func (c *Client) TaskOutcome(ctx context.Context, id task.ID) (task.Outcome, bool, error) {
	raw, err := c.call(ctx, http.MethodGet, fmt.Sprintf("/tasks/%d", id), nil)
	if err != nil {
		return task.Outcome{}, false, err
	}
	var out taskResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return task.Outcome{}, false, fmt.Errorf("decode task outcome: %w", err)
	}
	switch out.Status {
	case StatusCompleted:
		if out.Outcome == nil {
			return task.Outcome{}, false, fmt.Errorf("%w: completed task %d has no outcome", ErrRemote, id)
		}
		return *out.Outcome, true, nil
	case StatusPending:
		return task.Outcome{}, false, nil
	case StatusNotFound:
		return task.Outcome{}, false, fmt.Errorf("%w: id %d", ErrTaskNotFound, id)
	default:
		return task.Outcome{}, false, fmt.Errorf("%w: unknown task status %q", ErrRemote, out.Status)
	}
}

// ConsumeMessages destructively reads the backend's accumulated warning and
// error strings.
func (c *Client) ConsumeMessages(ctx context.Context) (Messages, error) {
	raw, err := c.call(ctx, http.MethodGet, "/messages", nil)
	if err != nil {
		return Messages{}, err
	}
	var out Messages
	if err := json.Unmarshal(raw, &out); err != nil {
		return Messages{}, fmt.Errorf("decode messages: %w", err)
	}
	return out, nil
}

// Ping checks backend liveness without touching any destructive endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.QueryTasks(ctx)
	return err
}

func (c *Client) call(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: http status %d", ErrRemote, res.StatusCode)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// A non-empty message only signals failure when no result came with it.
	// Pending and not-found task polls carry an informational message next
	// to a well-formed result, and not-found additionally arrives as a 404.
	if env.Message != "" && nullResult(env.Result) {
		return nil, fmt.Errorf("%w: %s", ErrRemote, env.Message)
	}
	if res.StatusCode != http.StatusNotFound && (res.StatusCode < 200 || res.StatusCode >= 300) {
		return nil, fmt.Errorf("%w: http status %d", ErrRemote, res.StatusCode)
	}
	return env.Result, nil
}

func nullResult(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
