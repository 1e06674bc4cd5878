// Package httpq is a client for the queue service's HTTP API. A Client can
// stand in for the in-process engine wherever one is expected: as the queue
// backend's Transport, as a worker's Source and as a monitor's EventSource.
package httpq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/model"
	"github.com/alexpearce/distribute-challenge/internal/task"
)

// DefaultPollWait is how long each long-poll request asks the server to hold
// on before answering that nothing is ready yet.
const DefaultPollWait = 20 * time.Second

// StatusError is an unexpected response from the queue service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("queue service returned %d", e.Code)
	}
	return fmt.Sprintf("queue service returned %d: %s", e.Code, e.Message)
}

// Temporary reports whether the request may succeed if sent again.
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// Options configures a Client.
type Options struct {
	// HTTPClient must not set a Timeout shorter than PollWait, and event
	// streams need one with no Timeout at all. Defaults to a client without
	// a timeout.
	HTTPClient *http.Client
	PollWait   time.Duration
	Logger     *slog.Logger
}

// Client talks to a queue service.
type Client struct {
	base     string
	http     *http.Client
	pollWait time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

// New creates a client for the queue service at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("broker url %q: scheme must be http or https", baseURL)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.PollWait <= 0 {
		opts.PollWait = DefaultPollWait
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		base:     strings.TrimSuffix(u.String(), "/"),
		http:     opts.HTTPClient,
		pollWait: opts.PollWait,
		logger:   opts.Logger,
		subs:     make(map[string]*subscription),
	}, nil
}

type submitResponse struct {
	ID string `json:"id"`
}

// Submit enqueues msg on queue and returns the task ID.
func (c *Client) Submit(ctx context.Context, queue string, msg task.Message) (string, error) {
	var resp submitResponse
	path := "/v1/queues/" + url.PathEscape(queue) + "/tasks"
	if _, err := c.do(ctx, "submit", http.MethodPost, path, nil, msg, &resp, http.StatusAccepted); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// AwaitResult long-polls until the task finishes or ctx ends.
func (c *Client) AwaitResult(ctx context.Context, taskID string) (task.Outcome, error) {
	path := "/v1/tasks/" + url.PathEscape(taskID) + "/outcome"
	query := url.Values{"wait": {c.pollWait.String()}}
	for {
		var out task.Outcome
		code, err := c.do(ctx, "await result", http.MethodGet, path, query, nil, &out, http.StatusOK, http.StatusAccepted)
		if err != nil {
			return task.Outcome{}, err
		}
		if code == http.StatusOK {
			return out, nil
		}
	}
}

// Claim long-polls until a task on queue is assigned to workerID or ctx
// ends.
func (c *Client) Claim(ctx context.Context, queue, workerID string) (*model.Task, error) {
	path := "/v1/queues/" + url.PathEscape(queue) + "/claim"
	query := url.Values{"worker": {workerID}, "wait": {c.pollWait.String()}}
	for {
		var t model.Task
		code, err := c.do(ctx, "claim", http.MethodPost, path, query, nil, &t, http.StatusOK, http.StatusNoContent)
		if err != nil {
			return nil, err
		}
		if code == http.StatusOK {
			return &t, nil
		}
	}
}

// Complete reports the outcome of a task claimed by workerID.
func (c *Client) Complete(ctx context.Context, taskID, workerID string, out task.Outcome) (*model.Task, error) {
	var t model.Task
	path := "/v1/tasks/" + url.PathEscape(taskID) + "/outcome"
	query := url.Values{"worker": {workerID}}
	if _, err := c.do(ctx, "complete", http.MethodPut, path, query, out, &t, http.StatusOK); err != nil {
		return nil, err
	}
	return &t, nil
}

// do sends a JSON request and decodes the response into out when the status
// is the first of accept. Any status outside accept is an error. Failures
// other than ctx ending are returned as *backend.TransportError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any, accept ...int) (int, error) {
	fail := func(err error) (int, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &backend.TransportError{Op: op, Err: err}
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fail(fmt.Errorf("encode request: %w", err))
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), r)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if !slices.Contains(accept, resp.StatusCode) {
		return fail(readStatusError(resp))
	}
	if out != nil && resp.StatusCode == accept[0] && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fail(fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) url(path string, query url.Values) string {
	if len(query) == 0 {
		return c.base + path
	}
	return c.base + path + "?" + query.Encode()
}

func readStatusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = string(bytes.TrimSpace(data))
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// IsStatus reports whether err came from a response with the given status
// code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
