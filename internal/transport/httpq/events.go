package httpq

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/events"
	"github.com/alexpearce/distribute-challenge/internal/model"
)

const maxEventSize = 1 << 20

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe opens an event stream and calls fn for every task event it
// carries. It returns once the server has accepted the stream, so events
// published after Subscribe returns are delivered. fn runs on the stream's
// reader goroutine, one event at a time.
func (c *Client) Subscribe(fn func(model.TaskEvent)) (string, error) {
	if fn == nil {
		return "", errors.New("subscribe: callback is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/v1/events", nil), nil)
	if err != nil {
		cancel()
		return "", &backend.TransportError{Op: "subscribe", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return "", &backend.TransportError{Op: "subscribe", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		err := readStatusError(resp)
		resp.Body.Close()
		cancel()
		return "", &backend.TransportError{Op: "subscribe", Err: err}
	}

	id := model.NewID()
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer resp.Body.Close()
		if err := c.readEvents(resp, fn); err != nil && ctx.Err() == nil {
			c.logger.Warn("event stream ended", "subscription", id, "error", err)
		}
	}()

	c.logger.Debug("subscribed to task events", "subscription", id)
	return id, nil
}

// Unsubscribe closes the event stream and waits for its reader to exit, so
// fn is not called after Unsubscribe returns.
func (c *Client) Unsubscribe(id string) error {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("unsubscribe %s: %w", id, events.ErrUnknownSubscription)
	}
	sub.cancel()
	<-sub.done
	return nil
}

// Close ends every open event stream.
func (c *Client) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return nil
}

// readEvents parses server-sent events from resp until the stream ends.
// Comment lines and events that are not task events are skipped.
func (c *Client) readEvents(resp *http.Response, fn func(model.TaskEvent)) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		eventType string
		data      []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				c.dispatch(eventType, strings.Join(data, "\n"), fn)
			}
			eventType, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("server closed the stream")
}

func (c *Client) dispatch(eventType, data string, fn func(model.TaskEvent)) {
	var ev model.TaskEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		c.logger.Warn("skipping malformed task event", "event", eventType, "error", err)
		return
	}
	if ev.Type == "" {
		ev.Type = eventType
	}
	fn(ev)
}
