package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexpearce/distribute-challenge/internal/model"
	"github.com/alexpearce/distribute-challenge/internal/task"
)

func TestStreamEventsDeliversSucceededTasks(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/events: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	// The subscription exists once headers arrive. A failed task publishes
	// nothing, so the first event must be the successful one.
	submitAndFinish(t, srv, "tasks", task.Outcome{Failure: &task.Failure{Kind: task.FailureTask, Message: "no"}})
	want := submitAndFinish(t, srv, "tasks", task.Outcome{Value: 4})

	var eventType string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if eventType != model.EventTaskSucceeded {
				t.Fatalf("event type = %q, want %q", eventType, model.EventTaskSucceeded)
			}
			var ev model.TaskEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if ev.TaskID != want || ev.Queue != "tasks" || ev.WorkerID != "w1" {
				t.Errorf("event = %+v, want task %s on tasks from w1", ev, want)
			}
			return
		}
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestWriteSSEEventMultiLine(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := writeSSEEvent(rec, "note", "one\ntwo"); err != nil {
		t.Fatalf("writeSSEEvent: %v", err)
	}

	want := "event: note\ndata: one\ndata: two\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}
