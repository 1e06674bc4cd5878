package engine

import (
	"sync"

	"github.com/alexpearce/distribute-challenge/internal/task"
)

// ResultBroker delivers a task's outcome to callers waiting on it. It is safe
// for concurrent use.
//
// Topics exist only while someone is waiting and are dropped on Publish, so a
// subscriber that arrives after the outcome was published receives nothing.
// Callers subscribe first and then consult the store.
type ResultBroker struct {
	mu     sync.Mutex
	topics map[string]*resultTopic
}

type resultTopic struct {
	subs   map[int]chan task.Outcome
	nextID int
}

// NewResultBroker creates a new result broker.
func NewResultBroker() *ResultBroker {
	return &ResultBroker{
		topics: make(map[string]*resultTopic),
	}
}

// Subscribe returns a channel that receives the outcome of the given task and
// an unsubscribe function.
func (b *ResultBroker) Subscribe(taskID string) (<-chan task.Outcome, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		t = &resultTopic{subs: make(map[int]chan task.Outcome)}
		b.topics[taskID] = t
	}

	// One slot is enough: each topic is published at most once.
	ch := make(chan task.Outcome, 1)
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		if len(t.subs) == 0 && b.topics[taskID] == t {
			delete(b.topics, taskID)
		}
	}
}

// Publish sends the outcome to every subscriber of the task and drops the
// topic.
func (b *ResultBroker) Publish(taskID string, out task.Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		return
	}
	for id, ch := range t.subs {
		ch <- out
		delete(t.subs, id)
	}
	delete(b.topics, taskID)
}

// Waiting reports the number of tasks with at least one subscriber.
func (b *ResultBroker) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
