package bench

import (
	"context"
	"time"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/events"
	"github.com/alexpearce/distribute-challenge/internal/model"
)

// observed publishes a task-succeeded event for every successful Run, giving
// backends without a queue service an event source the monitor can follow.
type observed struct {
	backend.Backend
	bus *events.Bus
}

// Observe wraps b so each successful Run is published on bus.
func Observe(b backend.Backend, bus *events.Bus) backend.Backend {
	return &observed{Backend: b, bus: bus}
}

func (o *observed) Run(ctx context.Context, payload []byte, args []any, kwargs map[string]any) (any, error) {
	v, err := o.Backend.Run(ctx, payload, args, kwargs)
	if err == nil {
		o.bus.Publish(model.TaskEvent{
			Type:   model.EventTaskSucceeded,
			TaskID: model.NewID(),
			Kind:   o.Capabilities().Name,
			Time:   time.Now().UTC(),
		})
	}
	return v, err
}
