package broadcast

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/rfid_backend/workflow"
)

// Fanout delivers every event to all sinks. A failing sink does not stop the
// others; their errors are joined.
type Fanout []workflow.EventPublisher

func (f Fanout) Publish(ctx context.Context, event workflow.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
