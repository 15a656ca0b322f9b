package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"bitbucket.org/mmdatafocus/rfid_backend/workflow"
	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "rfid"

// NatsConn is the subset of *nats.Conn the publisher needs.
type NatsConn interface {
	Publish(subject string, data []byte) error
}

// NatsPublisher publishes each event on "<prefix>.<kind>", e.g. rfid.receipt.
type NatsPublisher struct {
	nc     NatsConn
	prefix string
}

func NewNatsPublisher(nc NatsConn, prefix string) *NatsPublisher {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &NatsPublisher{nc: nc, prefix: prefix}
}

func (p *NatsPublisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

func (p *NatsPublisher) Publish(_ context.Context, event workflow.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(event.EventKind()), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

var _ NatsConn = (*nats.Conn)(nil)
