package broadcast

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/config"
	"bitbucket.org/mmdatafocus/rfid_backend/workflow"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

const defaultEventsTopic = "rfid-events"

// PubSubPublisher forwards events to a Google Pub/Sub topic for downstream
// consumers (ERP sync, analytics).
type PubSubPublisher struct {
	topic   *pubsub.Topic
	timeout time.Duration
	logger  *logrus.Logger
	pending sync.WaitGroup
}

// NewPubSubPublisher uses RFID_EVENTS_TOPIC (default "rfid-events"). The
// topic is created when RFID_EVENTS_CREATE_TOPIC is true.
func NewPubSubPublisher(ctx context.Context, logger *logrus.Logger) (*PubSubPublisher, error) {
	topicName := strings.TrimSpace(os.Getenv("RFID_EVENTS_TOPIC"))
	if topicName == "" {
		topicName = defaultEventsTopic
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return nil, err
	}

	topic := client.Topic(topicName)
	if config.EnvBool("RFID_EVENTS_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(ctx, client, topicName)
		if err != nil {
			return nil, err
		}
	}
	return newPubSubPublisher(topic, logger), nil
}

func newPubSubPublisher(topic *pubsub.Topic, logger *logrus.Logger) *PubSubPublisher {
	return &PubSubPublisher{topic: topic, timeout: 10 * time.Second, logger: logger}
}

// Publish hands the message to the topic's bundler and returns. The broker
// acknowledgement is awaited in the background; failures are logged.
func (p *PubSubPublisher) Publish(ctx context.Context, event workflow.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	kind := event.EventKind()
	res := p.topic.Publish(context.WithoutCancel(ctx), &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": kind},
	})
	p.pending.Add(1)
	go p.awaitResult(res, kind)
	return nil
}

func (p *PubSubPublisher) awaitResult(res *pubsub.PublishResult, kind string) {
	defer p.pending.Done()
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if _, err := res.Get(ctx); err != nil {
		config.LogError(p.logger, "pubsub.go", "Publish", "PublishResult.Get", kind, err)
	}
}

// Stop flushes pending messages and waits for their results.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
	p.pending.Wait()
}
