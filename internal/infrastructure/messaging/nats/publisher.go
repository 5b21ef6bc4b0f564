package nats

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// Publisher wraps a Watermill NATS publisher for bridging the in-process
// eventbus to external subscribers.
type Publisher struct {
	publisher *nats.Publisher
	logger    watermill.LoggerAdapter
}

// NewPublisher creates a new NATS publisher, ensuring its JetStream streams
// exist.
func NewPublisher(natsURL string, logger watermill.LoggerAdapter) (*Publisher, error) {
	nc, err := natsgo.Connect(natsURL)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	pub, err := nats.NewPublisher(
		nats.PublisherConfig{
			URL:       natsURL,
			Marshaler: nats.GobMarshaler{},
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	ensureStreams(js)

	return &Publisher{publisher: pub, logger: logger}, nil
}

// Publish publishes a JSON-encoded payload to a subject.
func (p *Publisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	return p.publisher.Publish(topic, msg)
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}

// ensureStreams creates the JetStream streams the engine publishes to.
func ensureStreams(js natsgo.JetStreamContext) error {
	streams := []struct {
		name     string
		subjects []string
	}{
		{name: "dataflow-events", subjects: []string{"dataflow.events.>"}},
		{name: "dataflow-ticks", subjects: []string{"dataflow.ticks.>"}},
		{name: "dataflow-runs", subjects: []string{"dataflow.runs.>"}},
	}

	for _, stream := range streams {
		if _, err := js.StreamInfo(stream.name); err == nil {
			continue
		}
		_, err := js.AddStream(&natsgo.StreamConfig{
			Name:     stream.name,
			Subjects: stream.subjects,
			Storage:  natsgo.FileStorage,
			Replicas: 1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
