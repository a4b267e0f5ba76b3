package mqtt

import (
	"context"
	"encoding/json"

	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/inference"
	"github.com/ycry/ycry-go/internal/logger"
)

// Publisher forwards predictions to a broker topic. It implements
// inference.Observer.
type Publisher struct {
	client Client
	topic  string
	log    logger.Logger
}

// Message is the JSON payload published for each prediction.
type Message struct {
	RequestID     string             `json:"request_id"`
	Prediction    string             `json:"prediction"`
	Confidence    string             `json:"confidence"`
	Probability   float64            `json:"probability"`
	Advice        string             `json:"advice"`
	Probabilities map[string]float64 `json:"probabilities"`
	LabelSet      string             `json:"label_set"`
	Source        string             `json:"source,omitempty"`
	DurationMs    int64              `json:"duration_ms"`
	Timestamp     string             `json:"timestamp"`
}

// NewPublisher creates a publisher for topic. An empty topic uses
// DefaultTopic.
func NewPublisher(c Client, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: c, topic: topic, log: GetLogger()}
}

// Name implements inference.Observer.
func (p *Publisher) Name() string { return "mqtt" }

// OnPrediction publishes ev, connecting first when the client is offline.
func (p *Publisher) OnPrediction(ctx context.Context, ev inference.Event) error {
	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal").
			Build()
	}
	return p.client.Publish(ctx, p.topic, payload)
}

// NewMessage converts an inference event to its wire form.
func NewMessage(ev inference.Event) Message {
	return Message{
		RequestID:     ev.RequestID,
		Prediction:    ev.Label,
		Confidence:    inference.FormatConfidence(ev.Confidence),
		Probability:   ev.Confidence,
		Advice:        ev.Advice,
		Probabilities: ev.Probabilities,
		LabelSet:      ev.LabelSet,
		Source:        ev.Filename,
		DurationMs:    ev.DurationMs,
		Timestamp:     ev.Time.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Disconnect()
	p.log.Debug("Publisher closed", logger.String("topic", p.topic))
}
