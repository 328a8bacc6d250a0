package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/urbanclimate/pipeline/internal/config"
	"github.com/urbanclimate/pipeline/internal/domain"
)

// Notifier publishes finished module runs to a Kafka topic so downstream
// consumers, like the map service, learn about fresh artifacts.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured run-event topic.
func NewNotifier(cfg config.NotifyConfig, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// NotifyRuns serializes and publishes the runs in a single WriteMessages
// call.
func (n *Notifier) NotifyRuns(ctx context.Context, runs []domain.ModuleRun) error {
	if len(runs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(runs))
	for i := range runs {
		msg, err := serializeToMessage(runs[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return n.writer.WriteMessages(ctx, msgs...)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a ModuleRun into a Kafka message keyed by
// run ID.
func serializeToMessage(run domain.ModuleRun) (kafkago.Message, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize module run: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(run.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "module", Value: []byte(run.Module)},
			{Key: "region", Value: []byte(run.Region)},
			{Key: "status", Value: []byte(run.Status)},
		},
	}, nil
}
