// Package kafka adapts the dataset update topic to the invalidation
// listener. The offline aggregation pipeline publishes a message per
// rebuilt species; this side only needs the species key out of it.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/flywaylab/bird-heatmap-service/internal/config"
)

// DatasetUpdate is one rebuild notification from the update topic.
type DatasetUpdate struct {
	Species   string
	Topic     string
	Partition int
	Offset    int64
}

// Reader consumes dataset update messages from Kafka.
// It implements invalidation.UpdateSource.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader on the update topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Reader{reader: r, logger: logger}
}

// FetchUpdate blocks until the next dataset update message arrives.
func (r *Reader) FetchUpdate(ctx context.Context) (DatasetUpdate, error) {
	msg, err := r.reader.ReadMessage(ctx)
	if err != nil {
		return DatasetUpdate{}, err
	}
	return mapMessageToUpdate(msg), nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToUpdate extracts the species key. The pipeline sets it as
// the message key; older producers only carried a JSON body with a
// "species" field, so that stays supported.
func mapMessageToUpdate(msg kafkago.Message) DatasetUpdate {
	update := DatasetUpdate{
		Species:   strings.TrimSpace(string(msg.Key)),
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
	if update.Species == "" {
		var body struct {
			Species string `json:"species"`
		}
		if err := json.Unmarshal(msg.Value, &body); err == nil {
			update.Species = strings.TrimSpace(body.Species)
		}
	}
	return update
}
