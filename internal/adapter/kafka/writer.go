package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/couchcryptid/mortality-etl/internal/config"
	"github.com/couchcryptid/mortality-etl/internal/domain"
	"github.com/couchcryptid/mortality-etl/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// publishBatchSize bounds the messages handed to a single WriteMessages call.
const publishBatchSize = 500

// Writer publishes annotated records to a Kafka topic.
// It implements pipeline.Loader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Load publishes every record of a dataset. A republished cell hashes to the
// same partition as its earlier versions.
func (w *Writer) Load(ctx context.Context, dataset domain.Dataset, records []domain.AnnotatedRecord) error {
	runID := observability.RunID(ctx)
	for start := 0; start < len(records); start += publishBatchSize {
		end := min(start+publishBatchSize, len(records))
		msgs := make([]kafkago.Message, 0, end-start)
		for i := start; i < end; i++ {
			msg, err := serializeToMessage(dataset, runID, records[i])
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish %s records: %w", dataset, err)
		}
	}
	w.logger.Info("dataset published", "dataset", dataset, "topic", w.writer.Topic, "records", len(records))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// messageKey identifies a series cell: dataset|jurisdiction|year|week.
func messageKey(dataset domain.Dataset, r domain.MortalityRecord) string {
	return strings.Join([]string{
		string(dataset), r.Jurisdiction, strconv.Itoa(r.Year), strconv.Itoa(r.Week),
	}, "|")
}

// serializeToMessage marshals an AnnotatedRecord into a Kafka message.
func serializeToMessage(dataset domain.Dataset, runID string, r domain.AnnotatedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize mortality record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(messageKey(dataset, r.MortalityRecord)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(dataset)},
			{Key: "source", Value: []byte(r.Source)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
