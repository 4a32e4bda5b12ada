// Package events moves analysis records over Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/AveryLor/BiasBreaker/internal/models"
)

// DLQSuffix is appended to a topic name to form its dead-letter topic.
const DLQSuffix = "_dlq"

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends analysis records to a topic, keyed by record id.
type Publisher struct {
	w MessageWriter
}

// NewWriter builds a hash-balanced writer so one record id always lands on the
// same partition.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewPublisher wraps w.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

// AppendAnalysis publishes rec. It satisfies the scorer's analysis sink.
func (p *Publisher) AppendAnalysis(ctx context.Context, rec models.AnalysisRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("analysis record without id")
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal analysis record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "module", Value: []byte(rec.Module)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish analysis record: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// DecodeRecord parses a published analysis record.
func DecodeRecord(value []byte) (models.AnalysisRecord, error) {
	var rec models.AnalysisRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return models.AnalysisRecord{}, fmt.Errorf("decode analysis record: %w", err)
	}
	if rec.ID == "" {
		return models.AnalysisRecord{}, fmt.Errorf("analysis record without id")
	}
	if rec.Module == "" {
		return models.AnalysisRecord{}, fmt.Errorf("analysis record %s without module", rec.ID)
	}
	return rec, nil
}

// DeadLetter wraps a failed message with its origin and failure reason.
func DeadLetter(msg kafka.Message, cause error, now time.Time) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(now.UTC().Format(time.RFC3339))},
	)
	return kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

// WriteWithBackoff retries a write up to attempts times, doubling the wait
// from base. It returns the attempt count used or the last error.
func WriteWithBackoff(ctx context.Context, w MessageWriter, msg kafka.Message, attempts int, base time.Duration) (int, error) {
	var lastErr error
	for attempt := range attempts {
		if lastErr = w.WriteMessages(ctx, msg); lastErr == nil {
			return attempt + 1, nil
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(base << uint(attempt)):
		case <-ctx.Done():
			return attempt + 1, ctx.Err()
		}
	}
	return attempts, fmt.Errorf("write after %d attempts: %w", attempts, lastErr)
}
