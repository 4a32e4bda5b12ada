package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/AveryLor/BiasBreaker/internal/events"
	"github.com/AveryLor/BiasBreaker/internal/models"
)

type stubWriter struct {
	msgs     []kafka.Message
	failures int
	calls    int
	closed   bool
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("broker unavailable")
	}
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func TestPublisherRoundTrip(t *testing.T) {
	w := &stubWriter{}
	p := events.NewPublisher(w)

	rec := models.AnalysisRecord{
		ID:        "rec-9",
		Module:    models.ModuleNeutralityCheck,
		Query:     "Headline",
		Result:    `{"bias_score":70}`,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.AppendAnalysis(context.Background(), rec))
	require.Len(t, w.msgs, 1)
	require.Equal(t, []byte("rec-9"), w.msgs[0].Key)
	require.Equal(t, "module", w.msgs[0].Headers[0].Key)

	got, err := events.DecodeRecord(w.msgs[0].Value)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublisherErrors(t *testing.T) {
	p := events.NewPublisher(&stubWriter{failures: 1})
	require.Error(t, p.AppendAnalysis(context.Background(), models.AnalysisRecord{}))
	require.Error(t, p.AppendAnalysis(context.Background(), models.AnalysisRecord{ID: "x", Module: "m"}))
}

func TestDecodeRecordRejectsInvalid(t *testing.T) {
	for _, raw := range []string{`{`, `{"module":"m"}`, `{"id":"x"}`} {
		_, err := events.DecodeRecord([]byte(raw))
		require.Error(t, err, raw)
	}
}

func TestDeadLetterHeaders(t *testing.T) {
	msg := kafka.Message{
		Partition: 2,
		Offset:    41,
		Key:       []byte("k"),
		Value:     []byte("v"),
		Headers:   []kafka.Header{{Key: "module", Value: []byte("m")}},
	}
	dlq := events.DeadLetter(msg, errors.New("bad payload"), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	headers := map[string]string{}
	for _, h := range dlq.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, map[string]string{
		"module":             "m",
		"original_partition": "2",
		"original_offset":    "41",
		"error":              "bad payload",
		"timestamp":          "2024-01-01T00:00:00Z",
	}, headers)
	require.Equal(t, msg.Value, dlq.Value)
	require.Len(t, msg.Headers, 1)
}

func TestWriteWithBackoff(t *testing.T) {
	w := &stubWriter{failures: 2}
	n, err := events.WriteWithBackoff(context.Background(), w, kafka.Message{}, 5, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	w = &stubWriter{failures: 10}
	_, err = events.WriteWithBackoff(context.Background(), w, kafka.Message{}, 3, time.Millisecond)
	require.Error(t, err)
	require.Equal(t, 3, w.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = events.WriteWithBackoff(ctx, &stubWriter{failures: 10}, kafka.Message{}, 3, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
