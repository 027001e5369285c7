package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/agri-assistant/internal/infrastructure/resilience"
)

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// ingestEvent is the wire payload on the corpus ingestion subject.
type ingestEvent struct {
	DocumentID string    `json:"document_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func encodeIngestEvent(documentID string, at time.Time) ([]byte, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, errors.New("encode ingest event: empty document id")
	}
	payload, err := json.Marshal(ingestEvent{DocumentID: documentID, EnqueuedAt: at})
	if err != nil {
		return nil, fmt.Errorf("encode ingest event: %w", err)
	}
	return payload, nil
}

// decodeIngestEvent also accepts a bare document id for hand-published messages.
func decodeIngestEvent(data []byte) (ingestEvent, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return ingestEvent{}, errors.New("decode ingest event: empty payload")
	}
	if !strings.HasPrefix(raw, "{") {
		return ingestEvent{DocumentID: raw}, nil
	}

	var event ingestEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return ingestEvent{}, fmt.Errorf("decode ingest event: %w", err)
	}
	if event.DocumentID == "" {
		return ingestEvent{}, errors.New("decode ingest event: missing document_id")
	}
	return event, nil
}
