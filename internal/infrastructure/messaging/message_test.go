package messaging

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestBackoffConfig_Delay(t *testing.T) {
	b := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}
	cases := map[int]time.Duration{
		0: time.Second,
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 5 * time.Second,
		9: 5 * time.Second,
	}
	for attempt, want := range cases {
		if got := b.Delay(attempt); got != want {
			t.Fatalf("Delay(%d): expected %v, got %v", attempt, want, got)
		}
	}
}

func TestMessage_PayloadAndMetadata(t *testing.T) {
	msg, err := NewMessage("m1", EventDocumentIndexed, "node-a", DocumentEvent{DocumentID: "d1", ChunkCount: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg.SetMetadata("request_id", "")
	if msg.Metadata != nil {
		t.Fatalf("expected empty metadata values to be skipped")
	}
	msg.SetMetadata("request_id", "r-1")
	if msg.GetMetadata("request_id") != "r-1" {
		t.Fatalf("expected request id metadata")
	}

	var ev DocumentEvent
	if err := msg.UnmarshalPayload(&ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.DocumentID != "d1" || ev.ChunkCount != 3 {
		t.Fatalf("unexpected payload: %+v", ev)
	}
}

func TestDecode(t *testing.T) {
	if _, err := decode(redis.XMessage{ID: "1-0", Values: map[string]any{}}); err == nil {
		t.Fatalf("expected error for missing data field")
	}
	msg, err := decode(redis.XMessage{ID: "1-0", Values: map[string]any{
		"data": `{"id":"m1","type":"document_removed","origin":"node-b","payload":{"document_id":"d9"}}`,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != EventDocumentRemoved || msg.Origin != "node-b" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if StreamIndexSync.DLQStream() != "dlq:stream:kb:sync" {
		t.Fatalf("unexpected dlq stream name %q", StreamIndexSync.DLQStream())
	}
}
