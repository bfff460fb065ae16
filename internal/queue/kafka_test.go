package queue

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"taskboard/internal/models"
)

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPublishKeysByUser(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisher(w)
	ev := models.TaskEvent{Action: "update", TaskID: "t1", UserID: "u1", OccurredAt: time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "u1" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	got, err := Decode(w.msgs[0])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Action != ev.Action || got.TaskID != ev.TaskID || got.UserID != ev.UserID || !got.OccurredAt.Equal(ev.OccurredAt) {
		t.Errorf("Decode = %+v, want %+v", got, ev)
	}
}

func TestDecodeFallsBackToKey(t *testing.T) {
	ev, err := Decode(kafka.Message{Key: []byte("u9"), Value: []byte(`{"action":"delete"}`)})
	if err != nil || ev.UserID != "u9" {
		t.Errorf("got %+v %v", ev, err)
	}
	if _, err := Decode(kafka.Message{Value: []byte(`not json`)}); err == nil {
		t.Error("Expected decode error")
	}
}

func TestNilPublisherDrops(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), models.TaskEvent{UserID: "u1"}); err != nil {
		t.Errorf("Expected nil publisher to drop, got %v", err)
	}
}
