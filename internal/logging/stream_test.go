package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestStreamHandlerRoutesTypedFields(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	logger := slog.New(handler).
		With(slog.String(FieldLane, "background")).
		With(slog.Int64(FieldItemID, 99)).
		With(slog.String(FieldStage, "quantizing"))

	logger.Info("grid selected", slog.String("grid", "1/8"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.ItemID != 99 {
		t.Errorf("expected item_id=99, got %d", evt.ItemID)
	}
	if evt.Lane != "background" {
		t.Errorf("expected lane=background, got %q", evt.Lane)
	}
	if evt.Stage != "quantizing" {
		t.Errorf("expected stage=quantizing, got %q", evt.Stage)
	}
	if evt.Fields["grid"] != "1/8" {
		t.Errorf("expected grid field, got %v", evt.Fields)
	}
}

func TestStreamHandlerCallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	logger := slog.New(handler).With(slog.String(FieldStage, "loading"))
	logger.Info("stage changed", slog.String(FieldStage, "merging"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Stage != "merging" {
		t.Errorf("expected call-site stage to win, got %q", events[0].Stage)
	}
}

func TestStreamHandlerNilHubReturnsBase(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Error("expected base handler when hub is nil")
	}
}

func TestStreamHubTailReturnsMostRecent(t *testing.T) {
	hub := NewStreamHub(100)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "event", Level: "INFO"})
	}

	events, latest := hub.Tail(3)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if latest != 5 {
		t.Errorf("expected latest sequence 5, got %d", latest)
	}
	if events[0].Sequence != 3 {
		t.Errorf("expected oldest returned sequence 3, got %d", events[0].Sequence)
	}
}

func TestStreamHubEvictsBeyondCapacity(t *testing.T) {
	hub := NewStreamHub(4)
	for i := 0; i < 10; i++ {
		hub.Publish(LogEvent{Message: "event"})
	}

	if first := hub.FirstSequence(); first != 7 {
		t.Errorf("expected first buffered sequence 7, got %d", first)
	}
	events, _ := hub.Tail(100)
	if len(events) != 4 {
		t.Errorf("expected buffer capped at 4, got %d", len(events))
	}
}

func TestStreamHubFetchReturnsNewEvents(t *testing.T) {
	hub := NewStreamHub(100)
	hub.Publish(LogEvent{Message: "first"})
	hub.Publish(LogEvent{Message: "second"})

	events, next, err := hub.Fetch(context.Background(), 1, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Message != "second" {
		t.Fatalf("expected only the second event, got %+v", events)
	}
	if next != 2 {
		t.Errorf("expected next sequence 2, got %d", next)
	}
}

func TestStreamHubFetchWaitsForPublish(t *testing.T) {
	hub := NewStreamHub(100)

	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish(LogEvent{Message: "late arrival"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, _, err := hub.Fetch(ctx, 0, 10, true)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Message != "late arrival" {
		t.Fatalf("expected the published event, got %+v", events)
	}
}

func TestStreamHubFetchHonorsContextCancel(t *testing.T) {
	hub := NewStreamHub(100)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error from cancelled Fetch")
	}
}

type captureSink struct {
	events []LogEvent
}

func (s *captureSink) Append(evt LogEvent) { s.events = append(s.events, evt) }

func TestStreamHubSinkReceivesEveryEvent(t *testing.T) {
	hub := NewStreamHub(100)
	sink := &captureSink{}
	hub.AddSink(sink)

	hub.Publish(LogEvent{Message: "one"})
	hub.Publish(LogEvent{Message: "two"})

	if len(sink.events) != 2 {
		t.Fatalf("expected sink to receive 2 events, got %d", len(sink.events))
	}
	if sink.events[1].Sequence != 2 {
		t.Errorf("expected sequence stamped before sink fanout, got %d", sink.events[1].Sequence)
	}
}

func TestEventFromRecordCollectsDetails(t *testing.T) {
	record := slog.NewRecord(time.Now(), slog.LevelInfo, "merge complete", 0)
	record.AddAttrs(
		slog.Int64(FieldItemID, 4),
		slog.String("piece_title", "Arabesque"),
		slog.Int("merged_notes", 55),
	)

	evt := eventFromRecordWithAttrs(record, nil)
	if evt.ItemID != 4 {
		t.Errorf("expected item id, got %d", evt.ItemID)
	}
	if len(evt.Details) == 0 {
		t.Fatal("expected info details for highlighted fields")
	}
	if evt.Details[0].Label != "Piece" || evt.Details[0].Value != "Arabesque" {
		t.Errorf("expected piece detail first, got %+v", evt.Details[0])
	}
}
