package services_test

import (
	"context"
	"testing"

	"renote/internal/services"
)

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, 42)
	ctx = services.WithStage(ctx, "merge")
	ctx = services.WithLane(ctx, "foreground")
	ctx = services.WithRequestID(ctx, "req-1")

	if id, ok := services.ItemIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("expected item id 42, got %d ok=%v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "merge" {
		t.Fatalf("expected stage merge, got %q ok=%v", stage, ok)
	}
	if lane, ok := services.LaneFromContext(ctx); !ok || lane != "foreground" {
		t.Fatalf("expected lane foreground, got %q ok=%v", lane, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-1" {
		t.Fatalf("expected request id req-1, got %q ok=%v", rid, ok)
	}
}

func TestContextEmptyValuesIgnored(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected empty stage to be ignored")
	}
	if _, ok := services.ItemIDFromContext(context.Background()); ok {
		t.Fatal("expected missing item id to report not ok")
	}
}
