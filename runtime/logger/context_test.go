package logger

import (
	"context"
	"testing"
)

func TestWithLoggingContext(t *testing.T) {
	ctx := WithLoggingContext(context.Background(), &LoggingFields{
		SessionID: "s1",
		SpeakerID: "u1",
		TurnID:    "t1",
	})

	got := ExtractLoggingFields(ctx)
	if got.SessionID != "s1" || got.SpeakerID != "u1" || got.TurnID != "t1" {
		t.Errorf("unexpected fields: %+v", got)
	}
	if got.SegmentID != "" || got.Model != "" {
		t.Errorf("expected unset fields to stay empty: %+v", got)
	}
}

func TestWithLoggingContext_Nil(t *testing.T) {
	ctx := context.Background()
	if WithLoggingContext(ctx, nil) != ctx {
		t.Error("expected nil fields to return the same context")
	}
}

func TestIndividualSetters(t *testing.T) {
	ctx := context.Background()
	ctx = WithConnectionID(ctx, "c1")
	ctx = WithSegmentID(ctx, "seg1")
	ctx = WithModel(ctx, "gpt-4o")
	ctx = WithEnvironment(ctx, "prod")

	got := ExtractLoggingFields(ctx)
	want := LoggingFields{ConnectionID: "c1", SegmentID: "seg1", Model: "gpt-4o", Environment: "prod"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
