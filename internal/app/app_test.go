package app

import (
	"context"
	"os"
	"testing"

	"github.com/TinoTau/lingua-1-sub000/internal/config"
	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
	"github.com/TinoTau/lingua-1-sub000/internal/service/asr"
)

func TestNew_WiresPipeline(t *testing.T) {
	os.Unsetenv("AGGREGATOR_TUNING_FILE")
	os.Unsetenv("KAFKA_ENABLED")

	a, err := New(config.Load())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Ready() {
		t.Error("expected not ready before Start")
	}
	if err := a.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Ready() {
		t.Error("expected ready after Start")
	}

	off := int64(0)
	job := asr.Job{SessionID: "s1", UtteranceIndex: 1, Mode: aggregator.ModeOffline, AudioOffsetMs: &off}
	if _, err := a.Handler.HandleJob(context.Background(), job, asr.Result{Text: "明天见", Language: "zh", LanguageProbability: 0.9}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Registry.Len() != 1 {
		t.Errorf("expected 1 session, got %d", a.Registry.Len())
	}

	a.Shutdown()
	if a.Ready() {
		t.Error("expected not ready after Shutdown")
	}
	if a.Registry.Len() != 0 {
		t.Errorf("expected sessions flushed on shutdown, got %d", a.Registry.Len())
	}
	if a.Ledger.Sessions() != 0 {
		t.Errorf("expected ledger cleared by eviction handler, got %d", a.Ledger.Sessions())
	}
}

func TestNew_BadTuningFile(t *testing.T) {
	os.Setenv("AGGREGATOR_TUNING_FILE", "/nonexistent/tuning.yaml")
	defer os.Unsetenv("AGGREGATOR_TUNING_FILE")

	if _, err := New(config.Load()); err == nil {
		t.Error("expected error for missing tuning file")
	}
}
