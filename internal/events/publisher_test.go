package events

import (
	"context"
	"testing"

	"github.com/TinoTau/lingua-1-sub000/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerSegment != nil || p.writerMerge != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicSegment: "lingua.segments",
		TopicMerge:   "lingua.merges",
	})
	defer p.Close()

	if !p.Enabled() {
		t.Error("expected publisher to be enabled")
	}
	if p.writerSegment == nil || p.writerSegment.Topic != "lingua.segments" {
		t.Error("expected segment writer for lingua.segments")
	}
	if p.writerMerge == nil || p.writerMerge.Topic != "lingua.merges" {
		t.Error("expected merge writer for lingua.merges")
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicSegment: "test.segments",
		TopicMerge:   "test.merges",
		Principal:    "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicSegment != "test.segments" {
		t.Errorf("expected topic segment 'test.segments', got %s", p.topicSegment)
	}
	if p.topicMerge != "test.merges" {
		t.Errorf("expected topic merge 'test.merges', got %s", p.topicMerge)
	}
}

func TestPublisher_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicSegment: "test.segments", TopicMerge: "test.merges"})
	ctx := context.Background()

	seg := models.SegmentEvent{
		EventType: models.EventSegmentAggregated,
		SessionID: "s1",
		Text:      "我们明天见",
	}
	if err := p.PublishSegment(ctx, "s1", seg); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}

	notice := models.MergeNotice{EventType: models.EventUtteranceMerged, SessionID: "s1"}
	if err := p.PublishMerge(ctx, "s1", notice); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Channels cannot be marshaled
	if err := p.PublishSegment(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable segment event")
	}
	if err := p.PublishMerge(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable merge event")
	}
}

func TestPublisher_Close(t *testing.T) {
	if err := New(&Config{Enabled: false}).Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}

	p := &Publisher{}
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
