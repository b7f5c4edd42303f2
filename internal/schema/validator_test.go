package schema

import (
	"errors"
	"testing"

	"github.com/TinoTau/lingua-1-sub000/internal/models"
)

func TestValidator_Validate(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("failed to compile schemas: %v", err)
	}

	pending := int64(2)
	tests := []struct {
		name    string
		event   any
		wantErr bool
	}{
		{
			name: "valid segment",
			event: models.SegmentEvent{
				EventID:                         "e1",
				EventType:                       models.EventSegmentAggregated,
				SessionID:                       "s1",
				SegmentID:                       "s1-seg-1",
				UtteranceIndex:                  3,
				Timestamp:                       1700000000000,
				Text:                            "我们明天见",
				SegmentText:                     "明天见",
				MergedFromPendingUtteranceIndex: &pending,
			},
		},
		{
			name: "segment without text",
			event: models.SegmentEvent{
				EventID:   "e1",
				EventType: models.EventSegmentFlushed,
				SessionID: "s1",
				SegmentID: "s1-seg-1",
			},
			wantErr: true,
		},
		{
			name: "valid merge notice",
			event: models.MergeNotice{
				EventID:                  "e2",
				EventType:                models.EventUtteranceMerged,
				SessionID:                "s1",
				UtteranceIndex:           4,
				MergedFromUtteranceIndex: 3,
				Timestamp:                1700000000000,
			},
		},
		{
			name: "merge notice with empty session",
			event: models.MergeNotice{
				EventID:   "e2",
				EventType: models.EventUtteranceMerged,
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.event)
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidator_UnknownEventType(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("failed to compile schemas: %v", err)
	}
	err = v.Validate(map[string]string{"eventType": "transcript.partial"})
	if !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("expected ErrUnknownEventType, got %v", err)
	}
}
