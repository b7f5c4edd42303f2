package grpcapi

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/TinoTau/lingua-1-sub000/internal/events"
	"github.com/TinoTau/lingua-1-sub000/internal/models"
	"github.com/TinoTau/lingua-1-sub000/internal/schema"
	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
	"github.com/TinoTau/lingua-1-sub000/internal/service/asr"
	"github.com/TinoTau/lingua-1-sub000/internal/service/gate"
	"github.com/TinoTau/lingua-1-sub000/internal/service/lastsent"
	"github.com/TinoTau/lingua-1-sub000/internal/service/postprocess"
	"github.com/TinoTau/lingua-1-sub000/internal/service/segment"
)

const longText = "今天天气很好我们一起去公园散步然后去超市买东西最后回家做饭吃完饭以后看电视再早点睡觉。"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	v, err := schema.New()
	if err != nil {
		t.Fatalf("failed to compile schemas: %v", err)
	}
	reg := aggregator.NewRegistry(aggregator.RegistryConfig{})
	g := gate.New(gate.Config{}, reg, lastsent.New(lastsent.Config{}))
	h := postprocess.NewHandler(g, reg, segment.NewLedger(0), events.New(nil), v)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, h)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestServer_ProcessJobRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	off := int64(0)

	req := &models.ProcessJobRequest{
		Job: asr.Job{SessionID: "s1", UtteranceIndex: 1, Mode: aggregator.ModeOffline, AudioOffsetMs: &off},
		Result: asr.Result{
			Text:                longText,
			Segments:            []asr.Segment{{Start: 0, End: 1}},
			Language:            "zh",
			LanguageProbability: 0.9,
			IsFinal:             true,
		},
	}
	resp, err := c.ProcessJob(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.ShouldSendToSemanticRepair || resp.AggregatedText != longText {
		t.Errorf("expected send of long text, got %+v", resp)
	}
	if resp.SegmentID != "s1-seg-1" {
		t.Errorf("expected segment id 's1-seg-1', got %q", resp.SegmentID)
	}

	// Retrying the same utterance reports a duplicate.
	resp, err = c.ProcessJob(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Duplicate {
		t.Errorf("expected duplicate, got %+v", resp)
	}

	last, err := c.LastCommitted(ctx, &models.LastCommittedRequest{SessionID: "s1", CurrentIndex: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !last.Found || last.Text != longText {
		t.Errorf("expected last committed text, got %+v", last)
	}

	end, err := c.EndSession(ctx, &models.EndSessionRequest{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if end.FlushedText != "" {
		t.Errorf("expected nothing to flush, got %q", end.FlushedText)
	}
}

func TestServer_EmptySessionID(t *testing.T) {
	c := newTestClient(t)

	_, err := c.ProcessJob(context.Background(), &models.ProcessJobRequest{
		Result: asr.Result{Text: "天气很好", IsFinal: true},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}

	_, err = c.LastCommitted(context.Background(), &models.LastCommittedRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestJSONCodec(t *testing.T) {
	var c jsonCodec
	if c.Name() != "json" {
		t.Errorf("expected 'json', got %s", c.Name())
	}
	data, err := c.Marshal(&models.EndSessionRequest{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out models.EndSessionRequest
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.SessionID != "s1" {
		t.Errorf("expected 's1', got %s", out.SessionID)
	}
}
