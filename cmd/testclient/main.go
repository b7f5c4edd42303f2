// Command testclient replays the scripted recognizer session against a
// running aggregator over gRPC and prints every gate decision.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "github.com/TinoTau/lingua-1-sub000/internal/api/grpc"
	"github.com/TinoTau/lingua-1-sub000/internal/models"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
	"github.com/TinoTau/lingua-1-sub000/internal/service/asr/mock"
)

func main() {
	cfg := logging.DefaultConfig()
	cfg.Format = "console"
	logging.Init(cfg)

	addr := os.Getenv("AGGREGATOR_ADDR")
	if addr == "" {
		addr = "localhost:50051"
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer conn.Close()
	client := grpcapi.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessionID := "test-" + uuid.NewString()[:8]
	rec := mock.New(sessionID, aggregator.ModeOffline, nil)
	defer rec.Close()
	log.Info().Str("addr", addr).Str("sessionId", sessionID).Msg("Replaying scripted session")

	for {
		job, res, err := rec.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("recognizer failed")
		}

		resp, err := client.ProcessJob(ctx, &models.ProcessJobRequest{Job: job, Result: res})
		if err != nil {
			log.Fatal().Err(err).Int64("utteranceIndex", job.UtteranceIndex).Msg("ProcessJob failed")
		}
		log.Info().
			Int64("utteranceIndex", job.UtteranceIndex).
			Str("recognized", res.Text).
			Str("disposition", resp.Disposition).
			Str("reason", resp.Reason).
			Str("aggregated", resp.AggregatedText).
			Str("segmentId", resp.SegmentID).
			Msg("Job result")
	}

	end, err := client.EndSession(ctx, &models.EndSessionRequest{SessionID: sessionID})
	if err != nil {
		log.Fatal().Err(err).Msg("EndSession failed")
	}
	log.Info().Str("flushed", end.FlushedText).Msg("Session ended")
}
