// Segment viewer: consumes the aggregator's segment and merge topics and
// relays every event to browser clients over websocket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TinoTau/lingua-1-sub000/internal/config"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
	"github.com/TinoTau/lingua-1-sub000/internal/viewer"
)

func main() {
	cfg := config.Load()
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	logCfg.Format = "console"
	logging.Init(logCfg)

	brokers := cfg.Kafka.Brokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	addr := os.Getenv("VIEWER_ADDR")
	if addr == "" {
		addr = ":8081"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := viewer.NewHub()
	go hub.Run(ctx)

	for _, topic := range []string{cfg.Kafka.TopicSegment, cfg.Kafka.TopicMerge} {
		reader := viewer.NewReader(ctx, brokers, topic, time.Hour)
		defer reader.Close()
		go viewer.Consume(ctx, reader, hub)
		log.Info().Str("topic", topic).Strs("brokers", brokers).Msg("Consuming topic")
	}

	server := &http.Server{Addr: addr, Handler: viewer.NewRouter(hub), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("Segment viewer started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = server.Shutdown(shutdownCtx)
}
