package app

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/TinoTau/lingua-1-sub000/internal/config"
	"github.com/TinoTau/lingua-1-sub000/internal/events"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
	"github.com/TinoTau/lingua-1-sub000/internal/schema"
	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
	"github.com/TinoTau/lingua-1-sub000/internal/service/gate"
	"github.com/TinoTau/lingua-1-sub000/internal/service/lastsent"
	"github.com/TinoTau/lingua-1-sub000/internal/service/postprocess"
	"github.com/TinoTau/lingua-1-sub000/internal/service/segment"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Registry  *aggregator.Registry
	LastSent  *lastsent.Deduplicator
	Gate      *gate.Gate
	Ledger    *segment.Ledger
	Publisher *events.Publisher
	Handler   *postprocess.Handler

	ready atomic.Bool
}

// New wires the aggregation pipeline from the provided configuration.
func New(cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	tunings, err := cfg.Tunings()
	if err != nil {
		return nil, err
	}
	validator, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	a.Registry = aggregator.NewRegistry(aggregator.RegistryConfig{
		Tunings:       tunings,
		SessionTTL:    cfg.Aggregation.SessionTTL,
		MaxSessions:   cfg.Aggregation.MaxSessions,
		SweepInterval: cfg.Aggregation.SweepInterval,
		CommitLogSize: cfg.Aggregation.CommitLogSize,
	})
	a.LastSent = lastsent.New(lastsent.Config{
		TTL:           cfg.LastSent.TTL,
		SweepInterval: cfg.LastSent.SweepInterval,
	})
	gc := gate.DefaultConfig()
	gc.DiscardBelowChars = cfg.Gate.DiscardBelowChars
	gc.SendAtChars = cfg.Gate.SendAtChars
	a.Gate = gate.New(gc, a.Registry, a.LastSent)
	a.Ledger = segment.NewLedger(0)
	a.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicSegment: cfg.Kafka.TopicSegment,
		TopicMerge:   cfg.Kafka.TopicMerge,
		Principal:    cfg.Kafka.Principal,
	})
	a.Handler = postprocess.NewHandler(a.Gate, a.Registry, a.Ledger, a.Publisher, validator)
	a.Handler.SetDefaultMode(cfg.Aggregation.DefaultMode)
	a.Registry.SetEvictionHandler(a.Handler.OnEvict)

	a.Logger.Info().
		Str("defaultMode", string(cfg.Aggregation.DefaultMode)).
		Int("maxSessions", cfg.Aggregation.MaxSessions).
		Bool("kafkaEnabled", a.Publisher.Enabled()).
		Msg("Lingua aggregator application created")
	return a, nil
}

// Start launches the background sweeps and marks the service ready.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Registry.Start()
	a.LastSent.Start()
	a.ready.Store(true)

	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Lingua aggregator starting")
	return nil
}

// Ready reports whether the service accepts traffic.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown stops the sweeps, flushes every live session through the
// eviction handler and closes the publisher.
func (a *Application) Shutdown() {
	a.ready.Store(false)
	a.Logger.Info().Int("sessions", a.Registry.Len()).Msg("Lingua aggregator shutting down")

	a.Registry.Stop()
	a.LastSent.Stop()
	a.Registry.RemoveAll()
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Error closing publisher")
	}
}
