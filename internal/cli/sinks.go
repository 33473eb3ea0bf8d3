package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graphfile"
	"github.com/roach88/execgraph/internal/host"
	"github.com/roach88/execgraph/internal/store"
	"github.com/roach88/execgraph/internal/telemetry"
)

// sinkConfig selects where a run's trace goes besides the terminal.
type sinkConfig struct {
	DBPath       string
	OTLPEndpoint string
	NATSURL      string
	NATSPrefix   string
}

// sinks owns the optional trace consumers of one run command. Every
// consumer is attached to the host relay, so it sees all restarts.
type sinks struct {
	logger *slog.Logger
	runID  string

	db       *store.Store
	recorder *store.Recorder

	shutdownTracing func(context.Context) error
	bridge          *telemetry.SpanBridge

	conn      *nats.Conn
	publisher *telemetry.NATSPublisher

	detach []func()
}

// openSinks connects the configured consumers and attaches them to h.
// On error everything opened so far is closed.
func openSinks(ctx context.Context, cfg sinkConfig, h *host.Host, lg *graphfile.Graph, logger *slog.Logger) (*sinks, error) {
	s := &sinks{logger: logger, runID: engine.UUIDv7Generator{}.Generate()}

	var err error
	if cfg.DBPath != "" {
		err = s.openStore(ctx, cfg.DBPath, h, lg)
	}
	if err == nil && cfg.OTLPEndpoint != "" {
		err = s.openTracing(ctx, cfg.OTLPEndpoint, h, lg)
	}
	if err == nil && cfg.NATSURL != "" {
		err = s.openNATS(ctx, cfg.NATSURL, cfg.NATSPrefix, h, lg)
	}
	if err != nil {
		_ = s.close(store.StatusFailed, err)
		return nil, err
	}
	return s, nil
}

func (s *sinks) openStore(ctx context.Context, path string, h *host.Host, lg *graphfile.Graph) error {
	db, err := store.Open(path)
	if err != nil {
		return &CommandError{Code: ErrCodeStore, Message: "open trace database", Path: path, Err: err}
	}
	s.db = db

	hash, _ := lg.Model.Fingerprint()
	run := store.Run{
		ID:        s.runID,
		GraphHash: hash,
		StartNode: h.Status().StartNode,
		Mode:      h.Controller().RunMode().String(),
		Labels:    lg.Names,
	}
	if err := db.BeginRun(ctx, run); err != nil {
		return &CommandError{Code: ErrCodeStore, Message: "begin run", Path: path, Err: err}
	}
	s.recorder = store.NewRecorder(ctx, db, s.runID, engine.NewClock(),
		store.WithRecorderLogger(s.logger))
	s.detach = append(s.detach, s.recorder.Attach(h.Trace()))
	s.logger.Debug("recording trace", "db", path, "run", s.runID)
	return nil
}

func (s *sinks) openTracing(ctx context.Context, endpoint string, h *host.Host, lg *graphfile.Graph) error {
	cfg := telemetry.DefaultTracingConfig("execgraph")
	cfg.OTLPEndpoint = endpoint
	shutdown, err := telemetry.SetupTracing(ctx, cfg, s.logger)
	if err != nil {
		return &CommandError{Code: ErrCodeTelemetry, Message: "set up tracing", Err: err}
	}
	s.shutdownTracing = shutdown

	s.bridge = telemetry.NewSpanBridge(ctx, otel.Tracer(telemetry.TracerName), "run "+lg.Name,
		telemetry.WithLabels(lg.Label),
		telemetry.WithRunAttributes(
			attribute.String("run.id", s.runID),
			attribute.String("graph.name", lg.Name),
			attribute.Int("graph.nodes", lg.Model.Len()),
		))
	s.detach = append(s.detach, s.bridge.Attach(h.Trace()))
	return nil
}

func (s *sinks) openNATS(ctx context.Context, url, prefix string, h *host.Host, lg *graphfile.Graph) error {
	conn, err := telemetry.Connect(ctx, telemetry.DefaultConnectionConfig(url), s.logger)
	if err != nil {
		return &CommandError{Code: ErrCodeTelemetry, Message: "connect to NATS", Err: err}
	}
	s.conn = conn
	s.publisher = telemetry.NewNATSPublisher(conn,
		telemetry.WithSubjectPrefix(prefix),
		telemetry.WithRunID(s.runID),
		telemetry.WithPublisherLabels(lg.Label),
		telemetry.WithPublisherLogger(s.logger))
	s.detach = append(s.detach, s.publisher.Attach(h.Trace()))
	return nil
}

// close detaches every consumer, finishes the stored run with status and
// flushes exporters. The returned error joins every failure.
func (s *sinks) close(status store.RunStatus, runErr error) error {
	if s == nil {
		return nil
	}
	for _, d := range s.detach {
		d()
	}
	s.detach = nil

	var errs []error
	if s.recorder != nil {
		if err := s.recorder.Err(); err != nil {
			errs = append(errs, err)
		}
		s.logger.Debug("trace recorded", "run", s.runID, "events", s.recorder.Written())
	}
	if s.db != nil {
		if s.recorder != nil {
			// A run that never began has no row to finish.
			if err := s.db.FinishRun(context.Background(), s.runID, status, runErr); err != nil {
				s.logger.Error("finish run failed", "run", s.runID, "error", err)
				errs = append(errs, err)
			}
		}
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
		s.db, s.recorder = nil, nil
	}
	if s.bridge != nil {
		s.bridge.Close()
		s.bridge = nil
	}
	if s.shutdownTracing != nil {
		if err := telemetry.ShutdownTracing(s.shutdownTracing, s.logger); err != nil {
			errs = append(errs, err)
		}
		s.shutdownTracing = nil
	}
	if s.publisher != nil {
		if err := s.publisher.Err(); err != nil {
			errs = append(errs, err)
		}
		s.publisher = nil
	}
	if s.conn != nil {
		if err := telemetry.Close(s.conn); err != nil {
			errs = append(errs, err)
		}
		s.conn = nil
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// recordedRunID returns the stored run id, or "" when not recording.
func (s *sinks) recordedRunID() string {
	if s == nil || s.recorder == nil {
		return ""
	}
	return s.runID
}
