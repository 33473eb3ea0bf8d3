package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

// DefaultSubjectPrefix is prepended to the event kind to form a subject,
// e.g. "execgraph.trace.node_enter".
const DefaultSubjectPrefix = "execgraph.trace"

// ConnectionConfig holds settings for the NATS connection.
type ConnectionConfig struct {
	URL           string
	Name          string
	MaxReconnects int // -1 for unlimited
	ReconnectWait time.Duration
	Timeout       time.Duration
	Token         string
	Username      string
	Password      string
}

// DefaultConnectionConfig returns a config for url with reconnects enabled.
func DefaultConnectionConfig(url string) *ConnectionConfig {
	return &ConnectionConfig{
		URL:           url,
		Name:          "execgraph",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Connect dials NATS. It returns early when ctx is cancelled.
func Connect(ctx context.Context, cfg *ConnectionConfig, logger *slog.Logger) (*nats.Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("connection config cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("NATS URL cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("nats connection closed")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	} else if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	type result struct {
		conn *nats.Conn
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(cfg.URL, opts...)
		resultCh <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", res.err)
		}
		return res.conn, nil
	}
}

// Close drains conn, falling back to a hard close when draining fails.
func Close(conn *nats.Conn) error {
	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("drain connection: %w", err)
	}
	return nil
}

// Publisher is the subset of *nats.Conn the trace publisher needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Message is the JSON body published for each event.
type Message struct {
	RunID     string    `json:"run_id,omitempty"`
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	NodeID    string    `json:"node_id,omitempty"`
	Node      string    `json:"node,omitempty"`
	At        time.Time `json:"at"`
	Detail    string    `json:"detail"`
	Port      string    `json:"port,omitempty"`
	DataType  string    `json:"data_type,omitempty"`
	To        string    `json:"to,omitempty"`
	EpochFrom int64     `json:"epoch_from,omitempty"`
	EpochTo   int64     `json:"epoch_to,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// PublisherOption configures a NATSPublisher.
type PublisherOption func(*NATSPublisher)

// WithSubjectPrefix replaces DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) PublisherOption {
	return func(p *NATSPublisher) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithRunID stamps every message with a run id.
func WithRunID(id string) PublisherOption {
	return func(p *NATSPublisher) { p.runID = id }
}

// WithPublisherLabels sets the function used to name nodes in messages.
func WithPublisherLabels(label func(graph.NodeID) string) PublisherOption {
	return func(p *NATSPublisher) {
		if label != nil {
			p.label = label
		}
	}
}

// WithPublisherLogger sets the logger for publish failures.
func WithPublisherLogger(l *slog.Logger) PublisherOption {
	return func(p *NATSPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NATSPublisher publishes each trace event as a Message on
// "<prefix>.<kind>". Sequence numbers start at 1 and follow delivery order.
type NATSPublisher struct {
	pub    Publisher
	prefix string
	runID  string
	label  func(graph.NodeID) string
	logger *slog.Logger

	mu        sync.Mutex
	seq       int64
	published int
	err       error
}

// NewNATSPublisher creates a publisher over pub (usually a *nats.Conn).
func NewNATSPublisher(pub Publisher, opts ...PublisherOption) *NATSPublisher {
	p := &NATSPublisher{
		pub:    pub,
		prefix: DefaultSubjectPrefix,
		label:  func(id graph.NodeID) string { return id.Short() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the subject events of kind k are published on.
func (p *NATSPublisher) Subject(k trace.Kind) string {
	return p.prefix + "." + k.String()
}

// Record publishes ev. It has the trace.Subscriber signature.
func (p *NATSPublisher) Record(ev trace.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	msg := p.message(p.seq, ev)
	data, err := json.Marshal(msg)
	if err == nil {
		err = p.pub.Publish(p.Subject(ev.Kind()), data)
	}
	if err != nil {
		p.logger.Error("trace publish failed",
			"subject", p.Subject(ev.Kind()),
			"seq", p.seq,
			"error", err,
		)
		if p.err == nil {
			p.err = err
		}
		return
	}
	p.published++
}

func (p *NATSPublisher) message(seq int64, ev trace.Event) Message {
	m := Message{
		RunID:  p.runID,
		Seq:    seq,
		Kind:   ev.Kind().String(),
		At:     ev.Timestamp(),
		Detail: trace.Describe(ev, p.label),
	}
	if id := ev.NodeID(); !id.IsZero() {
		m.NodeID = id.String()
		m.Node = p.label(id)
	}
	switch e := ev.(type) {
	case trace.DataWrite:
		m.Port = e.Port
		m.DataType = e.Value.Type().String()
	case trace.Flow:
		m.To = e.To.String()
	case trace.ExecutionReset:
		m.EpochFrom = e.EpochFrom
		m.EpochTo = e.EpochTo
	case trace.NodeError:
		m.Error = e.Message
	}
	return m
}

// Attach subscribes the publisher to an emitter and returns the cancel func.
func (p *NATSPublisher) Attach(e *trace.Emitter) (cancel func()) {
	return e.Subscribe(p.Record)
}

// Published returns the number of events published successfully.
func (p *NATSPublisher) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// Err returns the first publish failure, if any.
func (p *NATSPublisher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
