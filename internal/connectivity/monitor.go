package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"handreceipt/internal/logging"
)

// Prober reports whether the submission endpoint is currently reachable.
type Prober func(ctx context.Context) bool

// DialProber returns a Prober that opens a TCP connection to the host of
// baseURL, defaulting the port from the scheme.
func DialProber(baseURL string, timeout time.Duration) (Prober, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("parse remote url: missing host in %q", baseURL)
	}
	port := parsed.Port()
	if port == "" {
		port = "80"
		if parsed.Scheme == "https" {
			port = "443"
		}
	}
	addr := net.JoinHostPort(host, port)
	dialer := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context) bool {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, nil
}

// Monitor probes reachability on an interval and whenever Kick is called,
// publishing offline/online transitions. It starts offline so the first
// successful probe is reported as an edge.
type Monitor struct {
	broadcaster

	probe    Prober
	interval time.Duration
	logger   *slog.Logger
	kick     chan struct{}

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	lastSeen time.Time
}

// NewMonitor constructs a Monitor.
func NewMonitor(probe Prober, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "connectivity"),
		kick:     make(chan struct{}, 1),
	}
}

// Start launches the probe loop. The first probe runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(loopCtx, m.done)
}

// Stop ends the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
}

// Kick requests an immediate probe. Kicks coalesce while one is pending.
func (m *Monitor) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// LastOnline returns when the endpoint was last reachable.
func (m *Monitor) LastOnline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		case <-m.kick:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	if m.probe == nil {
		return
	}
	online := m.probe(ctx)
	if ctx.Err() != nil {
		return
	}
	if online {
		m.mu.Lock()
		m.lastSeen = time.Now()
		m.mu.Unlock()
	}
	if m.set(online) {
		state := "offline"
		if online {
			state = "online"
		}
		m.logger.Info("connectivity changed",
			logging.String("state", state),
			logging.String(logging.FieldEventType, "connectivity_"+state),
		)
	}
}
