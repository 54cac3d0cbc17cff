package connectivity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"handreceipt/internal/logging"
)

// NetlinkWatcher listens for udev network interface events and calls onChange
// so the Monitor can re-probe without waiting for its next tick.
type NetlinkWatcher struct {
	logger   *slog.Logger
	onChange func()

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewNetlinkWatcher creates a watcher that invokes onChange for every
// matching interface event.
func NewNetlinkWatcher(logger *slog.Logger, onChange func()) *NetlinkWatcher {
	return &NetlinkWatcher{
		logger:   logging.NewComponentLogger(logger, "netlink-watcher"),
		onChange: onChange,
	}
}

// Start begins listening. Failure to open the netlink socket is logged and
// not returned; periodic probing continues without it.
func (w *NetlinkWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(w.logger, "failed to connect to netlink socket; relying on periodic probes", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the agent may open netlink sockets"),
			logging.String(logging.FieldImpact, "reconnects are noticed on the next probe interval"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true
	quit := w.quit
	go w.loop(ctx, conn, quit)

	w.logger.Info("netlink watcher started", logging.String(logging.FieldEventType, "netlink_watcher_started"))
	return nil
}

// Stop shuts the watcher down.
func (w *NetlinkWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.quit)
	w.quit = nil
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false
	w.logger.Info("netlink watcher stopped", logging.String(logging.FieldEventType, "netlink_watcher_stopped"))
}

// Running reports whether the watcher is active.
func (w *NetlinkWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *NetlinkWatcher) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(events, errs, netMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			w.handle(uevent)
		case err := <-errs:
			logging.WarnWithContext(w.logger, "netlink watcher error", "netlink_watcher_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "interface changes may be noticed late"),
			)
		}
	}
}

// netMatcher matches interface lifecycle events: SUBSYSTEM=net, ACTION=add|remove|change|move.
func netMatcher() netlink.Matcher {
	action := "add|remove|change|move|online|offline"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "net"},
	})
	return rules
}

func (w *NetlinkWatcher) handle(uevent netlink.UEvent) {
	w.logger.Debug("network interface event",
		logging.String("action", string(uevent.Action)),
		logging.String("interface", interfaceName(uevent)),
	)
	if w.onChange != nil {
		w.onChange()
	}
}

func interfaceName(uevent netlink.UEvent) string {
	if name := uevent.Env["INTERFACE"]; name != "" {
		return name
	}
	return uevent.KObj
}
