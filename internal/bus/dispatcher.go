// Package bus wraps the external message broker (spec's "Bus (authoritative
// contract)") behind a small dispatch table: handlers are registered against
// topic patterns before Start, and every inbound message is routed to
// exactly the handlers whose pattern matches, on the single goroutine the
// broker client delivers on. This is the "one bus dispatcher advances the
// message loop" worker described in spec §5.
package bus

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler processes one inbound message. It runs on the dispatcher's single
// delivery goroutine and must not block for more than ~100ms (spec §5); any
// network I/O it performs must carry its own deadline.
type Handler func(ctx context.Context, topic string, payload []byte)

type registration struct {
	pattern string
	handler Handler
}

// Dispatcher owns the broker connection and the topic-pattern -> handler
// table. All C1-C4 state mutation driven by inbound messages happens on
// this dispatcher's goroutine; no lock is needed between that state and the
// dispatcher itself (spec §5 "Shared state & locking").
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.RWMutex
	regs  []registration
	client pahomqtt.Client
}

// NewDispatcher creates a Dispatcher. Call Register for every topic pattern
// of interest before calling Start.
func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, logger: logger}
}

// Register adds a pattern -> handler entry. Safe to call before Start only;
// the broker subscription for each pattern is established in Start.
func (d *Dispatcher) Register(pattern string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs = append(d.regs, registration{pattern: pattern, handler: handler})
}

// Route dispatches payload as if it arrived on topic, without touching the
// broker. Used by Start's message callback and directly by tests.
func (d *Dispatcher) Route(ctx context.Context, topic string, payload []byte) {
	d.mu.RLock()
	regs := append([]registration(nil), d.regs...)
	d.mu.RUnlock()

	for _, r := range regs {
		if MatchTopic(r.pattern, topic) {
			r.handler(ctx, topic, payload)
		}
	}
}

// Start connects to the broker and subscribes to every registered pattern.
// Connection loss triggers the client's built-in auto-reconnect; state
// transitions are logged, mirroring internal/mqtt's connect/health logging.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.cfg.BrokerURL == "" {
		d.logger.Warn("bus dispatcher starting with no broker configured; messages will not be received")
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(d.cfg.BrokerURL).
		SetClientID(d.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(d.cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			d.logger.Warn("bus connection lost; will reconnect", zap.Error(err))
		}).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			d.logger.Info("bus connected", zap.String("broker_url", d.cfg.BrokerURL))
		})

	if d.cfg.Username != "" {
		opts.SetUsername(d.cfg.Username)
		opts.SetPassword(d.cfg.Password)
	}

	d.client = pahomqtt.NewClient(opts)
	token := d.client.Connect()
	if !token.WaitTimeout(d.cfg.ConnectTimeout) {
		return fmt.Errorf("bus connect to %s timed out", d.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("bus connect to %s: %w", d.cfg.BrokerURL, err)
	}

	d.mu.RLock()
	patterns := make(map[string]struct{}, len(d.regs))
	for _, r := range d.regs {
		patterns[r.pattern] = struct{}{}
	}
	d.mu.RUnlock()

	for pattern := range patterns {
		pattern := pattern
		subToken := d.client.Subscribe(pattern, d.cfg.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			d.Route(context.Background(), msg.Topic(), msg.Payload())
		})
		if !subToken.WaitTimeout(d.cfg.ConnectTimeout) {
			return fmt.Errorf("subscribe %q timed out", pattern)
		}
		if err := subToken.Error(); err != nil {
			return fmt.Errorf("subscribe %q: %w", pattern, err)
		}
	}
	return nil
}

// Stop disconnects from the broker, if connected.
func (d *Dispatcher) Stop() {
	if d.client != nil && d.client.IsConnected() {
		d.client.Disconnect(250)
	}
}

// Publish sends payload to topic at the dispatcher's configured QoS. Publish
// failures are logged by the caller; per spec §7, a failed publish must not
// be treated as a duplicate-safe retry point on its own -- callers own that
// policy (see internal/engine's gating, which leaves the Action queued on
// failure).
func (d *Dispatcher) Publish(ctx context.Context, topic string, payload []byte) error {
	if d.client == nil || !d.client.IsConnected() {
		return fmt.Errorf("bus publish %q: not connected", topic)
	}
	token := d.client.Publish(topic, d.cfg.QoS, false, payload)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return token.Error()
}
