// Package session owns the dashboard's broker connection, subscription
// registry and message router.
//
// All registry and live-state access happens on one goroutine, the loop
// started by Run. Transport callbacks and API calls hand their work to that
// loop through channels; transport calls themselves run on a separate
// outbound worker so a slow broker never stalls routing.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/layout"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/metrics"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/router"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/topics"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/transform"
)

const (
	DefaultQueueSize       = 1024
	DefaultRefreshInterval = time.Second

	rateLimitInterval = time.Second
	controlQueueSize  = 16
	maxPort           = 65535
)

type Options struct {
	Host             string
	Port             int
	LayoutPath       string
	HistorySize      int
	LogSize          int
	TextLimit        int
	QueueSize        int
	RefreshInterval  time.Duration
	RateLimit        int
	MaxExecutionTime time.Duration
}

type message struct {
	topic   string
	payload []byte
	at      time.Time
}

type controlKind int

const (
	controlConnected controlKind = iota
	controlDisconnected
	controlReconnecting
	controlConnectFailed
)

type control struct {
	kind controlKind
	err  error
}

type Session struct {
	transport Transport
	registry  *topics.Registry
	router    *router.Router
	notifier  router.Notifier
	listener  StatusListener
	limiter   *rateLimiter
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time

	messages chan message
	controls chan control
	commands chan func()
	stopped  chan struct{}

	// transport calls in order; never dropped
	outboundMu   sync.Mutex
	outbound     []func(ctx context.Context)
	outboundWake chan struct{}

	stopOnce sync.Once

	// owned by the loop
	state         State
	host          string
	port          int
	lastError     string
	wantConnected bool

	status  atomic.Pointer[Status]
	dropped atomic.Int64
}

func New(transport Transport, notifier router.Notifier, listener StatusListener, opts Options, logger zerolog.Logger) *Session {
	if opts.Host == "" {
		opts.Host = layout.DefaultHost
	}
	if opts.Port <= 0 || opts.Port > maxPort {
		opts.Port = layout.DefaultPort
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if notifier == nil {
		notifier = router.Notifiers(nil)
	}
	if listener == nil {
		listener = StatusListeners(nil)
	}

	registry := topics.NewRegistry(opts.HistorySize, logger)
	executor := transform.NewExecutor(opts.MaxExecutionTime, logger)

	s := &Session{
		transport: transport,
		registry:  registry,
		router: router.New(registry, executor, notifier, router.Options{
			TextLimit: opts.TextLimit,
			LogSize:   opts.LogSize,
		}, logger),
		notifier: notifier,
		listener: listener,
		limiter:  newRateLimiter(int64(opts.RateLimit), rateLimitInterval, logger),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		messages: make(chan message, opts.QueueSize),
		controls: make(chan control, controlQueueSize),
		commands: make(chan func()),
		stopped:  make(chan struct{}),
		state:    StateDisconnected,
		host:     opts.Host,
		port:     opts.Port,

		outboundWake: make(chan struct{}, 1),
	}

	status := s.buildStatus()
	s.status.Store(&status)

	transport.SetHandlers(Handlers{
		OnConnect: func() {
			s.postControl(control{kind: controlConnected})
		},
		OnDisconnect: func(err error) {
			s.postControl(control{kind: controlDisconnected, err: err})
		},
		OnReconnecting: func() {
			s.postControl(control{kind: controlReconnecting})
		},
		OnMessage: s.handleMessage,
	})

	return s
}

// Run drives the session until ctx is cancelled. The transport is
// disconnected on the way out.
func (s *Session) Run(ctx context.Context) error {
	defer s.stopOnce.Do(func() { close(s.stopped) })

	go s.runOutbound(ctx)
	go s.limiter.start(ctx)

	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()

	s.logger.Info().Msg("Session started")
	s.publishStatus()

	for {
		select {
		case <-ctx.Done():
			if s.wantConnected || s.state != StateDisconnected {
				s.transport.Disconnect()
			}
			s.logger.Info().Msg("Session stopped")
			return nil
		case c := <-s.controls:
			s.handleControl(c)
		case m := <-s.messages:
			s.router.Route(m.topic, m.payload, m.at)
		case cmd := <-s.commands:
			cmd()
		case <-ticker.C:
			s.publishStatus()
		}
	}
}

// Status returns the latest status. It is safe to call from any goroutine.
func (s *Session) Status() Status {
	status := *s.status.Load()
	status.Now = s.now()
	status.Dropped = s.dropped.Load()
	return status
}

// Connect starts connecting to host:port and returns without waiting for
// the broker. Empty host or zero port keep the current target. Connecting
// while already connected or connecting does nothing.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	if port < 0 || port > maxPort {
		return fmt.Errorf("invalid port %d", port)
	}
	return s.do(ctx, func() { s.connect(strings.TrimSpace(host), port) })
}

func (s *Session) Disconnect(ctx context.Context) error {
	return s.do(ctx, s.disconnect)
}

// Subscribe registers pattern. It reports false when the pattern was already
// registered, in which case nothing changes.
func (s *Session) Subscribe(ctx context.Context, pattern string, kind live.Kind, source string) (bool, error) {
	pattern = strings.TrimSpace(pattern)
	if err := topics.ValidatePattern(pattern); err != nil {
		return false, err
	}
	kind, _ = live.ParseKind(string(kind))

	source = strings.TrimSpace(source)
	program, err := transform.Compile(source)
	if err != nil {
		return false, fmt.Errorf("invalid transform for %s: %w", pattern, err)
	}

	var created bool
	err = s.do(ctx, func() {
		created = s.subscribe(topics.Subscription{Pattern: pattern, Kind: kind, Transform: source}, program)
	})
	return created, err
}

// Unsubscribe drops pattern from the registry and, when connected, from the
// broker. It reports whether the pattern was registered.
func (s *Session) Unsubscribe(ctx context.Context, pattern string) (bool, error) {
	var removed bool
	err := s.do(ctx, func() { removed = s.unsubscribe(pattern) })
	return removed, err
}

// Publish sends payload straight to the transport from the caller's
// goroutine.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte) error {
	if strings.TrimSpace(topic) == "" {
		return ErrEmptyTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Status().State != StateConnected {
		return ErrNotConnected
	}

	if err := s.transport.Publish(topic, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Snapshot copies the live state of every subscription, in registration
// order.
func (s *Session) Snapshot(ctx context.Context) ([]live.Update, error) {
	var updates []live.Update
	err := s.do(ctx, func() {
		entries := s.registry.Entries()
		updates = make([]live.Update, 0, len(entries))
		for _, entry := range entries {
			updates = append(updates, entry.State.Snapshot(entry.Pattern))
		}
	})
	return updates, err
}

func (s *Session) Subscriptions(ctx context.Context) ([]topics.Subscription, error) {
	var subs []topics.Subscription
	err := s.do(ctx, func() { subs = s.registry.All() })
	return subs, err
}

// LogTail returns up to n of the newest message log entries, oldest first.
func (s *Session) LogTail(ctx context.Context, n int) ([]router.LogEntry, error) {
	var entries []router.LogEntry
	err := s.do(ctx, func() { entries = s.router.Log().Tail(n) })
	return entries, err
}

func (s *Session) ExportLayout(ctx context.Context) (layout.Config, error) {
	var cfg layout.Config
	err := s.do(ctx, func() { cfg = s.exportLayout() })
	return cfg, err
}

// ImportLayout makes the registry match cfg. Subscriptions missing from cfg
// are removed, and ones whose kind or transform changed are replaced. The
// connection target only changes while disconnected.
func (s *Session) ImportLayout(ctx context.Context, cfg layout.Config) error {
	cfg = cfg.Normalize()

	programs := make(map[string]*transform.Program, len(cfg.Subscriptions))
	desired := make(map[string]layout.Subscription, len(cfg.Subscriptions))
	subs := make([]layout.Subscription, 0, len(cfg.Subscriptions))
	for _, sub := range cfg.Subscriptions {
		program, err := transform.Compile(sub.Transform)
		if err != nil {
			s.logger.Warn().Err(err).Str("topic", sub.Topic).Msg("Skipping subscription with invalid transform")
			continue
		}
		programs[sub.Topic] = program
		desired[sub.Topic] = sub
		subs = append(subs, sub)
	}

	return s.do(ctx, func() {
		for _, existing := range s.registry.All() {
			want, ok := desired[existing.Pattern]
			if !ok || want.Type != existing.Kind || want.Transform != existing.Transform {
				s.unsubscribe(existing.Pattern)
			}
		}
		for _, sub := range subs {
			s.subscribe(topics.Subscription{Pattern: sub.Topic, Kind: sub.Type, Transform: sub.Transform}, programs[sub.Topic])
		}

		if s.state == StateDisconnected && !s.wantConnected {
			s.host, s.port = cfg.Host, cfg.Port
		} else if s.host != cfg.Host || s.port != cfg.Port {
			s.logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("Layout broker ignored while connected")
		}
		s.publishStatus()
	})
}

// SaveLayout exports the registry and writes it to path, or to the
// configured layout path when path is empty.
func (s *Session) SaveLayout(ctx context.Context, path string) error {
	if path == "" {
		path = s.opts.LayoutPath
	}
	if path == "" {
		return errors.New("no layout path configured")
	}

	cfg, err := s.ExportLayout(ctx)
	if err != nil {
		return err
	}
	if err := layout.Save(path, cfg); err != nil {
		return err
	}

	s.logger.Info().Str("path", path).Int("subscriptions", len(cfg.Subscriptions)).Msg("Saved layout")
	return nil
}

func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}

	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) connect(host string, port int) {
	if s.state != StateDisconnected {
		s.logger.Debug().Str("state", s.state.String()).Msg("Connect ignored")
		return
	}

	if host != "" {
		s.host = host
	}
	if port > 0 {
		s.port = port
	}
	s.state = StateConnecting
	s.wantConnected = true
	s.lastError = ""

	host, port = s.host, s.port
	s.logger.Info().Str("host", host).Int("port", port).Msg("Connecting to MQTT broker")

	s.enqueue("connect", func(ctx context.Context) {
		if err := s.transport.Connect(ctx, host, port); err != nil {
			s.postControl(control{kind: controlConnectFailed, err: err})
		}
	})
	s.publishStatus()
}

func (s *Session) disconnect() {
	active := s.wantConnected || s.state != StateDisconnected
	s.wantConnected = false
	if !active {
		return
	}

	s.state = StateDisconnected
	s.logger.Info().Msg("Disconnecting from MQTT broker")
	s.enqueue("disconnect", func(context.Context) {
		s.transport.Disconnect()
	})
	s.publishStatus()
}

func (s *Session) subscribe(sub topics.Subscription, program *transform.Program) bool {
	entry, created := s.registry.Add(sub)
	if !created {
		return false
	}
	entry.Program = program
	metrics.SetActiveSubscriptions(s.registry.Len())

	if s.state == StateConnected {
		s.enqueueSubscribe(sub.Pattern)
	}

	s.notifier.StateChanged(entry.State.Snapshot(entry.Pattern))
	s.publishStatus()
	return true
}

func (s *Session) unsubscribe(pattern string) bool {
	if !s.registry.Remove(pattern) {
		return false
	}
	metrics.SetActiveSubscriptions(s.registry.Len())

	if s.state == StateConnected {
		s.enqueue("unsubscribe", func(context.Context) {
			if err := s.transport.Unsubscribe(pattern); err != nil {
				s.logger.Warn().Err(err).Str("pattern", pattern).Msg("Failed to unsubscribe")
			}
		})
	}

	s.listener.SubscriptionRemoved(pattern)
	s.publishStatus()
	return true
}

func (s *Session) enqueueSubscribe(pattern string) {
	s.enqueue("subscribe", func(context.Context) {
		if err := s.transport.Subscribe(pattern); err != nil {
			s.logger.Warn().Err(err).Str("pattern", pattern).Msg("Failed to subscribe")
		}
	})
}

func (s *Session) exportLayout() layout.Config {
	subs := s.registry.All()
	cfg := layout.Config{
		Host:          s.host,
		Port:          s.port,
		Subscriptions: make([]layout.Subscription, 0, len(subs)),
	}
	for _, sub := range subs {
		cfg.Subscriptions = append(cfg.Subscriptions, layout.Subscription{
			Topic:     sub.Pattern,
			Type:      sub.Kind,
			Transform: sub.Transform,
		})
	}
	return cfg
}

func (s *Session) handleControl(c control) {
	switch c.kind {
	case controlConnected:
		if !s.wantConnected {
			s.logger.Debug().Msg("Ignoring connect after disconnect request")
			return
		}
		s.state = StateConnected
		s.lastError = ""

		subs := s.registry.All()
		patterns := make([]string, 0, len(subs))
		for _, sub := range subs {
			patterns = append(patterns, sub.Pattern)
		}
		s.logger.Info().Int("subscriptions", len(patterns)).Msg("Connected, restoring subscriptions")
		s.enqueue("resubscribe", func(ctx context.Context) {
			for _, pattern := range patterns {
				if ctx.Err() != nil {
					return
				}
				if err := s.transport.Subscribe(pattern); err != nil {
					s.logger.Warn().Err(err).Str("pattern", pattern).Msg("Failed to subscribe")
				}
			}
		})

	case controlDisconnected:
		if s.state == StateDisconnected {
			return
		}
		s.state = StateDisconnected
		if c.err != nil {
			s.lastError = c.err.Error()
			s.logger.Warn().Err(c.err).Msg("Connection lost")
		}

	case controlReconnecting:
		if !s.wantConnected {
			return
		}
		s.state = StateConnecting
		s.logger.Info().Msg("Reconnecting to MQTT broker")

	case controlConnectFailed:
		if s.state == StateConnected {
			return
		}
		s.state = StateDisconnected
		s.wantConnected = false
		s.lastError = c.err.Error()
		s.logger.Error().Err(c.err).Msg("Failed to connect to MQTT broker")
	}

	s.publishStatus()
}

func (s *Session) handleMessage(topic string, payload []byte) {
	if !s.limiter.allow() {
		s.dropped.Add(1)
		metrics.RecordDropped("rate_limit")
		return
	}

	select {
	case s.messages <- message{topic: topic, payload: payload, at: s.now()}:
	default:
		s.dropped.Add(1)
		metrics.RecordDropped("queue_full")
	}
}

func (s *Session) postControl(c control) {
	select {
	case s.controls <- c:
	case <-s.stopped:
	}
}

// enqueue hands a transport call to the outbound worker. It never blocks
// the loop and never drops the call.
func (s *Session) enqueue(name string, op func(ctx context.Context)) {
	s.outboundMu.Lock()
	s.outbound = append(s.outbound, op)
	pending := len(s.outbound)
	s.outboundMu.Unlock()

	s.logger.Trace().Str("operation", name).Int("pending", pending).Msg("Queued transport call")

	select {
	case s.outboundWake <- struct{}{}:
	default:
	}
}

func (s *Session) nextOutbound() func(ctx context.Context) {
	s.outboundMu.Lock()
	defer s.outboundMu.Unlock()
	if len(s.outbound) == 0 {
		return nil
	}
	op := s.outbound[0]
	s.outbound[0] = nil
	s.outbound = s.outbound[1:]
	return op
}

func (s *Session) runOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.outboundWake:
		}

		for op := s.nextOutbound(); op != nil; op = s.nextOutbound() {
			if ctx.Err() != nil {
				return
			}
			op(ctx)
		}
	}
}

func (s *Session) buildStatus() Status {
	return Status{
		State:         s.state,
		Host:          s.host,
		Port:          s.port,
		Subscriptions: s.registry.Len(),
		Dropped:       s.dropped.Load(),
		LastError:     s.lastError,
		Now:           s.now(),
	}
}

func (s *Session) publishStatus() {
	status := s.buildStatus()
	s.status.Store(&status)
	s.listener.StatusChanged(status)
}
