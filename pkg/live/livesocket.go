package live

import (
	"sync"

	"go.uber.org/zap"
)

// LiveSocket owns a Socket and the channels multiplexed over it. It routes
// inbound frames by topic and rejoins every channel when the socket opens.
type LiveSocket struct {
	socket  *Socket
	log     *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	channels map[string]*Channel
	order    []string
}

type liveConfig struct {
	policy     ReconnectPolicy
	log        *zap.Logger
	metrics    *Metrics
	socketOpts []SocketOption
}

// Option configures a LiveSocket
type Option func(*liveConfig)

// WithPolicy sets the reconnect policy. A zero MaxAttempts means unbounded.
func WithPolicy(p ReconnectPolicy) Option {
	return func(c *liveConfig) { c.policy = p }
}

// WithMaxAttempts sets the reconnect ceiling on the default policy
func WithMaxAttempts(n int) Option {
	return func(c *liveConfig) { c.policy.MaxAttempts = n }
}

// WithLiveLogger sets the logger shared by the socket and its channels
func WithLiveLogger(l *zap.Logger) Option {
	return func(c *liveConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLiveMetrics sets the metrics shared by the socket and its channels
func WithLiveMetrics(m *Metrics) Option {
	return func(c *liveConfig) { c.metrics = m }
}

// WithSocketOptions passes options through to the underlying Socket
func WithSocketOptions(opts ...SocketOption) Option {
	return func(c *liveConfig) { c.socketOpts = append(c.socketOpts, opts...) }
}

// NewLiveSocket creates an orchestrator for url. The reconnect ceiling
// defaults to DefaultMaxAttempts.
func NewLiveSocket(url string, opts ...Option) *LiveSocket {
	cfg := liveConfig{
		policy: ReconnectPolicy{
			BaseDelay:   DefaultBaseDelay,
			MaxDelay:    DefaultMaxDelay,
			MaxAttempts: DefaultMaxAttempts,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	socketOpts := []SocketOption{
		WithLogger(cfg.log),
		WithMetrics(cfg.metrics),
		WithReconnectPolicy(cfg.policy),
	}
	socketOpts = append(socketOpts, cfg.socketOpts...)

	ls := &LiveSocket{
		socket:   NewSocket(url, socketOpts...),
		log:      cfg.log.Named("livesocket"),
		metrics:  cfg.metrics,
		channels: make(map[string]*Channel),
	}
	ls.socket.OnOpen(ls.rejoinAll)
	ls.socket.OnMessage(ls.route)
	return ls
}

// Socket returns the underlying transport session
func (ls *LiveSocket) Socket() *Socket {
	return ls.socket
}

// Connect opens the session
func (ls *LiveSocket) Connect() {
	ls.socket.Connect()
}

// Disconnect closes the session and stops reconnecting
func (ls *LiveSocket) Disconnect() {
	ls.socket.Disconnect()
}

// Connected reports whether the transport is open
func (ls *LiveSocket) Connected() bool {
	return ls.socket.Connected()
}

// Channel returns the channel for topic, creating it with params if it does
// not exist yet. Params of an existing channel are left unchanged.
func (ls *LiveSocket) Channel(topic string, params map[string]any) *Channel {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ch, ok := ls.channels[topic]; ok {
		return ch
	}
	ch := newChannel(topic, params, ls.socket, ls.log, ls.metrics)
	ls.channels[topic] = ch
	ls.order = append(ls.order, topic)
	return ch
}

// Lookup returns the channel for topic if one is registered
func (ls *LiveSocket) Lookup(topic string) (*Channel, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ch, ok := ls.channels[topic]
	return ch, ok
}

// Leave sends phx_leave for topic and forgets the channel. Later frames for
// the topic are dropped.
func (ls *LiveSocket) Leave(topic string) {
	ls.mu.Lock()
	ch, ok := ls.channels[topic]
	if ok {
		delete(ls.channels, topic)
		for i, t := range ls.order {
			if t == topic {
				ls.order = append(ls.order[:i:i], ls.order[i+1:]...)
				break
			}
		}
	}
	ls.mu.Unlock()

	if ok {
		ch.Leave()
	}
}

// Channels returns the registered channels in index order
func (ls *LiveSocket) Channels() []*Channel {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	chans := make([]*Channel, 0, len(ls.order))
	for _, topic := range ls.order {
		chans = append(chans, ls.channels[topic])
	}
	return chans
}

func (ls *LiveSocket) rejoinAll() {
	chans := ls.Channels()
	ls.log.Debug("rejoining channels", zap.Int("count", len(chans)))
	for _, ch := range chans {
		ch.Rejoin()
	}
}

func (ls *LiveSocket) route(f Frame) {
	ch, ok := ls.Lookup(f.Topic)
	if !ok {
		ls.log.Debug("no channel for topic", zap.String("topic", f.Topic), zap.String("event", f.Event))
		return
	}
	ch.handle(f)
}
