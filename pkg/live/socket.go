package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Socket owns one logical connection. It dials, emits liveness frames while
// open, and redials with backoff after an unexpected close. It carries no
// protocol semantics beyond the heartbeat frame.
//
// All open/message/close/error observers run on the socket's own goroutine,
// in the order frames arrive.
type Socket struct {
	url       string
	transport Transport
	heartbeat time.Duration
	backoff   *backoff
	refs      RefSource
	log       *zap.Logger
	metrics   *Metrics

	mu     sync.Mutex
	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}

	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex

	onOpen    observers[func()]
	onClose   observers[func()]
	onError   observers[func(error)]
	onMessage observers[func(Frame)]
}

// SocketOption configures a Socket
type SocketOption func(*Socket)

// WithTransport replaces the default websocket transport
func WithTransport(t Transport) SocketOption {
	return func(s *Socket) { s.transport = t }
}

// WithHeartbeatInterval sets the liveness interval. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) SocketOption {
	return func(s *Socket) { s.heartbeat = d }
}

// WithReconnectPolicy sets the reconnect policy
func WithReconnectPolicy(p ReconnectPolicy) SocketOption {
	return func(s *Socket) { s.backoff = newBackoff(p) }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) SocketOption {
	return func(s *Socket) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *Metrics) SocketOption {
	return func(s *Socket) { s.metrics = m }
}

// WithRefSource replaces the ref generator
func WithRefSource(r RefSource) SocketOption {
	return func(s *Socket) { s.refs = r }
}

// NewSocket creates a socket for url. It does not connect.
func NewSocket(url string, opts ...SocketOption) *Socket {
	s := &Socket{
		url:       url,
		transport: NewWebsocketTransport(),
		heartbeat: DefaultHeartbeatInterval,
		backoff:   newBackoff(DefaultReconnectPolicy()),
		refs:      newULIDRefs(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("socket").With(zap.String("url", url))
	return s
}

// URL returns the endpoint the socket dials
func (s *Socket) URL() string {
	return s.url
}

// OnOpen registers fn to run after every successful connect
func (s *Socket) OnOpen(fn func()) func() { return s.onOpen.add(fn) }

// OnClose registers fn to run after the connection closes
func (s *Socket) OnClose(fn func()) func() { return s.onClose.add(fn) }

// OnError registers fn for dial, parse and reconnect diagnostics
func (s *Socket) OnError(fn func(error)) func() { return s.onError.add(fn) }

// OnMessage registers fn for every parsed inbound frame
func (s *Socket) OnMessage(fn func(Frame)) func() { return s.onMessage.add(fn) }

// Connect starts the connection loop. It is a no-op while the loop is
// already running and starts over after Disconnect or exhaustion.
func (s *Socket) Connect() {
	s.mu.Lock()
	if s.cancel != nil {
		select {
		case <-s.done:
			// the previous loop gave up on its own
			s.cancel()
		default:
			s.mu.Unlock()
			return
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.backoff.Reset()
	go s.run(ctx, done)
}

// Disconnect stops the loop, cancels heartbeat and reconnect timers and
// closes the connection. Safe to call more than once.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	// cancel under mu so setConn cannot install a connection afterwards
	if s.cancel != nil {
		s.cancel()
	}
	conn := s.conn
	s.cancel = nil
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Done returns a channel closed when the most recent connection loop exits,
// or nil if Connect was never called.
func (s *Socket) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Connected reports whether the transport is open
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// MakeRef returns a fresh correlation ref
func (s *Socket) MakeRef() string {
	return s.refs.NextRef()
}

// Send writes a frame. When the transport is not open the frame is dropped
// and the failure is logged; it is never returned to the caller.
func (s *Socket) Send(f Frame) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		s.drop(f, ErrNotConnected)
		return
	}

	data, err := EncodeFrame(f)
	if err != nil {
		s.log.Error("encode frame", zap.Error(err))
		return
	}

	s.writeMu.Lock()
	err = conn.WriteMessage(data)
	s.writeMu.Unlock()
	if err != nil {
		s.drop(f, err)
		return
	}
	s.metrics.incSent()
	s.log.Debug("sent", zap.String("topic", f.Topic), zap.String("event", f.Event), zap.String("ref", f.Ref))
}

func (s *Socket) drop(f Frame, err error) {
	s.metrics.incDropped()
	s.log.Warn("dropping frame", zap.Error(&TransportError{
		Op:    "send",
		Topic: f.Topic,
		Event: f.Event,
		Err:   err,
	}))
}

func (s *Socket) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		conn, err := s.transport.Dial(ctx, s.url)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("dial failed", zap.Error(err))
			s.emitError(err)
			if !s.wait(ctx) {
				return
			}
			continue
		}
		if !s.setConn(ctx, conn) {
			conn.Close()
			return
		}

		if ctx.Err() != nil {
			s.clearConn(conn)
			conn.Close()
			return
		}
		s.backoff.Reset()
		s.metrics.setConnected(true)
		s.log.Info("connected")
		s.emitOpen()

		s.serve(ctx, conn)

		s.clearConn(conn)
		s.metrics.setConnected(false)
		s.log.Info("disconnected")
		s.emitClose()

		if ctx.Err() != nil {
			return
		}
		if !s.wait(ctx) {
			return
		}
	}
}

func (s *Socket) setConn(ctx context.Context, conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.conn = conn
	return true
}

func (s *Socket) clearConn(conn Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

// wait sleeps for the next backoff delay. It returns false when the loop
// should stop, either because ctx ended or the attempt ceiling was reached.
func (s *Socket) wait(ctx context.Context) bool {
	delay, ok := s.backoff.Next()
	if !ok {
		err := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, s.backoff.Attempts())
		s.log.Error("giving up", zap.Error(err))
		s.emitError(err)
		return false
	}

	s.metrics.incReconnect()
	s.log.Info("reconnect scheduled", zap.Int("attempt", s.backoff.Attempts()), zap.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// serve reads frames until the connection fails or ctx ends
func (s *Socket) serve(ctx context.Context, conn Conn) {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-serveCtx.Done()
		conn.Close()
	}()
	if s.heartbeat > 0 {
		go s.heartbeatLoop(serveCtx)
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("read failed", zap.Error(err))
			}
			return
		}
		s.metrics.incReceived()

		frame, err := DecodeFrame(data)
		if err != nil {
			s.metrics.incParseError()
			s.log.Warn("malformed frame", zap.Error(err))
			s.emitError(err)
			continue
		}
		s.emitMessage(frame)
	}
}

func (s *Socket) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.metrics.incHeartbeat()
			s.Send(Frame{
				Topic:   HeartbeatTopic,
				Event:   EventHeartbeat,
				Payload: emptyObject,
				Ref:     s.MakeRef(),
			})
		}
	}
}

func (s *Socket) emitOpen() {
	for _, fn := range s.onOpen.snapshot() {
		fn()
	}
}

func (s *Socket) emitClose() {
	for _, fn := range s.onClose.snapshot() {
		fn()
	}
}

func (s *Socket) emitError(err error) {
	for _, fn := range s.onError.snapshot() {
		fn(err)
	}
}

func (s *Socket) emitMessage(f Frame) {
	for _, fn := range s.onMessage.snapshot() {
		fn(f)
	}
}
