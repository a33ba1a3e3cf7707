// Package livetest provides transports and a protocol server for tests.
package livetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/recera/liveclient/pkg/live"
)

// DefaultTimeout bounds every wait in this package
const DefaultTimeout = 2 * time.Second

// ErrDialRefused is returned by Pipe.Dial while failures are queued
var ErrDialRefused = errors.New("livetest: dial refused")

var errPipeClosed = errors.New("livetest: pipe closed")

// Pipe is an in-memory live.Transport. Each Dial yields a connection whose
// server end is handed out by Accept.
type Pipe struct {
	mu       sync.Mutex
	failures int
	dials    int
	accepted chan *PipeConn
}

// NewPipe returns a transport that accepts every dial
func NewPipe() *Pipe {
	return &Pipe{accepted: make(chan *PipeConn, 16)}
}

// FailNext makes the next n dials fail
func (p *Pipe) FailNext(n int) {
	p.mu.Lock()
	p.failures += n
	p.mu.Unlock()
}

// ClearFailures makes every following dial succeed
func (p *Pipe) ClearFailures() {
	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()
}

// Dials returns the number of Dial calls so far
func (p *Pipe) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// Dial implements live.Transport
func (p *Pipe) Dial(ctx context.Context, url string) (live.Conn, error) {
	p.mu.Lock()
	p.dials++
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return nil, ErrDialRefused
	}
	p.mu.Unlock()

	client, server := newPipePair()
	select {
	case p.accepted <- server:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return client, nil
}

// Accept waits for the server end of the next dialed connection
func (p *Pipe) Accept(t testing.TB) *PipeConn {
	t.Helper()
	select {
	case conn := <-p.accepted:
		conn.t = t
		return conn
	case <-time.After(DefaultTimeout):
		t.Fatalf("livetest: no connection dialed within %s", DefaultTimeout)
		return nil
	}
}

// PipeConn is one end of an in-memory connection
type PipeConn struct {
	in   chan []byte
	peer *PipeConn
	done chan struct{}
	once *sync.Once
	t    testing.TB
}

func newPipePair() (client, server *PipeConn) {
	done := make(chan struct{})
	once := &sync.Once{}
	client = &PipeConn{in: make(chan []byte, 64), done: done, once: once}
	server = &PipeConn{in: make(chan []byte, 64), done: done, once: once}
	client.peer = server
	server.peer = client
	return client, server
}

// ReadMessage implements live.Conn
func (c *PipeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		return nil, errPipeClosed
	}
}

// WriteMessage implements live.Conn
func (c *PipeConn) WriteMessage(data []byte) error {
	select {
	case <-c.done:
		return errPipeClosed
	default:
	}
	select {
	case c.peer.in <- append([]byte(nil), data...):
		return nil
	case <-c.done:
		return errPipeClosed
	}
}

// Close implements live.Conn. Closing either end closes both.
func (c *PipeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Closed reports whether the connection has been closed
func (c *PipeConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// WaitClosed fails the test unless the connection closes in time
func (c *PipeConn) WaitClosed() {
	c.t.Helper()
	select {
	case <-c.done:
	case <-time.After(DefaultTimeout):
		c.t.Fatalf("livetest: connection still open after %s", DefaultTimeout)
	}
}

// Next reads the next frame written by the client, skipping heartbeats
func (c *PipeConn) Next() live.Frame {
	c.t.Helper()
	for {
		f := c.NextAny()
		if f.Topic != live.HeartbeatTopic {
			return f
		}
	}
}

// NextAny reads the next frame written by the client
func (c *PipeConn) NextAny() live.Frame {
	c.t.Helper()
	select {
	case data := <-c.in:
		f, err := live.DecodeFrame(data)
		if err != nil {
			c.t.Fatalf("livetest: client wrote malformed frame: %v", err)
		}
		return f
	case <-time.After(DefaultTimeout):
		c.t.Fatalf("livetest: no frame within %s", DefaultTimeout)
		return live.Frame{}
	}
}

// ExpectNone fails the test if a non-heartbeat frame arrives within d
func (c *PipeConn) ExpectNone(d time.Duration) {
	c.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case data := <-c.in:
			f, err := live.DecodeFrame(data)
			if err == nil && f.Topic == live.HeartbeatTopic {
				continue
			}
			c.t.Fatalf("livetest: unexpected frame %s", data)
		case <-deadline:
			return
		}
	}
}

// Send writes a frame to the client
func (c *PipeConn) Send(f live.Frame) {
	c.t.Helper()
	data, err := live.EncodeFrame(f)
	if err != nil {
		c.t.Fatalf("livetest: %v", err)
	}
	c.SendRaw(string(data))
}

// SendRaw writes text to the client verbatim
func (c *PipeConn) SendRaw(text string) {
	c.t.Helper()
	if err := c.WriteMessage([]byte(text)); err != nil {
		c.t.Fatalf("livetest: write: %v", err)
	}
}

// Reply answers a client request with status and response
func (c *PipeConn) Reply(req live.Frame, status string, response any) {
	c.t.Helper()
	c.Send(ReplyFrame(req, status, response))
}

// ReplyFrame builds a phx_reply for req
func ReplyFrame(req live.Frame, status string, response any) live.Frame {
	body := map[string]any{"status": status}
	if response != nil {
		body["response"] = response
	}
	payload, _ := json.Marshal(body)
	return live.Frame{
		Topic:   req.Topic,
		Event:   live.EventReply,
		Payload: payload,
		Ref:     req.Ref,
		JoinRef: req.JoinRef,
	}
}
