package livetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recera/liveclient/pkg/live"
)

// JoinFunc decides the reply to a join request
type JoinFunc func(topic string, params map[string]any) (status string, response any)

// Server is a websocket endpoint speaking the channel protocol. It answers
// joins with OnJoin, acknowledges heartbeats and records every other frame.
type Server struct {
	OnJoin JoinFunc

	upgrader websocket.Upgrader
	http     *httptest.Server
	frames   chan live.Frame

	mu       sync.Mutex
	sessions []*Session
}

// Session is one accepted client connection
type Session struct {
	conn     *websocket.Conn
	sendChan chan []byte
	closed   chan struct{}
	once     sync.Once
}

// NewServer starts a test server. It is closed when the test ends.
func NewServer(t testing.TB, onJoin JoinFunc) *Server {
	t.Helper()
	s := &Server{
		OnJoin: onJoin,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		frames: make(chan live.Frame, 256),
	}
	s.http = httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// address of the endpoint
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/live/websocket"
}

// Close drops every session and stops the server
func (s *Server) Close() {
	s.DropAll()
	s.http.Close()
}

// DropAll closes every open session, as a server restart would
func (s *Server) DropAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

// Sessions returns the number of sessions accepted so far and still open
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Broadcast sends f to every open session
func (s *Server) Broadcast(f live.Frame) {
	data, err := live.EncodeFrame(f)
	if err != nil {
		return
	}
	s.mu.Lock()
	sessions := append([]*Session(nil), s.sessions...)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.send(data)
	}
}

// Expect waits for the next recorded frame with the given event
func (s *Server) Expect(t testing.TB, event string) live.Frame {
	t.Helper()
	deadline := time.After(DefaultTimeout)
	for {
		select {
		case f := <-s.frames:
			if f.Event == event {
				return f
			}
		case <-deadline:
			t.Fatalf("livetest: no %q frame within %s", event, DefaultTimeout)
			return live.Frame{}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sess := &Session{
		conn:     conn,
		sendChan: make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	s.mu.Unlock()

	go sess.writer()
	s.readLoop(sess)
}

func (s *Server) readLoop(sess *Session) {
	defer func() {
		sess.close()
		s.mu.Lock()
		for i, other := range s.sessions {
			if other == sess {
				s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	for {
		messageType, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		f, err := live.DecodeFrame(data)
		if err != nil {
			continue
		}

		switch {
		case f.Topic == live.HeartbeatTopic:
			s.reply(sess, f, live.StatusOK, map[string]any{})
			continue
		case f.Event == live.EventJoin:
			status, response := live.StatusOK, any(map[string]any{})
			if s.OnJoin != nil {
				var join live.JoinPayload
				json.Unmarshal(f.Payload, &join)
				status, response = s.OnJoin(f.Topic, join.Params)
			}
			s.reply(sess, f, status, response)
		}

		select {
		case s.frames <- f:
		default:
		}
	}
}

func (s *Server) reply(sess *Session, req live.Frame, status string, response any) {
	data, err := live.EncodeFrame(ReplyFrame(req, status, response))
	if err != nil {
		return
	}
	sess.send(data)
}

func (sess *Session) send(data []byte) {
	select {
	case sess.sendChan <- data:
	case <-sess.closed:
	}
}

func (sess *Session) writer() {
	for {
		select {
		case message := <-sess.sendChan:
			sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := sess.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				sess.close()
				return
			}
		case <-sess.closed:
			return
		}
	}
}

func (sess *Session) close() {
	sess.once.Do(func() {
		close(sess.closed)
		sess.conn.Close()
	})
}
