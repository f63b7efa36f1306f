package steering

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"spreadsim/internal/logging"
)

const readBufSize = 4096

// Session is the network half of steering: one outbound TCP connection to
// the steering server. The receive loop runs on its own goroutine and only
// ever pushes commands into the queue; the scheduler sends notifications
// back through Notify.
type Session struct {
	conn    net.Conn
	queue   *Queue
	timeout time.Duration

	writeMu   sync.Mutex
	stopOnce  sync.Once
	closeOnce sync.Once
	carry     string
}

// Dial connects to the steering server at addr (host:port). The timeout
// bounds each receive; a timeout counts as a receive failure.
func Dial(addr string, timeout time.Duration) (*Session, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, timeout), nil
}

// NewSession wraps an established connection. Used directly by tests.
func NewSession(conn net.Conn, timeout time.Duration) *Session {
	return &Session{conn: conn, queue: NewQueue(), timeout: timeout}
}

// Queue returns the command queue fed by this session.
func (s *Session) Queue() *Queue { return s.queue }

// Run receives frames until a stop command arrives or a receive fails.
// A receive failure is an implicit stop: exactly one Stop command is pushed
// and the socket is closed before returning.
func (s *Session) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	buf := make([]byte, readBufSize)
	for {
		if s.timeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
		}
		n, err := s.conn.Read(buf)
		if err != nil {
			log.Warn("steering receive failed, stopping", "err", err)
			s.stop()
			return
		}
		if s.process(ctx, string(buf[:n])) {
			s.stop()
			return
		}
	}
}

// process splits a received payload into messages and queues the parsed
// commands. A partial trailing message is carried over to the next read.
// Returns true once a stop command has been queued.
func (s *Session) process(ctx context.Context, payload string) bool {
	log := logging.FromContext(ctx)
	data := s.carry + payload
	s.carry = ""
	parts := strings.Split(data, frameSep)
	if !strings.HasSuffix(data, frameSep) {
		s.carry = parts[len(parts)-1]
	}
	parts = parts[:len(parts)-1]
	for _, msg := range parts {
		if msg == "" {
			continue
		}
		cmd, err := parseMessage(msg)
		if err != nil {
			log.Warn("dropping steering message", "err", err)
			continue
		}
		log.Debug("steering command received", "cmd", cmd.Kind.String())
		if cmd.Kind == Stop {
			s.pushStop()
			return true
		}
		s.queue.Push(cmd)
	}
	return false
}

// pushStop queues Stop at most once per session lifetime.
func (s *Session) pushStop() {
	s.stopOnce.Do(func() {
		s.queue.Push(Command{Kind: Stop})
	})
}

// stop queues the implicit Stop and closes the socket.
func (s *Session) stop() {
	s.pushStop()
	_ = s.Close()
}

// Notify sends an asynchronous message back to the steering server, e.g.
// "output:<name>|" after an artifact is written.
func (s *Session) Notify(msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write([]byte(msg))
	return err
}

// Close shuts the connection down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}
