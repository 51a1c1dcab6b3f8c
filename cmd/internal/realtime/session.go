package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	maxReadBytes   = 1 << 20
	inboxSize      = 256
	maxPingFailure = 3
)

// Session is one authenticated socket connection.
type Session struct {
	id   string
	conn *websocket.Conn
	log  *slog.Logger

	writeTimeout time.Duration

	inbox     chan Envelope
	dropped   atomic.Uint64
	onDrop    func(Envelope)
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// ID returns the server-assigned session id from hello_ack.
func (s *Session) ID() string { return s.id }

// Messages yields inbound envelopes. It is closed when the session ends.
// Frames that arrive while the buffer is full are dropped, not queued.
func (s *Session) Messages() <-chan Envelope { return s.inbox }

// Dropped reports how many inbound frames were discarded on a full buffer.
func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, once Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Send writes an envelope of type typ carrying payload.
func (s *Session) Send(ctx context.Context, typ string, payload any) (Envelope, error) {
	env, err := NewEnvelope(typ, payload, time.Now())
	if err != nil {
		return Envelope{}, err
	}
	if err := s.write(ctx, env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Close ends the session with a normal closure and waits for the read loop.
func (s *Session) Close(reason string) {
	s.shutdown(websocket.StatusNormalClosure, reason)
	<-s.done
}

func (s *Session) shutdown(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		_ = s.conn.Close(code, reason)
	})
}

func (s *Session) write(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, b)
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("bad json: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("bad envelope: %w", err)
	}
	return env, nil
}

// dial connects with the bearer token, negotiates the subprotocol and
// completes the hello handshake. onDrop may be nil.
func dial(ctx context.Context, cfg Config, token string, log *slog.Logger, onDrop func(Envelope)) (*Session, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if strings.TrimSpace(cfg.Origin) != "" {
		h.Set("Origin", cfg.Origin)
	}

	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(hctx, cfg.URL, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}
	if got := conn.Subprotocol(); got != Subprotocol {
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol required")
		return nil, fmt.Errorf("%w: got %q", ErrSubprotocol, got)
	}
	conn.SetReadLimit(maxReadBytes)

	s := &Session{
		conn:         conn,
		log:          log,
		writeTimeout: cfg.WriteTimeout,
		inbox:        make(chan Envelope, inboxSize),
		onDrop:       onDrop,
		done:         make(chan struct{}),
	}

	hello, err := NewEnvelope(TypeHello, struct{}{}, time.Now())
	if err == nil {
		err = s.write(hctx, hello)
	}
	if err == nil {
		s.id, err = awaitHelloAck(hctx, conn)
	}
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "hello failed")
		return nil, fmt.Errorf("realtime: handshake: %w", err)
	}

	go s.readLoop()
	if cfg.PingInterval > 0 {
		go s.heartbeat(cfg.PingInterval, cfg.WriteTimeout)
	}
	return s, nil
}

func awaitHelloAck(ctx context.Context, conn *websocket.Conn) (string, error) {
	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			return "", err
		}
		switch env.Type {
		case TypeHelloAck:
			var p HelloAckPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return "", fmt.Errorf("decode hello_ack: %w", err)
			}
			if strings.TrimSpace(p.SessionID) == "" {
				return "", errors.New("hello_ack missing session_id")
			}
			return p.SessionID, nil
		case TypeError:
			var p ErrorPayload
			_ = json.Unmarshal(env.Payload, &p)
			return "", &ServerError{Code: p.Code, Message: p.Message}
		}
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.inbox)

	for {
		env, err := readEnvelope(context.Background(), s.conn)
		if err != nil {
			s.err = err
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.err = nil
			}
			s.shutdown(websocket.StatusGoingAway, "read failed")
			return
		}

		select {
		case s.inbox <- env:
		default:
			n := s.dropped.Add(1)
			if s.onDrop != nil {
				s.onDrop(env)
			}
			if n == 1 || n%inboxSize == 0 {
				s.log.Warn("realtime.inbox.full", "session_id", s.id, "type", env.Type, "dropped", n)
			}
		}
	}
}

func (s *Session) heartbeat(every, timeout time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := s.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			s.log.Info("realtime.ping.fail", "session_id", s.id, "failures", failures, "err", err)
			if failures >= maxPingFailure {
				s.shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}
