// Package smtp implements the SMTP receiving subsystem: the per-connection
// session/state machine (this file) and the listener that spawns one
// session per accepted connection (listener.go).
package smtp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

// Envelope is the transient (rcpt, body) pair produced by a successful
// session, per spec.md §3.
type Envelope struct {
	Rcpt string
	Body string
}

// Outcome is what a session run produced.
type Outcome int

const (
	OutcomeHealthCheck Outcome = iota
	OutcomeSuccess
	OutcomeDiscarded
	OutcomeError
)

// SessionError is the terminal failure of a session (ProtocolViolation or
// TransportFailure in spec.md §7 terms).
type SessionError struct {
	Reason string
}

func (e *SessionError) Error() string { return "smtp session: " + e.Reason }

// Result is returned by Run.
type Result struct {
	Outcome  Outcome
	Envelope Envelope
	Err      error
}

// Session drives one connection's dialogue. It exclusively owns the socket,
// FSM state and accumulating buffers; the only thing it shares with other
// sessions is whatever its caller threads through Handler.
type Session struct {
	domain string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	log    logrus.FieldLogger

	state State
	rcpts []string
	body  string

	// failErr is set only when StateFailed was reached via a transport read
	// error, so Run can log it as a TransportFailure instead of the default
	// ProtocolViolation (spec.md §7 kinds 1 and 2 are distinguished).
	failErr error
}

// NewSession wraps conn for a fresh dialogue. domain is advertised in the
// 220 banner (spec.md §4.2).
func NewSession(conn net.Conn, domain string, log logrus.FieldLogger) *Session {
	return &Session{
		domain: domain,
		conn:   conn,
		r:      bufio.NewReader(conn),
		w:      bufio.NewWriter(conn),
		log:    log,
		state:  StateConnected,
	}
}

// responseFor returns the line to emit on entry to state s (spec.md §4.2's
// per-state response table).
func responseFor(s State, domain string) string {
	switch s {
	case StateConnected:
		return "220 " + domain
	case StateGreeted, StateMailFrom, StateRcptTo:
		return "250 OK"
	case StateData:
		return "354 End data with <CR><LF>.<CR><LF>"
	case StateFailed:
		return "502 Not Implemented"
	case StateDone, StateQuit:
		return "250 OK"
	default:
		return ""
	}
}

func (s *Session) writeLine(line string) error {
	if _, err := s.w.WriteString(line + "\r\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// Run drives the dialogue to completion: alternately emitting the response
// for the current state and reading the peer's next input, deriving an
// Event, and transitioning, until a terminal state is reached. The
// per-state response is emitted exactly once per state entered — events
// that deliberately keep the current state (NoTls, NoOp; either already
// answered inline by dispatch) do not cause it to be re-emitted.
func (s *Session) Run() Result {
	entered := State(-1)
	for {
		if s.state != entered {
			line := responseFor(s.state, s.domain)
			if line != "" {
				if err := s.writeLine(line); err != nil {
					s.log.WithError(err).Error("transport failure writing response")
					return Result{Outcome: OutcomeError, Err: &SessionError{Reason: fmt.Sprintf("write: %v", err)}}
				}
			}
			entered = s.state
		}

		switch s.state {
		case StateFailed:
			if s.failErr != nil {
				s.log.WithError(s.failErr).Error("transport failure, closing session")
				return Result{Outcome: OutcomeError, Err: &SessionError{Reason: fmt.Sprintf("transport: %v", s.failErr)}}
			}
			s.log.Info("protocol violation: out-of-order command, closing")
			return Result{Outcome: OutcomeError, Err: &SessionError{Reason: "wrong command order"}}
		case StateDone:
			// The envelope is complete. Answer one further line from the
			// peer (normally QUIT) with "250 OK" before closing; a peer that
			// hangs up instead gets no reply.
			if _, err := s.r.ReadString('\n'); err == nil {
				_ = s.writeLine(responseFor(StateQuit, s.domain))
			}
			return s.finish()
		case StateQuit:
			return s.finish()
		}

		event, healthCheck := s.readEvent()
		if healthCheck || event.Kind == EventHealthCheck {
			s.log.Trace("health check connection")
			return Result{Outcome: OutcomeHealthCheck}
		}

		s.state = transition(s.state, event)
	}
}

func (s *Session) finish() Result {
	switch s.state {
	case StateDone:
		return Result{
			Outcome: OutcomeSuccess,
			Envelope: Envelope{
				Rcpt: strings.TrimSpace(strings.Join(s.rcpts, "")),
				Body: strings.TrimSpace(s.body),
			},
		}
	case StateQuit:
		return Result{Outcome: OutcomeDiscarded}
	default:
		return Result{Outcome: OutcomeError, Err: &SessionError{Reason: "wrong command order"}}
	}
}

// readEvent reads the next logical unit of peer input for the current
// state and derives the Event it represents. The second return value is
// true for the TCP-healthcheck case where the peer closed without ever
// commanding: a read error classified as a close or reset while still in
// StateConnected. The other healthcheck signal, an empty line, comes back
// from dispatch as an EventHealthCheck event instead.
func (s *Session) readEvent() (Event, bool) {
	if s.state == StateData {
		return s.readData(), false
	}

	line, err := s.r.ReadString('\n')
	if err != nil {
		if s.state == StateConnected && isHealthCheckClose(err) {
			return Event{}, true
		}
		s.failErr = fmt.Errorf("read: %w", err)
		return Event{Kind: EventFail, Cmd: "read error"}, false
	}

	return s.dispatch(line), false
}

// isHealthCheckClose classifies a read error on an otherwise-untouched
// connection as a load-balancer probe rather than a transport failure.
func isHealthCheckClose(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	return strings.Contains(err.Error(), "reset by peer") || strings.Contains(err.Error(), "connection reset")
}

// readData reads lines until one equals exactly ".\r\n", accumulating
// everything before it verbatim, per spec.md §4.2's DATA-termination rule.
func (s *Session) readData() Event {
	var buf strings.Builder
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			s.failErr = fmt.Errorf("data read: %w", err)
			return Event{Kind: EventFail, Cmd: "data read error"}
		}
		if line == ".\r\n" {
			s.body = buf.String()
			return Event{Kind: EventEndOfFile, Buf: s.body}
		}
		buf.WriteString(line)
	}
}

// dispatch classifies a single CRLF-terminated command line into an Event,
// per spec.md §4.2's verb-dispatch table. Verbs are matched case-
// insensitively on the first whitespace-separated token of the line — full
// tokenization, not the teacher's (and the original's) "first four bytes"
// shortcut; see Design Note (b).
func (s *Session) dispatch(line string) Event {
	trimmed := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(trimmed) == "" {
		_ = s.writeLine("500 Command Unrecognized")
		return Event{Kind: EventHealthCheck}
	}

	fields := strings.Fields(trimmed)
	verb := strings.ToUpper(fields[0])

	switch verb {
	case "EHLO", "HELO":
		return Event{Kind: EventGreeting}
	case "STARTTLS":
		_ = s.writeLine("454 TLS Not available")
		_, _ = s.r.ReadString('\n') // consume one additional line, per spec.md §4.2
		return Event{Kind: EventNoTls}
	case "MAIL":
		return Event{Kind: EventMailFrom}
	case "RCPT":
		s.rcpts = append(s.rcpts, trimmed)
		return Event{Kind: EventRecipient, Rcpt: trimmed}
	case "DATA":
		return Event{Kind: EventData}
	case "NOOP":
		_ = s.writeLine("250 OK")
		return Event{Kind: EventNoOp}
	case "QUIT", "RSET":
		return Event{Kind: EventQuit}
	default:
		if s.state == StateDone || s.state == StateQuit {
			return Event{Kind: EventQuit}
		}
		return Event{Kind: EventFail, Cmd: verb}
	}
}
