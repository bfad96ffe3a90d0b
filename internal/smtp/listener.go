package smtp

import (
	"errors"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Handler is called once per accepted connection's completed Session. It is
// the only capability a session shares with the rest of the process: a
// Feed Store handle threaded in through the closure passed to NewListener.
type Handler func(Envelope) error

// Listener accepts TCP connections and spawns one independent goroutine per
// connection, per spec.md §4.1. It never blocks on a session and never
// tears down on a session's error.
type Listener struct {
	domain string
	handle Handler
	log    logrus.FieldLogger
	nextID uint64
}

// NewListener builds a Listener that advertises domain in its banners and
// hands every successfully-parsed Envelope to handle.
func NewListener(domain string, handle Handler, log logrus.FieldLogger) *Listener {
	return &Listener{domain: domain, handle: handle, log: log}
}

// Serve accepts connections on ln until it is closed (e.g. by the caller on
// shutdown), at which point Accept's error is treated as a clean exit
// rather than logged as a failure.
func (l *Listener) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedError(err) {
				return nil
			}
			return err
		}

		id := atomic.AddUint64(&l.nextID, 1)
		connLog := l.log.WithFields(logrus.Fields{
			"conn_id":     id,
			"remote_addr": conn.RemoteAddr().String(),
		})

		go l.serveConn(conn, connLog)
	}
}

func (l *Listener) serveConn(conn net.Conn, log logrus.FieldLogger) {
	defer conn.Close()

	log.Info("connection accepted")

	session := NewSession(conn, l.domain, log)
	result := session.Run()

	switch result.Outcome {
	case OutcomeHealthCheck:
		log.Trace("health check, no envelope")
	case OutcomeDiscarded:
		log.Debug("session ended without an envelope")
	case OutcomeError:
		log.WithError(result.Err).Info("session ended with an error")
	case OutcomeSuccess:
		if err := l.handle(result.Envelope); err != nil {
			log.WithError(err).Error("envelope handling failed")
		}
	}
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
