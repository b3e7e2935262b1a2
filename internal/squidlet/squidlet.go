// ============================================================================
// TheSquid Squidlet - Task Executor
// ============================================================================
//
// Package: internal/squidlet
// File: squidlet.go
// Purpose: Single-task-at-a-time TCP server executing dispatched tasks
//
// Execution Model:
//   The squidlet deliberately has no internal concurrency. One process is
//   one worker slot; parallelism comes from running many squidlet
//   processes. The loop is:
//
//   Listening -> Accepted -> Receiving-Header
//     -> (Refused -> Listening)
//     -> Accepted-Replying -> Receiving-Payload -> Executing
//     -> Sending-Result -> Awaiting-Acks -> Listening
//
//   Any I/O error at any state returns to Listening.
//
// Shutdown:
//   A process-wide atomic flag set by the SIGINT handler, checked once per
//   accept iteration. The listener carries a short deadline so the accept
//   never blocks past a check. SIGPIPE (a stale squad tearing down a
//   connection mid-write) is logged and ignored.
//
// ============================================================================

// Package squidlet implements the executor process
package squidlet

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thesquid/thesquid/internal/protocol"
	"github.com/thesquid/thesquid/pkg/types"
)

// Port probing range used when the operator does not pick a port
const (
	ProbePortMin = 9000
	ProbePortMax = 9999
)

// acceptPollInterval bounds how long a blocked accept can delay a shutdown
// flag check
const acceptPollInterval = 1 * time.Second

// Squidlet is a single-slot task executor
type Squidlet struct {
	ip       string
	port     int
	listener *net.TCPListener
	handlers map[types.TaskType]Handler
	stopping atomic.Bool
	log      *zap.Logger
}

// reuseAddr marks the listening socket with SO_REUSEADDR so a restarted
// squidlet can rebind its port immediately.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

// New creates a squidlet bound to ip:port. With port <= 0 the ports
// 9000..9999 are probed in order and the first free one is taken.
func New(ip string, port int, logger *zap.Logger) (*Squidlet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ip == "" {
		ip = "0.0.0.0"
	}

	lc := net.ListenConfig{Control: reuseAddr}

	var listener net.Listener
	var err error
	if port > 0 {
		listener, err = lc.Listen(context.Background(), "tcp", fmt.Sprintf("%s:%d", ip, port))
		if err != nil {
			return nil, fmt.Errorf("listen on %s:%d: %w", ip, port, err)
		}
	} else {
		for p := ProbePortMin; p <= ProbePortMax; p++ {
			listener, err = lc.Listen(context.Background(), "tcp", fmt.Sprintf("%s:%d", ip, p))
			if err == nil {
				port = p
				break
			}
		}
		if listener == nil {
			return nil, fmt.Errorf("no free port in %d..%d: %w", ProbePortMin, ProbePortMax, err)
		}
	}

	s := &Squidlet{
		ip:       ip,
		port:     port,
		listener: listener.(*net.TCPListener),
		handlers: make(map[types.TaskType]Handler),
		log:      logger,
	}
	s.handlers[types.TaskDummy] = handleDummy
	s.handlers[types.TaskBenchmark] = handleBenchmark
	s.handlers[types.TaskRender] = handleRender
	return s, nil
}

// Port returns the bound TCP port
func (s *Squidlet) Port() int {
	return s.port
}

// Info returns the "<pid> <hostname> <ip>:<port>" identity line
func (s *Squidlet) Info() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%d %s %s:%d", os.Getpid(), hostname, s.ip, s.port)
}

// Stop requests the run loop to exit after the current iteration
func (s *Squidlet) Stop() {
	s.stopping.Store(true)
}

// InstallSignalHandlers wires SIGINT to the shutdown flag and logs SIGPIPE
// without dying. The handlers do no other work.
func (s *Squidlet) InstallSignalHandlers() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGPIPE)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGINT:
				s.log.Info("received SIGINT, stopping")
				s.stopping.Store(true)
			case syscall.SIGPIPE:
				s.log.Warn("received SIGPIPE, continuing")
			}
		}
	}()
}

// Run accepts and serves one connection at a time until Stop or SIGINT.
// The listener is closed on exit.
func (s *Squidlet) Run() error {
	defer s.listener.Close()

	for !s.stopping.Load() {
		s.listener.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := s.listener.Accept()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.serveConn(conn)
	}
	return nil
}

// serveConn handles one request/reply exchange. The connection is
// single-shot: it is closed whatever happens.
func (s *Squidlet) serveConn(conn net.Conn) {
	defer conn.Close()

	header, err := protocol.ReadHeader(conn)
	if err != nil {
		s.log.Warn("dropping connection", zap.Error(err))
		return
	}

	handler, known := s.handlers[header.Type]
	if err := protocol.WriteAcceptByte(conn, known); err != nil {
		s.log.Warn("accept byte not sent", zap.Error(err))
		return
	}
	if !known {
		s.log.Info("refused task",
			zap.Stringer("type", header.Type),
			zap.Uint64("id", header.ID),
			zap.Uint64("subID", header.SubID))
		return
	}

	payload, err := protocol.ReadBlob(conn)
	if err != nil {
		s.log.Warn("payload not received", zap.Error(err))
		return
	}

	s.log.Info("executing task",
		zap.Stringer("type", header.Type),
		zap.Uint64("id", header.ID),
		zap.Uint64("subID", header.SubID))

	start := time.Now()
	result := handler(s, header, string(payload))

	s.log.Info("task done",
		zap.Uint64("id", header.ID),
		zap.Uint64("subID", header.SubID),
		zap.Duration("elapsed", time.Since(start)))

	// A missing ack only means the squad moved on; local state is intact.
	if err := protocol.WriteResult(conn, []byte(result)); err != nil {
		s.log.Warn("result not delivered", zap.Error(err))
	}
}
