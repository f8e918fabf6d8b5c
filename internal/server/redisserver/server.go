package redisserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/cardinalkv/cardinal/internal/storage/memory"
	"github.com/cardinalkv/cardinal/internal/telemetry/metric"
)

// Config holds the Redis server configuration.
type Config struct {
	// Addr is the listen address.
	Addr string
	// MaxMessageSize is the receive buffer capacity per connection. A
	// request larger than this is rejected and the connection closed.
	MaxMessageSize int
	// Dir and DBFilename are reported by CONFIG GET.
	Dir        string
	DBFilename string
	// ReplicaOf is the replication target reported by INFO. Actual
	// replication is not implemented.
	ReplicaOf string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           "127.0.0.1:6379",
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

// Server accepts client connections and serves the wire protocol.
type Server struct {
	cfg     *Config
	handler *CommandHandler
	logger  *slog.Logger
	metrics *metric.Registry
	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// Conn is a single client connection. It owns one receive buffer and
// the connection's selected database index.
type Conn struct {
	netConn net.Conn
	bw      *bufio.Writer

	// buf is the fixed-capacity receive buffer; filled holds the
	// number of valid bytes at its front.
	buf    []byte
	filled int

	// db is the logical database selected by SELECT, default 0.
	db int

	closed atomic.Bool
}

func newConn(c net.Conn, maxMessageSize int) *Conn {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Conn{
		netConn: c,
		bw:      bufio.NewWriter(c),
		buf:     make([]byte, maxMessageSize),
	}
}

// Close closes the underlying connection once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

// RemoteAddr returns the remote address of the connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// readValue reads bytes from the socket until the receive buffer holds
// one complete frame, then extracts it and compacts the buffer so
// already-received bytes of the next request are preserved. If the
// buffer fills to capacity before a frame completes, the request is
// rejected with ErrMessageTooBig.
func (c *Conn) readValue() (Value, error) {
	for {
		if c.filled > 0 {
			v, consumed, err := TryParse(c.buf[:c.filled])
			if err == nil {
				copy(c.buf, c.buf[consumed:c.filled])
				c.filled -= consumed
				return v, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				return Value{}, err
			}
		}

		if c.filled == len(c.buf) {
			return Value{}, ErrMessageTooBig
		}

		n, err := c.netConn.Read(c.buf[c.filled:])
		if err != nil {
			return Value{}, err
		}
		c.filled += n
	}
}

// New creates a new server around the given store. The metrics registry
// may be nil.
func New(cfg *Config, store *memory.Store, m *metric.Registry, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
	s.handler = NewCommandHandler(store, cfg, m, logger)
	return s
}

// Start begins listening and accepting connections. It returns once
// the listener is bound; accepted connections are served concurrently.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.running.Store(true)

	s.logger.Info("redis server listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil && s.running.Load() {
			s.logger.Error("accept loop error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown closes the listener and waits for in-flight connections to
// finish, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			firstErr = err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(newConn(c, s.cfg.MaxMessageSize))
		}()
	}
}

// serveConn runs one connection's request loop. A frame or I/O error
// terminates only this connection; the listener and other connections
// are unaffected.
func (s *Server) serveConn(c *Conn) {
	defer c.Close()

	logger := s.logger.With(
		"conn", ulid.Make().String(),
		"remote", c.RemoteAddr().String(),
	)
	logger.Debug("accepted connection")

	if s.metrics != nil {
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ConnectionsActive.Inc()
		defer s.metrics.ConnectionsActive.Dec()
	}

	for {
		req, err := c.readValue()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("client disconnected")
				return
			}
			if errors.Is(err, ErrMessageTooBig) {
				logger.Warn("request exceeds buffer capacity")
				_ = WriteError(c.bw, "ERR protocol error: message too big")
				_ = c.bw.Flush()
				return
			}
			if errors.Is(err, ErrUnhandledType) || errors.Is(err, ErrArrayLength) || errors.Is(err, ErrBulkLength) {
				logger.Warn("malformed frame", "error", err)
				_ = WriteError(c.bw, "ERR protocol error: "+err.Error())
				_ = c.bw.Flush()
				return
			}
			logger.Debug("connection read error", "error", err)
			return
		}

		s.handler.Handle(c, req)

		if err := c.bw.Flush(); err != nil {
			logger.Debug("connection write error", "error", err)
			return
		}
	}
}
