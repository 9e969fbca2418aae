// Package server exports monitored LIN frames to cannelloni TCP clients.
// Clients are listeners only: whatever they send is decoded and dropped.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/hub"
	"github.com/kstaniek/go-lin-monitor/internal/logging"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/transport"
)

const (
	defaultFlushInterval    = 5 * time.Millisecond
	defaultBatchSize        = 64
	defaultReadDeadline     = 60 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultHandshakeTimeout = 3 * time.Second
	defaultClientBuffer     = 512
	acceptRetryDelay        = 200 * time.Millisecond
	keepAlivePeriod         = 30 * time.Second
)

// Stats counts connection lifecycle events since the server was created.
type Stats struct {
	Accepted        uint64
	HandshakeFailed uint64
	Rejected        uint64
	Connected       uint64
	Disconnected    uint64
	IgnoredRx       uint64
}

type counters struct {
	accepted, handshakeFailed, rejected atomic.Uint64
	connected, disconnected, ignoredRx  atomic.Uint64
}

type settings struct {
	flushInterval    time.Duration
	batchSize        int
	readDeadline     time.Duration
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	maxClients       int
}

// Server owns the export listener and the lifecycle of its clients.
type Server struct {
	Hub   *hub.Hub
	Codec transport.FrameCodec // *cnl.Codec implements

	cfg    settings
	logger *slog.Logger

	mu       sync.RWMutex
	addr     string
	listener net.Listener

	readyOnce sync.Once
	readyCh   chan struct{}

	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error

	clientsMu sync.Mutex
	clients   map[*hub.Client]net.Conn

	wg      sync.WaitGroup
	connSeq atomic.Uint64
	stats   counters
}

type ServerOption func(*Server)

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		cfg: settings{
			flushInterval:    defaultFlushInterval,
			batchSize:        defaultBatchSize,
			readDeadline:     defaultReadDeadline,
			writeTimeout:     defaultWriteTimeout,
			handshakeTimeout: defaultHandshakeTimeout,
		},
		logger:  logging.L(),
		addr:    ":0",
		readyCh: make(chan struct{}),
		errCh:   make(chan error, 1),
		clients: make(map[*hub.Client]net.Conn),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func WithListenAddr(a string) ServerOption          { return func(s *Server) { s.SetListenAddr(a) } }
func WithHub(hb *hub.Hub) ServerOption              { return func(s *Server) { s.Hub = hb } }
func WithCodec(c transport.FrameCodec) ServerOption { return func(s *Server) { s.Codec = c } }

// positive keeps the default unless v is greater than zero.
func positive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

func WithFlushInterval(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.cfg.flushInterval, d) }
}

func WithBatchSize(n int) ServerOption {
	return func(s *Server) { positive(&s.cfg.batchSize, n) }
}

// WithReadDeadline bounds how long a client may stay silent before the
// reader re-arms; it never disconnects a quiet listener by itself.
func WithReadDeadline(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.cfg.readDeadline, d) }
}

// WithWriteTimeout disconnects a client whose socket does not accept a
// batch within d.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.cfg.writeTimeout, d) }
}

func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.cfg.handshakeTimeout, d) }
}

// WithMaxClients limits concurrent clients; zero means unlimited.
func WithMaxClients(n int) ServerOption {
	return func(s *Server) { positive(&s.cfg.maxClients, n) }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Addr returns the configured address, or the bound one once serving.
func (s *Server) Addr() string { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }

// SetListenAddr changes the address used by the next Serve call. An empty
// address picks a free port.
func (s *Server) SetListenAddr(a string) {
	if a == "" {
		a = ":0"
	}
	s.mu.Lock()
	s.addr = a
	s.mu.Unlock()
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Errors delivers the most recent error if nobody has read it yet.
func (s *Server) Errors() <-chan error { return s.errCh }

func (s *Server) LastError() error { s.lastErrMu.Lock(); defer s.lastErrMu.Unlock(); return s.lastErr }

// Stats returns a snapshot of the lifecycle counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted:        s.stats.accepted.Load(),
		HandshakeFailed: s.stats.handshakeFailed.Load(),
		Rejected:        s.stats.rejected.Load(),
		Connected:       s.stats.connected.Load(),
		Disconnected:    s.stats.disconnected.Load(),
		IgnoredRx:       s.stats.ignoredRx.Load(),
	}
}

// fail records err, counts it under its metrics label and returns it.
func (s *Server) fail(err error) error {
	metrics.IncError(errLabel(err))
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
	return err
}

// Serve binds the listener and accepts clients until ctx is cancelled.
// Each connection is admitted on its own goroutine so a slow handshake
// never stalls the accept loop.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return s.fail(fmt.Errorf("%w: %v", ErrListen, err))
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("export_listen", "addr", s.Addr())
	go func() { <-ctx.Done(); _ = ln.Close() }()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(acceptRetryDelay)
				continue
			}
			return s.fail(fmt.Errorf("%w: %v", ErrAccept, err))
		}
		s.stats.accepted.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn admits one connection and starts its reader and writer.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	log := s.logger.With("conn_id", s.connSeq.Add(1), "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(keepAlivePeriod)
	}
	cl, ok := s.admit(ctx, conn, log)
	if !ok {
		return
	}
	s.stats.connected.Add(1)
	log.Info("client_connected", "clients", s.clientCount())
	s.startWriter(ctx.Done(), conn, cl, log)
	s.startReader(ctx.Done(), conn, cl, log)
}

func (s *Server) clientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

// drop unregisters cl and closes its connection. It reports whether cl was
// still registered.
func (s *Server) drop(cl *hub.Client) bool {
	s.clientsMu.Lock()
	conn, ok := s.clients[cl]
	delete(s.clients, cl)
	s.clientsMu.Unlock()
	if s.Hub != nil {
		s.Hub.Remove(cl)
	}
	if ok {
		_ = conn.Close()
	}
	return ok
}

// Shutdown closes the listener and every client, then waits for the
// connection goroutines to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.clientsMu.Lock()
	all := make([]*hub.Client, 0, len(s.clients))
	for cl := range s.clients {
		all = append(all, cl)
	}
	s.clientsMu.Unlock()
	for _, cl := range all {
		s.drop(cl)
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		st := s.Stats()
		s.logger.Info("export_shutdown_summary",
			"accepted", st.Accepted,
			"handshake_fail", st.HandshakeFailed,
			"rejected", st.Rejected,
			"connected", st.Connected,
			"disconnected", st.Disconnected,
			"ignored_rx", st.IgnoredRx,
		)
		return nil
	}
}
