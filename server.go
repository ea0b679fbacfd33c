package linematch

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/oarkflow/xid"
)

// Wire protocol result strings. Every response is one line,
// "<RESULT>;<elapsed_ms>\n", with elapsed milliseconds at two decimals.
const (
	respExists      = "STRING EXISTS"
	respNotFound    = "STRING NOT FOUND"
	respRateLimited = "RATE LIMIT EXCEEDED"
	respServerError = "SERVER ERROR"
	respPoolFull    = "POOL FULL"
)

const (
	// DefaultMaxWorkers bounds concurrently served connections.
	DefaultMaxWorkers = 100
	// DefaultMaxQueryBytes bounds one request line on the wire.
	DefaultMaxQueryBytes = 1024
	// DefaultIdleTimeout closes connections that send nothing.
	DefaultIdleTimeout = 5 * time.Minute
)

// Server accepts TCP (optionally TLS-wrapped) connections and serves the
// line-oriented lookup protocol. Each admitted connection is owned by one
// worker goroutine drawn from a bounded pool; the accept loop blocks only
// on Accept.
type Server struct {
	addr          string
	engine        *SearchEngine
	limiter       *RateLimiter
	telemetry     TelemetrySink
	maxWorkers    int
	maxQueryBytes int
	idleTimeout   time.Duration
	tlsConfig     *tls.Config

	slots     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxWorkers bounds the worker pool.
func WithMaxWorkers(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithMaxQueryBytes bounds a single request line.
func WithMaxQueryBytes(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxQueryBytes = n
		}
	}
}

// WithIdleTimeout sets the per-connection read deadline.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithRateLimiter installs per-client admission control. A nil limiter
// disables it.
func WithRateLimiter(rl *RateLimiter) ServerOption {
	return func(s *Server) {
		s.limiter = rl
	}
}

// WithServerTelemetry installs a telemetry sink for the request path.
func WithServerTelemetry(t TelemetrySink) ServerOption {
	return func(s *Server) {
		if t != nil {
			s.telemetry = t
		}
	}
}

// WithTLS wraps the listener with the given TLS configuration. A nil config
// keeps the listener plain.
func WithTLS(cfg *tls.Config) ServerOption {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// NewServer creates a dispatcher for engine listening on addr.
func NewServer(addr string, engine *SearchEngine, opts ...ServerOption) *Server {
	s := &Server{
		addr:          addr,
		engine:        engine,
		telemetry:     NopTelemetry{},
		maxWorkers:    DefaultMaxWorkers,
		maxQueryBytes: DefaultMaxQueryBytes,
		idleTimeout:   DefaultIdleTimeout,
		closed:        make(chan struct{}),
		conns:         make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.slots = make(chan struct{}, s.maxWorkers)
	return s
}

// ListenAndServe binds the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
		log.Printf("tls enabled on %s", s.addr)
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on ln. Connections beyond the worker pool are
// told the pool is full and closed before any protocol exchange.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	log.Printf("server listening on %s (policy=%s workers=%d)", ln.Addr(), s.engine.Policy(), s.maxWorkers)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		select {
		case s.slots <- struct{}{}:
			s.trackConn(conn, true)
			s.wg.Add(1)
			go func() {
				defer func() {
					<-s.slots
					s.wg.Done()
				}()
				s.handleConn(conn)
			}()
		default:
			fmt.Fprintf(conn, "%s;0.00\n", respPoolFull)
			conn.Close()
		}
	}
}

// Addr returns the bound listener address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting, then waits for in-flight requests until ctx
// expires, at which point remaining connections are force-closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closed) })
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// handleConn owns one connection: read a line, serve it, repeat until the
// peer closes, a transport error occurs, or the idle deadline fires.
func (s *Server) handleConn(conn net.Conn) {
	connID := xid.New().String()
	clientIP := remoteIP(conn)
	log.Printf("connection %s opened from %s", connID, clientIP)
	defer func() {
		s.trackConn(conn, false)
		conn.Close()
		log.Printf("connection %s closed", connID)
	}()

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-s.closed:
			return
		default:
		}
		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		line, err := readLine(reader, s.maxQueryBytes)
		if err != nil {
			if errors.Is(err, ErrOversizedQuery) {
				log.Printf("connection %s: %v", connID, err)
				if werr := s.writeResponse(conn, respServerError, 0); werr != nil {
					return
				}
				continue
			}
			if err != io.EOF {
				log.Printf("connection %s: read: %v", connID, err)
			}
			return
		}
		if err := s.serveRequest(conn, connID, clientIP, line); err != nil {
			log.Printf("connection %s: write: %v", connID, err)
			return
		}
	}
}

// serveRequest processes one query and writes one response line. Panics are
// converted to a SERVER ERROR response; only a transport write failure is
// returned, terminating the connection loop.
func (s *Server) serveRequest(conn net.Conn, connID, clientIP, query string) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("connection %s: panic serving request: %v", connID, r)
			err = s.writeResponse(conn, respServerError, time.Since(start))
		}
	}()

	query = strings.TrimSpace(query)
	if s.limiter != nil && !s.limiter.Allow(clientIP) {
		s.telemetry.RateLimited()
		log.Printf("connection %s: rate limit exceeded for %s", connID, clientIP)
		return s.writeResponse(conn, respRateLimited, time.Since(start))
	}

	res := s.engine.Lookup(context.Background(), query)
	status := respNotFound
	if res.Found {
		status = respExists
	}
	return s.writeResponse(conn, status, time.Since(start))
}

func (s *Server) writeResponse(conn net.Conn, status string, elapsed time.Duration) error {
	if s.idleTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.idleTimeout))
	}
	_, err := fmt.Fprintf(conn, "%s;%.2f\n", status, float64(elapsed.Nanoseconds())/1e6)
	return err
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

// readLine reads one newline-terminated request, refusing lines longer than
// max bytes. The oversized remainder is consumed so the connection can keep
// serving subsequent requests.
func readLine(r *bufio.Reader, max int) (string, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		buf = append(buf, frag...)
		if err == bufio.ErrBufferFull {
			if len(buf) > max+1 {
				if derr := discardToNewline(r); derr != nil {
					return "", derr
				}
				return "", ErrOversizedQuery
			}
			continue
		}
		if err == io.EOF {
			if len(buf) == 0 {
				return "", io.EOF
			}
			break
		}
		if err != nil {
			return "", err
		}
		break
	}
	line := bytes.TrimRight(buf, "\r\n")
	if len(line) > max {
		return "", ErrOversizedQuery
	}
	return string(line), nil
}

func discardToNewline(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			continue
		}
		return err
	}
}
