package linematch

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// QueryResponse is one parsed server reply.
type QueryResponse struct {
	Status    string
	ElapsedMS float64
}

// Client is a minimal protocol client for the search server. It is not
// safe for concurrent use; open one client per goroutine.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// ClientOption configures Dial.
type ClientOption func(*clientOptions)

type clientOptions struct {
	timeout   time.Duration
	tlsConfig *tls.Config
}

// WithClientTimeout sets the per-request deadline.
func WithClientTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClientTLS dials over TLS with the given configuration.
func WithClientTLS(cfg *tls.Config) ClientOption {
	return func(o *clientOptions) {
		o.tlsConfig = cfg
	}
}

// Dial connects to a search server at addr.
func Dial(addr string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	var (
		conn net.Conn
		err  error
	)
	if o.tlsConfig != nil {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: o.timeout}, "tcp", addr, o.tlsConfig)
	} else {
		conn, err = net.DialTimeout("tcp", addr, o.timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), timeout: o.timeout}, nil
}

// Query sends one line and parses the "<RESULT>;<elapsed_ms>" reply.
func (c *Client) Query(line string) (QueryResponse, error) {
	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		return QueryResponse{}, fmt.Errorf("send query: %w", err)
	}
	raw, err := c.reader.ReadString('\n')
	if err != nil {
		return QueryResponse{}, fmt.Errorf("read response: %w", err)
	}
	return parseResponse(strings.TrimRight(raw, "\r\n"))
}

// Exists reports whether line is present in the server's corpus.
func (c *Client) Exists(line string) (bool, error) {
	resp, err := c.Query(line)
	if err != nil {
		return false, err
	}
	switch resp.Status {
	case respExists:
		return true, nil
	case respNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("server refused query: %s", resp.Status)
	}
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func parseResponse(raw string) (QueryResponse, error) {
	i := strings.LastIndex(raw, ";")
	if i < 0 {
		return QueryResponse{}, fmt.Errorf("malformed response %q", raw)
	}
	elapsed, err := strconv.ParseFloat(raw[i+1:], 64)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("malformed elapsed in %q: %w", raw, err)
	}
	return QueryResponse{Status: raw[:i], ElapsedMS: elapsed}, nil
}
