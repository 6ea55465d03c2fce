package nntp

// nntp provides the NNTP client side of go-pugbin: connections, a pool
// and the overview commands the group scanner needs.

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/go-while/go-pugbin/internal/config"
)

const (
	// NNTPWelcomeCodeMin is the minimum welcome code for NNTP servers.
	NNTPWelcomeCodeMin int = 200
	// NNTPWelcomeCodeMax is the maximum welcome code for NNTP servers.
	NNTPWelcomeCodeMax int = 201
	// NNTPMoreInfoCode indicates more information is required (e.g., password).
	NNTPMoreInfoCode int = 381
	// NNTPAuthSuccess indicates successful authentication.
	NNTPAuthSuccess int = 281

	// GroupSelected is the reply to a successful GROUP command.
	GroupSelected int = 211
	// OverviewFollows is the reply preceding XOVER data.
	OverviewFollows int = 224
	// NoSuchGroup is returned by GROUP for unknown newsgroups.
	NoSuchGroup int = 411
	// NoArticlesInRange is returned by XOVER when the range is empty.
	NoArticlesInRange int = 423

	// DefaultConnExpire is the default connection expiration duration.
	DefaultConnExpire = 25 * time.Second

	// MaxReadLines is the maximum lines to read per response.
	MaxReadLines = 500000
)

// BackendConn represents an NNTP connection to a server.
// It manages the connection state, authentication, and provides methods
// for interacting with the NNTP server.
type BackendConn struct {
	conn     net.Conn
	textConn *textproto.Conn
	writer   *bufio.Writer
	Backend  *BackendConfig
	mu       sync.RWMutex
	Pool     *Pool // link to parent pool

	// Connection state
	connected     bool
	authenticated bool
	created       time.Time
	lastUsed      time.Time
}

// BackendConfig holds configuration for an NNTP client
type BackendConfig struct {
	Host           string        // hostname or IP address of the NNTP server
	Port           int           // port number for the NNTP server
	SSL            bool          // whether to use SSL/TLS
	Username       string        // username for authentication
	Password       string        // password for authentication
	ConnectTimeout time.Duration // timeout for establishing a connection
	MaxConns       int           // maximum number of connections to this backend
	Provider       *config.Provider
	Mux            sync.Mutex
}

// NewBackendConfig builds a BackendConfig from a configured provider.
func NewBackendConfig(p *config.Provider) *BackendConfig {
	return &BackendConfig{
		Host:           p.Host,
		Port:           p.Port,
		SSL:            p.SSL,
		Username:       p.Username,
		Password:       p.Password,
		ConnectTimeout: config.DefaultConnectTimeout,
		MaxConns:       p.MaxConns,
		Provider:       p,
	}
}

// GroupInfo represents newsgroup information
type GroupInfo struct {
	Name  string
	Count int64
	First int64
	Last  int64
}

// OverviewLine represents a line from XOVER command
type OverviewLine struct {
	ArticleNum int64
	Subject    string
	From       string
	Date       string
	MessageID  string
	References string
	Bytes      int64
	Lines      int64
	Xref       string // from the optional Xref:full field
}

// NewConn creates a new empty NNTP connection with the provided backend configuration.
func NewConn(backend *BackendConfig) *BackendConn {
	return &BackendConn{
		Backend: backend,
		created: time.Now(),
	}
}

// Connect establishes connection to the NNTP server
func (c *BackendConn) Connect(ctx context.Context) error {
	c.Backend.Mux.Lock()
	if c.Backend.ConnectTimeout == 0 {
		c.Backend.ConnectTimeout = config.DefaultConnectTimeout
	}
	c.Backend.Mux.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	serverAddr := net.JoinHostPort(c.Backend.Host, strconv.Itoa(c.Backend.Port))

	dialer := &net.Dialer{Timeout: c.Backend.ConnectTimeout}
	var conn net.Conn
	var err error
	if c.Backend.SSL {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				ServerName: c.Backend.Host,
				MinVersion: tls.VersionTLS12,
			},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", serverAddr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", serverAddr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}

	c.conn = conn
	c.textConn = textproto.NewConn(conn)
	c.writer = bufio.NewWriter(conn)
	c.applyDeadline(ctx)

	code, message, err := c.textConn.ReadCodeLine(NNTPWelcomeCodeMin)
	if err != nil && (code < NNTPWelcomeCodeMin || code > NNTPWelcomeCodeMax) {
		c.closeLocked()
		if code != 0 {
			log.Printf("[NNTP-CONN] Invalid welcome code %d from %s: %s", code, serverAddr, message)
			return fmt.Errorf("unexpected welcome code %d: %s", code, message)
		}
		return fmt.Errorf("failed to read welcome: %w", err)
	}

	c.connected = true
	c.lastUsed = time.Now()

	if c.Backend.Username != "" {
		if err := c.authenticate(); err != nil {
			log.Printf("[NNTP-AUTH] Authentication FAILED for user '%s' on %s: %v", c.Backend.Username, serverAddr, err)
			c.closeLocked()
			return fmt.Errorf("authentication failed: %w", err)
		}
	}
	c.clearDeadline()
	return nil
}

// authenticate performs NNTP authentication
func (c *BackendConn) authenticate() error {
	id, err := c.textConn.Cmd("AUTHINFO USER %s", c.Backend.Username)
	if err != nil {
		return err
	}

	c.textConn.StartResponse(id)
	code, message, err := c.textConn.ReadCodeLine(NNTPMoreInfoCode)
	c.textConn.EndResponse(id)

	if code == NNTPAuthSuccess {
		// server accepted the user without a password
		c.authenticated = true
		return nil
	}
	if err != nil {
		return err
	}
	if code != NNTPMoreInfoCode {
		return fmt.Errorf("unexpected response to AUTHINFO USER: %d %s", code, message)
	}

	id, err = c.textConn.Cmd("AUTHINFO PASS %s", c.Backend.Password)
	if err != nil {
		return err
	}

	c.textConn.StartResponse(id)
	code, message, err = c.textConn.ReadCodeLine(NNTPAuthSuccess)
	c.textConn.EndResponse(id)

	if err != nil {
		return err
	}
	if code != NNTPAuthSuccess {
		return fmt.Errorf("authentication failed: %d %s", code, message)
	}

	c.authenticated = true
	return nil
}

// CloseFromPoolOnly closes a raw NNTP connection
func (c *BackendConn) CloseFromPoolOnly() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected && c.conn == nil {
		return nil
	}
	c.closeLocked()
	return nil
}

// closeLocked tears down the socket. Caller holds c.mu.
func (c *BackendConn) closeLocked() {
	if c.textConn != nil {
		_ = c.conn.SetDeadline(time.Now().Add(time.Second))
		if _, err := c.textConn.Cmd("QUIT"); err == nil {
			_, _, _ = c.textConn.ReadCodeLine(205)
		}
		_ = c.textConn.Close()
	} else if c.conn != nil {
		_ = c.conn.Close()
	}
	c.connected = false
	c.authenticated = false
	c.textConn = nil
	c.conn = nil
	c.writer = nil
}

// applyDeadline propagates the context deadline to the socket so a
// stalled server cannot block a scan forever.
func (c *BackendConn) applyDeadline(ctx context.Context) {
	if c.conn == nil {
		return
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	}
}

func (c *BackendConn) clearDeadline() {
	if c.conn != nil {
		_ = c.conn.SetDeadline(time.Time{})
	}
}

// watchContext closes the socket when ctx is cancelled while a command is
// in flight. The returned func must be called once the command finished.
func (c *BackendConn) watchContext(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	conn := c.conn
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if conn != nil {
				_ = conn.SetDeadline(time.Now())
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

// UpdateLastUsed updates the last used timestamp
func (c *BackendConn) UpdateLastUsed() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}
