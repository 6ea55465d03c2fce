package nntp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Pool manages a pool of NNTP client connections
type Pool struct {
	mux         sync.RWMutex
	Backend     *BackendConfig
	connections chan *BackendConn
	maxConns    int
	activeConns int
	idleTimeout time.Duration
	closed      bool

	// Statistics
	totalCreated int64
	totalClosed  int64
}

var errPoolClosed = errors.New("connection pool is closed")

// NewPool creates a new connection pool
func NewPool(cfg *BackendConfig) *Pool {
	if cfg.MaxConns < 1 {
		cfg.MaxConns = 1
	}
	return &Pool{
		Backend:     cfg,
		connections: make(chan *BackendConn, cfg.MaxConns),
		maxConns:    cfg.MaxConns,
		idleTimeout: DefaultConnExpire,
	}
}

// XOver runs XOVER start-end on a pooled connection.
func (p *Pool) XOver(ctx context.Context, group string, start, end int64) ([]OverviewLine, error) {
	client, err := p.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	result, err := client.XOver(ctx, group, start, end)
	if err != nil && !errors.Is(err, ErrNoArticles) && !errors.Is(err, ErrNewsgroupNotFound) {
		p.CloseConn(client, true)
		return nil, err
	}

	p.Put(client)
	return result, err
}

// SelectGroup runs GROUP on a pooled connection.
func (p *Pool) SelectGroup(ctx context.Context, group string) (*GroupInfo, error) {
	client, err := p.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	gi, code, err := client.SelectGroup(ctx, group)
	if err != nil && code != NoSuchGroup {
		// Close connection on unexpected errors (not "group not found")
		p.CloseConn(client, true)
		return nil, err
	}

	p.Put(client)
	return gi, err
}

// Get retrieves a connection from the pool or creates a new one
func (p *Pool) Get(ctx context.Context) (*BackendConn, error) {
	p.mux.RLock()
	if p.closed {
		p.mux.RUnlock()
		return nil, errPoolClosed
	}
	p.mux.RUnlock()

	select {
	case pconn := <-p.connections:
		if p.isConnectionValid(pconn) {
			pconn.UpdateLastUsed()
			return pconn, nil
		}
		p.CloseConn(pconn, true)
	default:
	}

	p.mux.Lock()
	if p.activeConns < p.maxConns {
		p.activeConns++
		p.mux.Unlock()
		pconn, err := p.createConnection(ctx)
		if err != nil {
			p.mux.Lock()
			p.activeConns--
			p.mux.Unlock()
			return nil, err
		}
		pconn.UpdateLastUsed()
		p.mux.Lock()
		p.totalCreated++
		p.mux.Unlock()
		return pconn, nil
	}
	p.mux.Unlock()

	// Wait for a connection to become available
	select {
	case pconn, ok := <-p.connections:
		if !ok {
			return nil, errPoolClosed
		}
		if p.isConnectionValid(pconn) {
			pconn.UpdateLastUsed()
			return pconn, nil
		}
		// slot stays accounted for: replace the expired connection in place
		pconn.CloseFromPoolOnly()
		newPconn, err := p.createConnection(ctx)
		if err != nil {
			p.mux.Lock()
			p.totalClosed++
			p.activeConns--
			p.mux.Unlock()
			return nil, err
		}
		newPconn.UpdateLastUsed()
		p.mux.Lock()
		p.totalClosed++
		p.totalCreated++
		p.mux.Unlock()
		return newPconn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("timeout waiting for connection from pool after 30s")
	}
}

// Put returns a connection to the pool
func (p *Pool) Put(client *BackendConn) {
	if client == nil {
		log.Printf("[NNTP-POOL] ERROR: Attempted to put nil client back into pool")
		return
	}
	p.mux.RLock()
	closed := p.closed
	p.mux.RUnlock()
	if closed {
		p.CloseConn(client, true)
		return
	}

	client.UpdateLastUsed()
	select {
	case p.connections <- client:
	default:
		log.Printf("[NNTP-POOL] ERROR: Pool is full, closing connection for %s:%d", p.Backend.Host, p.Backend.Port)
		p.CloseConn(client, true)
	}
}

// CloseConn closes a specific connection and releases its slot.
func (p *Pool) CloseConn(client *BackendConn, lock bool) {
	if client == nil {
		return
	}
	client.CloseFromPoolOnly()
	if lock {
		p.mux.Lock()
		p.totalClosed++
		p.activeConns--
		p.mux.Unlock()
	}
}

// ClosePool closes all connections in the pool
func (p *Pool) ClosePool() error {
	p.mux.Lock()
	if p.closed {
		p.mux.Unlock()
		log.Printf("[NNTP-POOL] Pool is already closed")
		return nil
	}
	p.closed = true
	p.mux.Unlock()

	for {
		select {
		case client := <-p.connections:
			p.CloseConn(client, true)
		default:
			p.mux.RLock()
			if p.activeConns > 0 {
				log.Printf("[NNTP-POOL] Pool closed with %d connections still checked out", p.activeConns)
			}
			p.mux.RUnlock()
			return nil
		}
	}
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mux.RLock()
	defer p.mux.RUnlock()

	return PoolStats{
		MaxConnections:    p.maxConns,
		ActiveConnections: p.activeConns,
		IdleConnections:   len(p.connections),
		TotalCreated:      p.totalCreated,
		TotalClosed:       p.totalClosed,
		Closed:            p.closed,
	}
}

// PoolStats contains pool statistics
type PoolStats struct {
	MaxConnections    int   `json:"max_connections"`
	ActiveConnections int   `json:"active_connections"`
	IdleConnections   int   `json:"idle_connections"`
	TotalCreated      int64 `json:"total_created"`
	TotalClosed       int64 `json:"total_closed"`
	Closed            bool  `json:"closed"`
}

// createConnection creates a new NNTP client connection
func (p *Pool) createConnection(ctx context.Context) (*BackendConn, error) {
	client := NewConn(p.Backend)
	client.Pool = p

	if err := client.Connect(ctx); err != nil {
		log.Printf("[NNTP-POOL] Failed to create connection to %s:%d: %v", p.Backend.Host, p.Backend.Port, err)
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return client, nil
}

// isConnectionValid checks if a connection is still valid and not expired
func (p *Pool) isConnectionValid(client *BackendConn) bool {
	if client == nil {
		return false
	}
	client.mu.RLock()
	connected := client.connected
	lastUsed := client.lastUsed
	client.mu.RUnlock()

	return connected && time.Since(lastUsed) <= p.idleTimeout
}

// Cleanup closes idle connections that expired.
func (p *Pool) Cleanup() {
	p.mux.RLock()
	if p.closed {
		p.mux.RUnlock()
		return
	}
	p.mux.RUnlock()

	var valid []*BackendConn
drain:
	for {
		select {
		case client := <-p.connections:
			if p.isConnectionValid(client) {
				valid = append(valid, client)
			} else {
				p.CloseConn(client, true)
			}
		default:
			break drain
		}
	}
	for _, client := range valid {
		p.Put(client)
	}
}

// StartCleanupWorker starts a goroutine that periodically cleans up expired
// connections until ctx is done.
func (p *Pool) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 8 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Cleanup()
			}
		}
	}()
}
