package modbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default pool timings, overridable via configuration.
const (
	DefaultRequestTimeout = 3 * time.Second
	DefaultReconnectDelay = 3 * time.Second
)

// Pool owns the keyed set of persistent Modbus connections and the
// per-key exclusive queues that serialise script executions.
//
// Connections are created lazily on first use and torn down only at
// shutdown (Close) or on explicit invalidation when the endpoint settings
// change (Invalidate).
type Pool struct {
	requestTimeout time.Duration
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu     sync.Mutex
	conns  map[Key]*Conn
	queues map[Key]*ExclusiveQueue
	closed bool
}

// NewPool creates an empty connection pool. Zero timeouts fall back to the
// package defaults.
func NewPool(requestTimeout, reconnectDelay time.Duration, logger *slog.Logger) *Pool {
	if requestTimeout == 0 {
		requestTimeout = DefaultRequestTimeout
	}
	if reconnectDelay == 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Pool{
		requestTimeout: requestTimeout,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		conns:          make(map[Key]*Conn),
		queues:         make(map[Key]*ExclusiveQueue),
	}
}

// Get returns the pooled connection for key, creating it (disconnected) on
// first use. Returns ErrPoolClosed after Close.
func (p *Pool) Get(key Key) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	conn, ok := p.conns[key]
	if !ok {
		conn = newConn(key, p.requestTimeout, p.reconnectDelay, p.logger)
		p.conns[key] = conn
		p.logger.Debug("pooled connection created", "key", key.String())
	}
	return conn, nil
}

// queue returns the exclusive queue for key, creating it on first use.
func (p *Pool) queue(key Key) *ExclusiveQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[key]
	if !ok {
		q = NewExclusiveQueue()
		p.queues[key] = q
	}
	return q
}

// Execute runs fn while holding key's exclusive queue, with the pooled
// connection as argument. This is the only sanctioned way to run a script:
// two Execute calls on the same key never overlap, so request/response
// pairing on the socket stays intact.
func (p *Pool) Execute(ctx context.Context, key Key, fn func(*Conn) error) error {
	conn, err := p.Get(key)
	if err != nil {
		return err
	}

	q := p.queue(key)
	if err := q.Acquire(ctx); err != nil {
		return err
	}
	defer q.Release()

	return fn(conn)
}

// Invalidate destroys the pooled connection for key, if any. The next Get
// creates a fresh handle. Used when the installer edits host/port/unitId.
func (p *Pool) Invalidate(key Key) {
	p.mu.Lock()
	conn := p.conns[key]
	delete(p.conns, key)
	p.mu.Unlock()

	if conn != nil {
		conn.Destroy()
		p.logger.Info("pooled connection invalidated", "key", key.String())
	}
}

// Close destroys every pooled connection and rejects further use.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = map[Key]*Conn{}
	p.mu.Unlock()

	for _, c := range conns {
		c.Destroy()
	}
	p.logger.Info("connection pool closed", "connections", len(conns))
}
