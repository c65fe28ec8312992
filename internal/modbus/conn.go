package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gomodbus "github.com/goburrow/modbus"
)

// State is the lifecycle state of a pooled connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Key identifies one logical connection: at most one live connection exists
// per key at any instant.
type Key struct {
	Host   string
	Port   int
	UnitID byte
}

// String returns the key in host:port:unit form, used in logs and as the
// pool map key.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Host, k.Port, k.UnitID)
}

// Conn is a persistent Modbus TCP connection with automatic reconnection.
//
// Thread Safety:
//   - All methods are safe for concurrent use, but callers must serialise
//     script executions per key via the pool's queue; two interleaved
//     request streams on one socket corrupt response pairing.
//
// Auto-Reconnection:
//   - Any transport error transitions the connection to disconnected and
//     schedules a reconnect attempt after the configured delay.
//   - Reconnection stops only when Destroy is called.
type Conn struct {
	key            Key
	requestTimeout time.Duration
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	state     State
	destroyed bool
	handler   *gomodbus.TCPClientHandler
	client    gomodbus.Client
	reconnect *time.Timer
}

func newConn(key Key, requestTimeout, reconnectDelay time.Duration, logger *slog.Logger) *Conn {
	return &Conn{
		key:            key,
		requestTimeout: requestTimeout,
		reconnectDelay: reconnectDelay,
		logger:         logger.With("conn", key.String()),
		state:          StateDisconnected,
	}
}

// Key returns the connection's identity.
func (c *Conn) Key() Key {
	return c.key
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is currently usable.
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect establishes the TCP connection. Idempotent: connecting an already
// connected handle is a no-op. Returns ErrDestroyed after Destroy.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDestroyed, c.key)
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		c.markDisconnected(err)
		return err
	}

	handler := gomodbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", c.key.Host, c.key.Port))
	handler.SlaveId = c.key.UnitID
	handler.Timeout = c.requestTimeout

	if err := handler.Connect(); err != nil {
		c.markDisconnected(err)
		return fmt.Errorf("%w: connect %s: %w", ErrConnection, c.key, err)
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		handler.Close()
		return fmt.Errorf("%w: %s", ErrDestroyed, c.key)
	}
	c.handler = handler
	c.client = gomodbus.NewClient(handler)
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("modbus connected")
	return nil
}

// Destroy tears the connection down permanently: cancels any pending
// reconnect, closes the socket, and marks the handle unusable. Called when
// the pooled entry is invalidated (settings change) or at shutdown.
func (c *Conn) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.state = StateDisconnected
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	handler := c.handler
	c.handler = nil
	c.client = nil
	c.mu.Unlock()

	if handler != nil {
		handler.Close()
	}
	c.logger.Info("modbus connection destroyed")
}

// markDisconnected records a transport failure and schedules a reconnect.
func (c *Conn) markDisconnected(cause error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	handler := c.handler
	c.handler = nil
	c.client = nil

	if c.reconnect == nil {
		c.reconnect = time.AfterFunc(c.reconnectDelay, c.tryReconnect)
	}
	c.mu.Unlock()

	if handler != nil {
		handler.Close()
	}
	if wasConnected {
		c.logger.Warn("modbus connection lost", "error", cause)
	}
}

// tryReconnect is the scheduled reconnect attempt. On failure it reschedules
// itself; callers issuing requests meanwhile also trigger connect attempts.
func (c *Conn) tryReconnect() {
	c.mu.Lock()
	c.reconnect = nil
	if c.destroyed || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.Connect(context.Background()); err != nil {
		c.logger.Debug("reconnect attempt failed", "error", err)
	}
}

// ensureClient connects if needed and returns the underlying client.
func (c *Conn) ensureClient(ctx context.Context) (gomodbus.Client, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, c.key)
	}
	return c.client, nil
}

// ReadHolding reads quantity holding registers starting at addr.
func (c *Conn) ReadHolding(ctx context.Context, addr, quantity uint16) ([]uint16, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := client.ReadHoldingRegisters(addr, quantity)
	if err != nil {
		c.markDisconnected(err)
		return nil, fmt.Errorf("%w: read holding %d: %w", ErrConnection, addr, err)
	}
	return bytesToWords(raw), nil
}

// ReadInput reads quantity input registers starting at addr.
func (c *Conn) ReadInput(ctx context.Context, addr, quantity uint16) ([]uint16, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := client.ReadInputRegisters(addr, quantity)
	if err != nil {
		c.markDisconnected(err)
		return nil, fmt.Errorf("%w: read input %d: %w", ErrConnection, addr, err)
	}
	return bytesToWords(raw), nil
}

// WriteHolding writes one holding register.
func (c *Conn) WriteHolding(ctx context.Context, addr, value uint16) error {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return err
	}
	if _, err := client.WriteSingleRegister(addr, value); err != nil {
		c.markDisconnected(err)
		return fmt.Errorf("%w: write holding %d: %w", ErrConnection, addr, err)
	}
	return nil
}

// WriteHoldingMulti writes consecutive holding registers starting at addr
// with a single Write Multiple Registers request. Some devices reject
// single-register writes to packed registers, so the request shape matters.
func (c *Conn) WriteHoldingMulti(ctx context.Context, addr uint16, values []uint16) error {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return err
	}
	if _, err := client.WriteMultipleRegisters(addr, uint16(len(values)), wordsToBytes(values)); err != nil {
		c.markDisconnected(err)
		return fmt.Errorf("%w: write holding multi %d: %w", ErrConnection, addr, err)
	}
	return nil
}

// WriteCoil writes a single coil.
func (c *Conn) WriteCoil(ctx context.Context, addr uint16, on bool) error {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return err
	}
	value := uint16(0x0000)
	if on {
		value = 0xFF00
	}
	if _, err := client.WriteSingleCoil(addr, value); err != nil {
		c.markDisconnected(err)
		return fmt.Errorf("%w: write coil %d: %w", ErrConnection, addr, err)
	}
	return nil
}

// bytesToWords converts a big-endian register payload to words.
func bytesToWords(raw []byte) []uint16 {
	words := make([]uint16, len(raw)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(raw[i*2:])
	}
	return words
}

// wordsToBytes converts words to a big-endian register payload.
func wordsToBytes(words []uint16) []byte {
	raw := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(raw[i*2:], w)
	}
	return raw
}
