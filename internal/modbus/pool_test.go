package modbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/tbrandon/mbserver"
)

// freePort reserves an ephemeral TCP port for a simulator to listen on.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// startSimulator runs an in-process Modbus slave and returns its key.
func startSimulator(t *testing.T) (*mbserver.Server, Key) {
	t.Helper()
	srv := mbserver.NewServer()
	port := freePort(t)
	if err := srv.ListenTCP(fmt.Sprintf("127.0.0.1:%d", port)); err != nil {
		t.Fatalf("starting simulator: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, Key{Host: "127.0.0.1", Port: port, UnitID: 1}
}

func testPool(t *testing.T) *Pool {
	t.Helper()
	pool := NewPool(time.Second, 100*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(pool.Close)
	return pool
}

// ─── Register Round Trips ───

func TestPool_ReadWriteHolding(t *testing.T) {
	srv, key := startSimulator(t)
	pool := testPool(t)

	srv.HoldingRegisters[10704] = 3

	err := pool.Execute(context.Background(), key, func(conn *Conn) error {
		words, err := conn.ReadHolding(context.Background(), 10704, 1)
		if err != nil {
			return err
		}
		if words[0] != 3 {
			t.Errorf("expected 3, got %d", words[0])
		}
		return conn.WriteHolding(context.Background(), 10708, 5)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := srv.HoldingRegisters[10708]; got != 5 {
		t.Errorf("expected register 10708 = 5, got %d", got)
	}
}

func TestPool_ReadInput(t *testing.T) {
	srv, key := startSimulator(t)
	pool := testPool(t)

	srv.InputRegisters[1002] = 225

	err := pool.Execute(context.Background(), key, func(conn *Conn) error {
		words, err := conn.ReadInput(context.Background(), 1002, 1)
		if err != nil {
			return err
		}
		if words[0] != 225 {
			t.Errorf("expected 225, got %d", words[0])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestPool_WriteHoldingMulti(t *testing.T) {
	srv, key := startSimulator(t)
	pool := testPool(t)

	err := pool.Execute(context.Background(), key, func(conn *Conn) error {
		return conn.WriteHoldingMulti(context.Background(), 41121, []uint16{120, 120})
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if srv.HoldingRegisters[41121] != 120 || srv.HoldingRegisters[41122] != 120 {
		t.Errorf("expected 120/120, got %d/%d",
			srv.HoldingRegisters[41121], srv.HoldingRegisters[41122])
	}
}

func TestPool_WriteCoil(t *testing.T) {
	srv, key := startSimulator(t)
	pool := testPool(t)

	err := pool.Execute(context.Background(), key, func(conn *Conn) error {
		return conn.WriteCoil(context.Background(), 31, true)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if srv.Coils[31] == 0 {
		t.Error("expected coil 31 set")
	}
}

// ─── Pool Semantics ───

func TestPool_OneConnectionPerKey(t *testing.T) {
	_, key := startSimulator(t)
	pool := testPool(t)

	a, err := pool.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, err := pool.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a != b {
		t.Error("expected the same pooled handle for one key")
	}
}

func TestPool_ExecuteSerialises(t *testing.T) {
	_, key := startSimulator(t)
	pool := testPool(t)

	var mu sync.Mutex
	var order []string
	var inside bool

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := pool.Execute(context.Background(), key, func(conn *Conn) error {
				mu.Lock()
				if inside {
					t.Error("two executions overlap on one key")
				}
				inside = true
				order = append(order, fmt.Sprintf("start-%d", n))
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inside = false
				order = append(order, fmt.Sprintf("end-%d", n))
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("execute %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	// Every start must be immediately followed by its own end.
	for i := 0; i < len(order); i += 2 {
		start, end := order[i], order[i+1]
		if start[:5] != "start" || end[:3] != "end" || start[6:] != end[4:] {
			t.Fatalf("interleaved executions: %v", order)
		}
	}
}

func TestPool_Invalidate(t *testing.T) {
	_, key := startSimulator(t)
	pool := testPool(t)

	a, err := pool.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	pool.Invalidate(key)

	if err := a.Connect(context.Background()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed on invalidated handle, got %v", err)
	}

	b, err := pool.Get(key)
	if err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if a == b {
		t.Error("expected a fresh handle after invalidation")
	}
	if err := b.Connect(context.Background()); err != nil {
		t.Errorf("fresh handle should connect: %v", err)
	}
}

func TestPool_Close(t *testing.T) {
	_, key := startSimulator(t)
	pool := NewPool(time.Second, 100*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := pool.Get(key); err != nil {
		t.Fatalf("get: %v", err)
	}
	pool.Close()

	if _, err := pool.Get(key); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
	// Closing twice is harmless.
	pool.Close()
}

// ─── Reconnection ───

func TestConn_ReconnectAfterServerRestart(t *testing.T) {
	srv := mbserver.NewServer()
	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	if err := srv.ListenTCP(addr); err != nil {
		t.Fatalf("starting simulator: %v", err)
	}
	key := Key{Host: "127.0.0.1", Port: port, UnitID: 1}

	pool := testPool(t)
	conn, err := pool.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Kill the server; the next request must fail and mark disconnected.
	srv.Close()
	time.Sleep(20 * time.Millisecond)

	if _, err := conn.ReadHolding(context.Background(), 0, 1); err == nil {
		t.Fatal("expected read against dead server to fail")
	}

	// Restart on the same port; the connection must come back, either via
	// the scheduled reconnect or the next request's connect attempt.
	srv2 := mbserver.NewServer()
	if err := srv2.ListenTCP(addr); err != nil {
		t.Fatalf("restarting simulator: %v", err)
	}
	defer srv2.Close()
	srv2.HoldingRegisters[100] = 7

	deadline := time.Now().Add(3 * time.Second)
	for {
		words, err := conn.ReadHolding(context.Background(), 100, 1)
		if err == nil && len(words) == 1 && words[0] == 7 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("connection never recovered, last error: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
