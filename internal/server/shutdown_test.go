package server

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestDefaultShutdownConfig(t *testing.T) {
	cfg := DefaultShutdownConfig()
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.Timeout)
	}
	if len(cfg.Signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(cfg.Signals))
	}
}

func TestShutdownHandler_HookPriority(t *testing.T) {
	h := NewShutdownHandler(nil)

	h.RegisterHook("neo4j", 90, func(ctx context.Context) error { return nil })
	h.RegisterHook("health", 5, func(ctx context.Context) error { return nil })
	h.RegisterHook("worker", 20, func(ctx context.Context) error { return nil })

	if h.hooks[0].Name != "health" {
		t.Fatalf("expected 'health' first, got %s", h.hooks[0].Name)
	}
	if h.hooks[1].Name != "worker" {
		t.Fatalf("expected 'worker' second, got %s", h.hooks[1].Name)
	}
	if h.hooks[2].Name != "neo4j" {
		t.Fatalf("expected 'neo4j' third, got %s", h.hooks[2].Name)
	}
}

func TestShutdownHandler_RunsHooksInOrder(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{
		Timeout: 5 * time.Second,
	})

	var order []int

	h.RegisterHook("third", 30, func(ctx context.Context) error {
		order = append(order, 3)
		return nil
	})
	h.RegisterHook("first", 10, func(ctx context.Context) error {
		order = append(order, 1)
		return nil
	})
	h.RegisterHook("second", 20, func(ctx context.Context) error {
		order = append(order, 2)
		return nil
	})

	h.Start()
	h.Shutdown()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown timed out")
	}

	if len(order) != 3 {
		t.Fatalf("expected 3 hooks, got %d", len(order))
	}
	if order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected order [1,2,3], got %v", order)
	}
}

func TestShutdownHandler_FailingHookDoesNotStopOthers(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{
		Timeout: 5 * time.Second,
	})

	var called bool

	h.RegisterHook("failing", 10, func(ctx context.Context) error {
		return errors.New("hook failed")
	})
	h.RegisterHook("after", 20, func(ctx context.Context) error {
		called = true
		return nil
	})

	h.Start()
	h.Shutdown()
	h.Wait()

	if !called {
		t.Fatal("expected second hook to be called despite first failing")
	}
}

func TestShutdownHandler_DoubleStart(t *testing.T) {
	h := NewShutdownHandler(nil)

	h.Start()
	h.Start() // Should not panic

	if !h.started {
		t.Fatal("expected started to be true")
	}
}

func TestShutdownHandler_ShutdownBeforeStart(t *testing.T) {
	h := NewShutdownHandler(nil)

	// Should not panic
	h.Shutdown()
}

func TestNewGracefulServer(t *testing.T) {
	g := NewGracefulServer("0.1.0", nil)
	if g.Health == nil {
		t.Fatal("expected non-nil health server")
	}
	if g.Shutdown == nil {
		t.Fatal("expected non-nil shutdown handler")
	}
}

func TestGracefulServer_ShutdownFlipsReadiness(t *testing.T) {
	g := NewGracefulServer("0.1.0", &ShutdownConfig{Timeout: 2 * time.Second})
	g.Shutdown.Start()
	g.Health.SetReady(true)

	g.Shutdown.Shutdown()
	g.Wait()

	// Readiness goroutine races hook execution, so poll briefly.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		g.Health.mu.RLock()
		ready := g.Health.ready
		g.Health.mu.RUnlock()
		if !ready {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected not ready after shutdown")
}

func TestShutdownHandler_SignalClosesShutdownCh(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{
		Timeout: 2 * time.Second,
		Signals: []os.Signal{syscall.SIGUSR1},
	})
	h.Start()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("sending signal: %v", err)
	}

	// Signal-initiated shutdown must fire ShutdownCh watchers too, not
	// just run the hooks.
	select {
	case <-h.ShutdownCh():
	case <-time.After(2 * time.Second):
		t.Fatal("ShutdownCh did not close after signal")
	}

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete after signal")
	}
}

func TestGracefulServer_RegisterHook(t *testing.T) {
	g := NewGracefulServer("", nil)

	g.RegisterHook("qdrant", 50, func(ctx context.Context) error {
		return nil
	})

	// health-server hook plus the registered one.
	if len(g.Shutdown.hooks) < 2 {
		t.Fatalf("expected at least 2 hooks, got %d", len(g.Shutdown.hooks))
	}
}
