package oscpipe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestListener_DispatchesRecenter(t *testing.T) {
	recentered := make(chan struct{}, 1)
	l, err := NewListener("127.0.0.1", 0, "/recenter", "/recalibrate", "/sync_blink", Commands{
		Recenter: func() { recentered <- struct{}{} },
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)

	client, err := net.Dial("udp", l.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	msg := buildMessage("/recenter")
	if _, err := client.Write(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case <-recentered:
	case <-time.After(time.Second):
		t.Fatal("expected recenter callback to fire")
	}
}

func TestListener_IgnoresUnknownAddress(t *testing.T) {
	called := make(chan struct{}, 1)
	l, err := NewListener("127.0.0.1", 0, "/recenter", "/recalibrate", "/sync_blink", Commands{
		Recenter: func() { called <- struct{}{} },
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)

	client, err := net.Dial("udp", l.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	if _, err := client.Write(buildMessage("/unknown")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case <-called:
		t.Fatal("did not expect recenter callback to fire for an unknown address")
	case <-time.After(100 * time.Millisecond):
	}
}
