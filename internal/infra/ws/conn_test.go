//go:build !integration

package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// echoServe runs both pumps and echoes every inbound frame back.
func echoServe(ctx context.Context, c *Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	inbound := make(chan []byte, 4)
	go func() { _ = c.ReadPump(ctx, inbound) }()
	writerDone := make(chan struct{})
	go func() { _ = c.WritePump(ctx); close(writerDone) }()

	for msg := range inbound {
		_ = c.Send(append([]byte("echo:"), msg...))
	}
	cancel()
	<-writerDone
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandler_Echo(t *testing.T) {
	logger := zerolog.Nop()
	srv := httptest.NewServer(NewHandler(Config{PingInterval: time.Second}, echoServe, &logger))
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "echo:hi" {
		t.Errorf("got %q", data)
	}
}

type nopSocket struct{ closed bool }

func (s *nopSocket) ReadMessage() (int, []byte, error)         { return 0, nil, errors.New("eof") }
func (s *nopSocket) WriteMessage(int, []byte) error            { return nil }
func (s *nopSocket) WriteControl(int, []byte, time.Time) error { return nil }
func (s *nopSocket) SetReadLimit(int64)                        {}
func (s *nopSocket) SetReadDeadline(time.Time) error           { return nil }
func (s *nopSocket) SetWriteDeadline(time.Time) error          { return nil }
func (s *nopSocket) SetPongHandler(func(string) error)         {}
func (s *nopSocket) Close() error                              { s.closed = true; return nil }

func TestConn_SendIsBounded(t *testing.T) {
	logger := zerolog.Nop()
	sock := &nopSocket{}
	c := newConn(sock, "test", Config{SendQueue: 2}, &logger)

	if err := c.Send([]byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := c.Send([]byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := c.Send([]byte("3")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}

	_ = c.Close()
	_ = c.Close()
	if !sock.closed {
		t.Error("socket not closed")
	}
	if err := c.Send([]byte("4")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done must be closed")
	}
}

func TestConn_ReadPumpClosesInbound(t *testing.T) {
	logger := zerolog.Nop()
	c := newConn(&nopSocket{}, "test", Config{}, &logger)
	inbound := make(chan []byte)
	if err := c.ReadPump(context.Background(), inbound); err == nil {
		t.Fatal("expected read error")
	}
	if _, ok := <-inbound; ok {
		t.Error("inbound must be closed")
	}
}
