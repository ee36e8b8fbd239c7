package ws

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	derror "avatar-live-server/internal/error"
	"avatar-live-server/internal/infra/metrics"
)

var (
	ErrClosed    = derror.ErrConnectionClosed
	ErrQueueFull = derror.ErrSendQueueFull
)

type Config struct {
	SendQueue      int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 8 << 20
	}
	return c
}

// socket is the subset of *websocket.Conn the pumps use.
type socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Conn is one client connection with a bounded outbound queue. Send never
// blocks; the writer pump is the only goroutine touching the socket for writes.
type Conn struct {
	id     string
	remote string
	sock   socket
	cfg    Config
	log    zerolog.Logger

	send      chan []byte
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(sock socket, remote string, cfg Config, logger *zerolog.Logger) *Conn {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	return &Conn{
		id:     id,
		remote: remote,
		sock:   sock,
		cfg:    cfg,
		log:    logger.With().Str("component", "ws").Str("conn_id", id).Logger(),
		send:   make(chan []byte, cfg.SendQueue),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) Remote() string { return c.remote }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send queues one text frame. It fails fast when the connection is closed or
// the queue is full.
func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.send <- data:
		return nil
	default:
		metrics.IncOutboundDropped()
		return ErrQueueFull
	}
}

// Close is idempotent and safe from any goroutine.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.sock.Close()
	})
	return err
}

// ReadPump delivers text frames to inbound until the peer goes away or ctx
// ends. It closes inbound on return.
func (c *Conn) ReadPump(ctx context.Context, inbound chan<- []byte) error {
	defer close(inbound)

	wait := c.cfg.PingInterval * 2
	c.sock.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(wait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		mt, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return err
		}
		_ = c.sock.SetReadDeadline(time.Now().Add(wait))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		select {
		case inbound <- data:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		}
	}
}

// WritePump drains the send queue, pinging the peer periodically. A write
// failure closes the connection.
func (c *Conn) WritePump(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush()
			_ = c.sock.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			_ = c.Close()
			return nil
		case <-c.done:
			return ErrClosed
		case <-ticker.C:
			if err := c.sock.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				_ = c.Close()
				return err
			}
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				_ = c.Close()
				return err
			}
		}
	}
}

func (c *Conn) write(msg []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.sock.WriteMessage(websocket.TextMessage, msg)
}

// flush writes whatever is already queued, best effort.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Handler upgrades requests and hands each connection to serve, which owns
// it until it returns.
type Handler struct {
	upgrader websocket.Upgrader
	cfg      Config
	serve    func(ctx context.Context, c *Conn)
	log      *zerolog.Logger
}

func NewHandler(cfg Config, serve func(ctx context.Context, c *Conn), logger *zerolog.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cfg:   cfg,
		serve: serve,
		log:   logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	c := newConn(sock, r.RemoteAddr, h.cfg, h.log)
	defer c.Close()
	h.serve(r.Context(), c)
}
