// Package streamer runs the authenticated WebSocket session and the
// supervisor that restarts it after the connection closes.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/telemetry"
	"github.com/YaganovValera/market-stream/services/streamer/internal/amtclient"
	"github.com/YaganovValera/market-stream/services/streamer/internal/metrics"
	"github.com/YaganovValera/market-stream/services/streamer/internal/service"
)

var tracer = telemetry.Tracer("streamer/session")

// ErrConnectionClosed: the socket was closed or broke. It is the only
// error the supervisor recovers from.
var ErrConnectionClosed = errors.New("streamer: connection closed")

// Principals is the per-session view of the user principals.
type Principals interface {
	Credentials() (amtclient.Credentials, error)
	SocketURL() string
}

// PrincipalsFunc fetches fresh principals (and a fresh streaming token).
type PrincipalsFunc func(ctx context.Context) (Principals, error)

// Config: параметры WebSocket-сессии.
type Config struct {
	Service          service.Type
	Scheme           string // "wss" in production
	Path             string // "/ws"
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // read deadline; pings go out every ReadTimeout/3
	WriteTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.Scheme == "" {
		c.Scheme = "wss"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Client opens streaming sessions. One Client runs one session at a time.
type Client struct {
	cfg        Config
	principals PrincipalsFunc
	registry   *service.Registry
	dialer     *websocket.Dialer
	log        *logger.Logger
	state      atomic.Int32
}

// New builds a streaming client.
func New(cfg Config, principals PrincipalsFunc, registry *service.Registry, log *logger.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:        cfg,
		principals: principals,
		registry:   registry,
		dialer:     &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		log:        log.Named("session"),
	}
}

// State returns the current session state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(ctx context.Context, s State) {
	prev := State(c.state.Swap(int32(s)))
	metrics.SessionState.Set(float64(s))
	if prev != s {
		c.log.WithContext(ctx).Debug("session state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Stream runs one session: connect, login, subscribe and receive until
// the connection closes or ctx is cancelled. Socket failures are
// reported as ErrConnectionClosed; every other error is returned as is.
func (c *Client) Stream(ctx context.Context) (err error) {
	ctx = logger.ContextWithSessionID(ctx, uuid.NewString())
	ctx, span := tracer.Start(ctx, "Stream", trace.WithAttributes(attribute.String("service", string(c.cfg.Service))))
	defer span.End()

	defer func() {
		switch {
		case ctx.Err() != nil:
			c.setState(ctx, Closed)
		case err != nil:
			telemetry.Fail(span, err)
			c.setState(ctx, Failed)
		}
	}()

	// Connecting
	c.setState(ctx, Connecting)
	p, err := c.principals(ctx)
	if err != nil {
		return err
	}
	creds, err := p.Credentials()
	if err != nil {
		return err
	}
	u := url.URL{Scheme: c.cfg.Scheme, Host: p.SocketURL(), Path: c.cfg.Path}
	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("streamer: dial %s: %w", u.String(), err)
	}
	defer conn.Close()
	c.log.WithContext(ctx).Info("ws: connected", zap.String("url", u.String()))

	// Закрываем сокет при отмене контекста, чтобы разблокировать чтение.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	c.keepalive(pingCtx, conn)

	// Authenticating
	c.setState(ctx, Authenticating)
	login, err := loginFrame(creds)
	if err != nil {
		return err
	}
	if err := c.write(conn, login); err != nil {
		return c.socketErr(ctx, "login", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		return c.socketErr(ctx, "login ack", err)
	}

	// Subscribing
	c.setState(ctx, Subscribing)
	client, err := c.registry.Client(c.cfg.Service, creds)
	if err != nil {
		return err
	}
	req, err := client.Request()
	if err != nil {
		return err
	}
	if err := c.write(conn, req); err != nil {
		return c.socketErr(ctx, "subscribe", err)
	}

	// Streaming
	c.setState(ctx, Streaming)
	c.log.WithContext(ctx).Info("ws: streaming", zap.String("service", string(c.cfg.Service)))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return c.socketErr(ctx, "read", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		metrics.FramesTotal.Inc()

		if _, err := client.HandleMessage(ctx, data); err != nil {
			if errors.Is(err, service.ErrDecode) {
				metrics.DecodeErrors.Inc()
			}
			return fmt.Errorf("streamer: handle frame: %w", err)
		}
	}
}

func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// keepalive arms the read deadline and pings the server until ctx ends.
// A missed pong surfaces as a read timeout in the receive loop.
func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(c.cfg.ReadTimeout / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
					c.log.WithContext(ctx).Warn("ws: ping failed", zap.Error(err))
				}
			}
		}
	}()
}

func (c *Client) socketErr(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.log.WithContext(ctx).Warn("ws: connection closed", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrConnectionClosed, stage, err)
}
