// Package socketio implements core.Transport on a socket.io client talking
// to the canopy relay.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/aretw0/canopy/internal/mailbox"
	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/relay"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithNamespace selects the socket.io namespace. Defaults to "/".
func WithNamespace(ns string) Option {
	return func(t *Transport) { t.namespace = ns }
}

// WithInsecureSkipVerify disables TLS certificate checks.
func WithInsecureSkipVerify(skip bool) Option {
	return func(t *Transport) { t.insecure = skip }
}

// WithConnectTimeout bounds the wait for the first connection.
func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// Transport is a socket.io connection to one relay room. The client library
// reconnects on its own; every (re)connection re-joins the room and queues
// a connected notice so the session re-syncs.
type Transport struct {
	rawURL    string
	namespace string
	insecure  bool
	timeout   time.Duration
	logger    *slog.Logger
	box       *mailbox.Mailbox[core.Message]

	mu       sync.Mutex
	io       *socket.Socket
	room     string
	clientID string
	online   bool
	closed   bool
}

// New returns an unconnected transport for the relay at rawURL, for example
// "http://localhost:4444/socket.io/".
func New(rawURL string, opts ...Option) *Transport {
	t := &Transport{
		rawURL:    rawURL,
		namespace: "/",
		timeout:   15 * time.Second,
		logger:    slog.New(slog.DiscardHandler),
		box:       mailbox.New[core.Message](),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect dials the relay and waits for the first successful connection.
func (t *Transport) Connect(ctx context.Context, room, clientID string) error {
	parsedURL, err := url.Parse(t.rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	path := parsedURL.Path
	if path == "" || path == "/" {
		path = relay.DefaultPath
	}
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return core.ErrClosed
	}
	if t.io != nil {
		t.mu.Unlock()
		return fmt.Errorf("already connected to %s", t.room)
	}
	t.room, t.clientID = room, clientID
	t.mu.Unlock()

	logger := t.logger.With("url", t.rawURL, "room", room)

	opts := socket.DefaultOptions()
	opts.SetPath(path)
	if t.insecure {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(t.namespace, opts)

	join, err := relay.EncodeJoin(relay.JoinRequest{Room: room, ClientID: clientID})
	if err != nil {
		return err
	}

	first := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		logger.Info("connected to relay", "sid", io.Id())
		t.setOnline(true)
		io.Emit(relay.EventJoin, join)
		t.box.Push(core.Message{Kind: core.MessageConnected, Room: room, From: clientID})
		select {
		case first <- nil:
		default:
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		logger.Debug("relay connect error", "error", err)
		select {
		case first <- err:
		default:
		}
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		t.setOnline(false)
		logger.Info("disconnected from relay", "reason", reason)
	})
	io.On(types.EventName(relay.EventMessage), func(args ...any) {
		if len(args) == 0 {
			return
		}
		msg, err := relay.DecodeMessage(args[0])
		if err != nil {
			logger.Debug("dropping malformed message", "error", err)
			return
		}
		t.box.Push(msg)
	})

	t.mu.Lock()
	t.io = io
	t.mu.Unlock()
	io.Connect()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case err := <-first:
		if err != nil {
			t.disconnect()
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		t.disconnect()
		return fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		t.disconnect()
		return fmt.Errorf("timed out after %s waiting for socket.io connection", t.timeout)
	}
}

// Send emits msg to the room through the relay.
func (t *Transport) Send(msg core.Message) error {
	t.mu.Lock()
	io, online, closed := t.io, t.online, t.closed
	msg.Room, msg.From = t.room, t.clientID
	t.mu.Unlock()
	switch {
	case closed:
		return core.ErrClosed
	case io == nil || !online:
		return core.ErrNotConnected
	}
	text, err := relay.EncodeMessage(msg)
	if err != nil {
		return err
	}
	io.Emit(relay.EventMessage, text)
	return nil
}

// Messages delivers relayed messages and connected notices.
func (t *Transport) Messages() <-chan core.Message { return t.box.Out() }

// Close disconnects. Safe to call twice.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	t.disconnect()
	t.box.Close()
	return nil
}

func (t *Transport) setOnline(online bool) {
	t.mu.Lock()
	t.online = online
	t.mu.Unlock()
}

func (t *Transport) disconnect() {
	t.mu.Lock()
	io := t.io
	t.io = nil
	t.online = false
	t.mu.Unlock()
	if io != nil {
		t.logger.Debug("Disconnecting socket client", "sid", io.Id())
		io.Disconnect()
	}
}

var _ core.Transport = (*Transport)(nil)
