package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/canopy/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zishang520/socket.io/v2/socket"
	"golang.org/x/sync/errgroup"
)

type metrics struct {
	messages *prometheus.CounterVec
	merged   prometheus.Counter
	clients  prometheus.Gauge
	errors   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_relay_messages_total",
			Help: "Messages received by the relay, by kind",
		}, []string{"kind"}),
		merged: f.NewCounter(prometheus.CounterOpts{
			Name: "canopy_relay_merged_ops_total",
			Help: "Document ops that changed a room replica",
		}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_relay_clients",
			Help: "Connected socket.io clients",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_relay_errors_total",
			Help: "Relay errors, by stage",
		}, []string{"stage"}),
	}
}

// Server relays canvas rooms over socket.io.
type Server struct {
	rooms    *Rooms
	io       *socket.Server
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics
}

// NewServer wires a socket.io server to a fresh set of rooms. Metrics go to
// a private registry exposed on /metrics.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	reg := prometheus.NewRegistry()
	s := &Server{
		rooms:    NewRooms(logger),
		io:       socket.NewServer(nil, nil),
		logger:   logger,
		registry: reg,
		metrics:  newMetrics(reg),
	}
	s.io.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.serveClient(client)
	})
	return s
}

// Rooms exposes the room registry.
func (s *Server) Rooms() *Rooms { return s.rooms }

// Handler mounts socket.io, /metrics, /healthz and /debug/rooms.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(DefaultPath, s.io.ServeHandler(nil))
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/debug/rooms", func(w http.ResponseWriter, _ *http.Request) {
		states := make([]any, 0)
		for _, r := range s.rooms.All() {
			states = append(states, r.State())
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(states)
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("relay listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.io.Close(nil)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) serveClient(client *socket.Socket) {
	s.metrics.clients.Inc()

	var (
		mu       sync.Mutex
		room     *Room
		clientID string
	)
	conn := string(client.Id())
	current := func() (*Room, string) {
		mu.Lock()
		defer mu.Unlock()
		return room, clientID
	}

	client.On(EventJoin, func(args ...any) {
		if len(args) == 0 {
			return
		}
		req, err := DecodeJoin(args[0])
		if err != nil {
			s.metrics.errors.WithLabelValues("join").Inc()
			s.logger.Warn("rejecting join", "sid", client.Id(), "error", err)
			return
		}
		r := s.rooms.Get(req.Room)
		mu.Lock()
		prev, prevID := room, clientID
		room, clientID = r, req.ClientID
		mu.Unlock()
		if prev != nil && (prev != r || prevID != req.ClientID) {
			s.leave(prev, prevID, conn)
			client.Leave(socket.Room(prev.Name()))
		}
		client.Join(socket.Room(req.Room))
		r.Join(req.ClientID, conn)
	})

	client.On(EventMessage, func(args ...any) {
		r, id := current()
		if r == nil || len(args) == 0 {
			return
		}
		msg, err := DecodeMessage(args[0])
		if err != nil {
			s.metrics.errors.WithLabelValues("decode").Inc()
			s.logger.Debug("dropping malformed message", "client", id, "error", err)
			return
		}
		msg.Room, msg.From = r.Name(), id
		s.metrics.messages.WithLabelValues(string(msg.Kind)).Inc()

		route, err := r.Handle(msg)
		if err != nil {
			s.metrics.errors.WithLabelValues("merge").Inc()
			s.logger.Warn("failed to handle message", "client", id, "kind", msg.Kind, "error", err)
			return
		}
		s.metrics.merged.Add(float64(route.Merged))
		if route.Reply != nil {
			s.emit(client, *route.Reply)
		}
		if route.Broadcast {
			text, err := EncodeMessage(msg)
			if err != nil {
				return
			}
			client.To(socket.Room(r.Name())).Emit(EventMessage, text)
		}
	})

	client.On("disconnect", func(...any) {
		s.metrics.clients.Dec()
		if r, id := current(); r != nil {
			s.leave(r, id, conn)
		}
	})
}

// leave drops the client from r and tells the room, unless the client has
// since rejoined over another connection.
func (s *Server) leave(r *Room, clientID, conn string) {
	if !r.Leave(clientID, conn) {
		return
	}
	text, err := EncodeMessage(core.Message{Kind: core.MessageLeave, Room: r.Name(), From: clientID})
	if err != nil {
		return
	}
	s.io.To(socket.Room(r.Name())).Emit(EventMessage, text)
}

func (s *Server) emit(client *socket.Socket, msg core.Message) {
	text, err := EncodeMessage(msg)
	if err != nil {
		s.logger.Warn("failed to encode reply", "error", err)
		return
	}
	client.Emit(EventMessage, text)
}
