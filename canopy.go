package canopy

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/canopy/internal/platform"
	"github.com/aretw0/canopy/pkg/adapters/fs"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/canvas"
	"github.com/aretw0/canopy/pkg/core"
)

// --- Types ---

// Session is a public alias for the canvas session.
type Session = canvas.Session

// Frame is a public alias for a rendered snapshot of the canvas.
type Frame = canvas.Frame

// Config is the file form of the options.
type Config = platform.Config

// --- Configuration ---

// Option defines a functional option for configuring canopy.
type Option = platform.Option

// WithLogger sets the logger for the session.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithWorkspace selects the workspace whose room is joined.
func WithWorkspace(id string) Option {
	return platform.WithWorkspace(id)
}

// WithClientID fixes the replica id (random by default).
func WithClientID(id string) Option {
	return platform.WithClientID(id)
}

// WithClientName sets the display name announced to peers.
func WithClientName(name string) Option {
	return platform.WithClientName(name)
}

// WithRelayURL joins the room through a socket.io relay.
func WithRelayURL(url string) Option {
	return platform.WithRelayURL(url)
}

// WithHub joins the room through an in-process hub.
func WithHub(h *memory.Hub) Option {
	return platform.WithHub(h)
}

// WithTransport allows injecting a custom transport.
func WithTransport(t core.Transport) Option {
	return platform.WithTransport(t)
}

// WithPages allows injecting a custom page source.
func WithPages(src core.PageSource) Option {
	return platform.WithPages(src)
}

// WithPagesDir mirrors the page files below dir.
func WithPagesDir(dir string) Option {
	return platform.WithPagesDir(dir)
}

// WithPattern sets the pattern selecting page files.
func WithPattern(pattern string) Option {
	return platform.WithPattern(pattern)
}

// WithSerializer registers a page serializer for a file extension.
func WithSerializer(ext string, s fs.Serializer) Option {
	return platform.WithSerializer(ext, s)
}

// WithSyncTimeout bounds the wait for the initial sync.
func WithSyncTimeout(d time.Duration) Option {
	return platform.WithSyncTimeout(d)
}

// WithEventBuffer allows specifying the buffer of each Watch channel.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithRenderer registers fn to receive every new frame.
func WithRenderer(fn func(Frame)) Option {
	return platform.WithRenderer(fn)
}

// WithIntersector replaces the node intersection query.
func WithIntersector(in core.Intersector) Option {
	return platform.WithIntersector(in)
}

// WithInvalidateHook registers fn to run when a peer creates or deletes a node.
func WithInvalidateHook(fn func()) Option {
	return platform.WithInvalidateHook(fn)
}

// --- Factory ---

// New creates a session without opening it.
func New(opts ...Option) (*Session, error) {
	return platform.New(opts...)
}

// Open creates a session and joins its room.
func Open(ctx context.Context, opts ...Option) (*Session, error) {
	return platform.Open(ctx, opts...)
}

// LoadConfig reads a YAML or TOML config file.
func LoadConfig(path string) (*Config, error) {
	return platform.LoadConfig(path)
}
