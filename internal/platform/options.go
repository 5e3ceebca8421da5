package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/canvas"
	"github.com/aretw0/canopy/pkg/core"
)

// options holds the internal configuration for a canopy session.
type options struct {
	logger     *slog.Logger
	workspace  string
	clientID   string
	clientName string

	transport      core.Transport
	hub            *memory.Hub
	relayURL       string
	connectTimeout time.Duration
	insecure       bool

	pages       core.PageSource
	pagesDir    string
	pattern     string
	systemDir   string
	mustExist   bool
	noCache     bool
	serializers map[string]any

	session []canvas.Option
}

// Option defines a functional option for configuring canopy.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		workspace:   "default",
		serializers: make(map[string]any),
	}
}

// WithLogger sets the logger for the session and every component it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithWorkspace selects the workspace, and thereby the room, to join.
func WithWorkspace(id string) Option {
	return func(o *options) {
		if id != "" {
			o.workspace = id
		}
	}
}

// WithClientID fixes the replica id. By default a random UUID is used.
func WithClientID(id string) Option {
	return func(o *options) {
		o.clientID = id
	}
}

// WithClientName sets the display name announced to peers.
func WithClientName(name string) Option {
	return func(o *options) {
		o.clientName = name
	}
}

// WithTransport injects a transport. It takes precedence over WithHub and
// WithRelayURL.
func WithTransport(t core.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithHub connects the session to an in-process hub.
func WithHub(h *memory.Hub) Option {
	return func(o *options) {
		o.hub = h
	}
}

// WithRelayURL connects the session to a socket.io relay (e.g. "http://localhost:4000").
func WithRelayURL(url string) Option {
	return func(o *options) {
		o.relayURL = url
	}
}

// WithConnectTimeout bounds the first connection to the relay.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

// WithInsecureSkipVerify disables TLS verification towards the relay.
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *options) {
		o.insecure = skip
	}
}

// WithPages injects a page source. It takes precedence over WithPagesDir.
func WithPages(src core.PageSource) Option {
	return func(o *options) {
		o.pages = src
	}
}

// WithPagesDir mirrors the pages stored as files below dir.
func WithPagesDir(dir string) Option {
	return func(o *options) {
		o.pagesDir = dir
	}
}

// WithPattern sets the doublestar pattern that selects page files.
func WithPattern(pattern string) Option {
	return func(o *options) {
		o.pattern = pattern
	}
}

// WithSystemDir sets the hidden directory name used for the page cache (e.g. ".canopy").
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.systemDir = name
	}
}

// WithMustExist requires the page directory to exist already.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithNoCache disables the persisted parse cache of the page directory.
func WithNoCache(disabled bool) Option {
	return func(o *options) {
		o.noCache = disabled
	}
}

// WithSerializer registers a page serializer for a file extension.
// s must implement fs.Serializer; using 'any' keeps adapters out of the
// public API, so the check happens in New.
func WithSerializer(ext string, s any) Option {
	return func(o *options) {
		o.serializers[ext] = s
	}
}

// WithSyncTimeout bounds the wait for the first sync reply.
func WithSyncTimeout(d time.Duration) Option {
	return func(o *options) {
		o.session = append(o.session, canvas.WithSyncTimeout(d))
	}
}

// WithEventBuffer sets the buffer of each Watch channel. Zero means default (100).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.session = append(o.session, canvas.WithEventBuffer(size))
	}
}

// WithIntersector replaces the bounding-box intersection query.
func WithIntersector(in core.Intersector) Option {
	return func(o *options) {
		o.session = append(o.session, canvas.WithIntersector(in))
	}
}

// WithRenderer registers fn to receive every new frame.
func WithRenderer(fn func(canvas.Frame)) Option {
	return func(o *options) {
		o.session = append(o.session, canvas.WithRenderer(fn))
	}
}

// WithInvalidateHook registers fn to run when a peer creates or deletes a node.
func WithInvalidateHook(fn func()) Option {
	return func(o *options) {
		o.session = append(o.session, canvas.WithInvalidateHook(fn))
	}
}

// WithNoteSize sets the size assumed for notes in geometry.
func WithNoteSize(d core.Dimensions) Option {
	return func(o *options) {
		o.session = append(o.session, canvas.WithNoteSize(d))
	}
}

// WithSessionOption passes a canvas option through unchanged.
func WithSessionOption(opt canvas.Option) Option {
	return func(o *options) {
		o.session = append(o.session, opt)
	}
}
