package canvas

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/aretw0/canopy/pkg/core"
)

// Defaults for a Session.
const (
	DefaultSyncTimeout = 3 * time.Second
	DefaultEventBuffer = 100
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger for the session and the components it owns.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTransport connects the session to a room. Without one the session is
// local-only.
func WithTransport(t core.Transport) Option {
	return func(s *Session) { s.transport = t }
}

// WithPages sets the page source the reconciler mirrors. When it also
// implements core.PageWatcher, changes are picked up automatically.
func WithPages(src core.PageSource) Option {
	return func(s *Session) { s.pages = src }
}

// WithWorkspace sets the workspace whose room the session joins.
func WithWorkspace(id string) Option {
	return func(s *Session) { s.workspace = id }
}

// WithClientName sets the display name announced to peers.
func WithClientName(name string) Option {
	return func(s *Session) { s.clientName = name }
}

// WithIntersector replaces the bounding-box intersection query, for a
// renderer that knows measured node sizes.
func WithIntersector(in core.Intersector) Option {
	return func(s *Session) { s.intersector = in }
}

// WithRenderer registers fn to receive every new frame. fn runs on the
// session queue and must not call back into the session synchronously.
func WithRenderer(fn func(Frame)) Option {
	return func(s *Session) { s.renderer = fn }
}

// WithInvalidateHook registers fn to run whenever a remote peer creates or
// deletes a node, just before the page list is refetched.
func WithInvalidateHook(fn func()) Option {
	return func(s *Session) { s.onInvalidate = fn }
}

// WithRand sets the random source for note placement.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) {
		if r != nil {
			s.rand = r
		}
	}
}

// WithNoteSize sets the size assumed for notes in geometry.
func WithNoteSize(d core.Dimensions) Option {
	return func(s *Session) { s.noteSize = d }
}

// WithSpawnArea sets the side of the square new notes are placed in.
func WithSpawnArea(side float64) Option {
	return func(s *Session) { s.spawnArea = side }
}

// WithSyncTimeout bounds the wait for the first sync reply in Open.
func WithSyncTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.syncTimeout = d
		}
	}
}

// WithEventBuffer sets the buffer of each Watch channel.
func WithEventBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.eventBuffer = n
		}
	}
}
