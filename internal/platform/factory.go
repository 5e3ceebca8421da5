package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/canopy/pkg/adapters/fs"
	"github.com/aretw0/canopy/pkg/adapters/socketio"
	"github.com/aretw0/canopy/pkg/canvas"
	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/crdt"
	"github.com/google/uuid"
)

// New wires a session from options without opening it:
//
//	s, err := canopy.New(canopy.WithRelayURL("http://localhost:4000"), canopy.WithPagesDir("./pages"))
func New(opts ...Option) (*canvas.Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	clientID := o.clientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	doc := crdt.New(clientID, crdt.WithLogger(o.logger))

	pages, err := buildPages(o)
	if err != nil {
		return nil, err
	}

	sessionOpts := []canvas.Option{
		canvas.WithLogger(o.logger),
		canvas.WithWorkspace(o.workspace),
		canvas.WithClientName(o.clientName),
	}
	if pages != nil {
		sessionOpts = append(sessionOpts, canvas.WithPages(pages))
	}
	if t := buildTransport(o); t != nil {
		sessionOpts = append(sessionOpts, canvas.WithTransport(t))
	}
	sessionOpts = append(sessionOpts, o.session...)

	return canvas.New(doc, sessionOpts...), nil
}

// Open wires a session and opens it. On failure the session is closed.
func Open(ctx context.Context, opts ...Option) (*canvas.Session, error) {
	s, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Open(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func buildTransport(o *options) core.Transport {
	switch {
	case o.transport != nil:
		return o.transport
	case o.hub != nil:
		return o.hub.Dial()
	case o.relayURL != "":
		topts := []socketio.Option{
			socketio.WithLogger(o.logger),
			socketio.WithInsecureSkipVerify(o.insecure),
		}
		if o.connectTimeout > 0 {
			topts = append(topts, socketio.WithConnectTimeout(o.connectTimeout))
		}
		return socketio.New(o.relayURL, topts...)
	default:
		return nil
	}
}

func buildPages(o *options) (core.PageSource, error) {
	if o.pages != nil {
		return o.pages, nil
	}
	if o.pagesDir == "" {
		return nil, nil
	}
	return newPageDir(o)
}

// newPageDir builds the filesystem page source described by the options.
func newPageDir(o *options) (*fs.PageDir, error) {
	var serializers map[string]fs.Serializer
	if len(o.serializers) > 0 {
		serializers = fs.DefaultSerializers()
		for ext, s := range o.serializers {
			ser, ok := s.(fs.Serializer)
			if !ok {
				return nil, fmt.Errorf("serializer for %q does not implement fs.Serializer", ext)
			}
			serializers[ext] = ser
		}
	}
	return fs.NewPageDir(fs.Config{
		Path:        o.pagesDir,
		Pattern:     o.pattern,
		SystemDir:   o.systemDir,
		MustExist:   o.mustExist,
		NoCache:     o.noCache,
		Logger:      o.logger,
		Serializers: serializers,
	})
}

// PageDir builds only the page directory, for tools that edit pages
// without joining a room.
func PageDir(opts ...Option) (*fs.PageDir, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.pagesDir == "" {
		return nil, fmt.Errorf("no page directory configured")
	}
	return newPageDir(o)
}
