// Package lifecycle bridges canvas event streams to lifecycle sources.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/canopy/pkg/core"
)

// Watcher is anything that streams graph events, such as a canvas session.
type Watcher interface {
	Watch(ctx context.Context) <-chan core.Event
}

type canvasSource struct {
	watcher Watcher
	out     chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits the graph events of w.
func NewSource(w Watcher) lifecycle.Source {
	return &canvasSource{
		watcher: w,
		out:     make(chan lifecycle.Event),
	}
}

func (s *canvasSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start subscribes to the watcher and forwards its events until ctx is done
// or the stream ends, then closes Events.
func (s *canvasSource) Start(ctx context.Context) error {
	events := s.watcher.Watch(ctx)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// core.Event implements lifecycle.Event (has String())
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
