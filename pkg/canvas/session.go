// Package canvas runs a collaborative canvas session: it mirrors the page
// list into the shared document, keeps a local projection of the graph for
// rendering, and turns user gestures into document transactions.
//
// All graph state is owned by one queue goroutine. Gestures, remote updates
// and page reconciliations are closures processed in FIFO order, so no lock
// guards the projection. Blocking I/O (transport connect, page fetch) runs
// off the queue and posts its result back onto it.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/canopy/internal/mailbox"
	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/crdt"
	"github.com/aretw0/canopy/pkg/layout"
	"github.com/aretw0/canopy/pkg/presence"
	"github.com/aretw0/canopy/pkg/typed"
	"github.com/aretw0/lifecycle"
	"github.com/google/uuid"
)

// Names of the document maps.
const (
	NodesMap = "nodes"
	EdgesMap = "edges"
)

// ErrAlreadyOpen is returned by a second call to Open.
var ErrAlreadyOpen = errors.New("session already open")

// Session is one client's view of a workspace canvas.
type Session struct {
	doc   *crdt.Document
	nodes *typed.Map[core.Node]
	edges *typed.Map[core.Edge]

	transport    core.Transport
	pages        core.PageSource
	workspace    string
	clientName   string
	intersector  core.Intersector
	renderer     func(Frame)
	onInvalidate func()
	rand         *rand.Rand
	noteSize     core.Dimensions
	spawnArea    float64
	syncTimeout  time.Duration
	eventBuffer  int
	logger       *slog.Logger

	presence   *presence.Channel
	resolver   *layout.Resolver
	view       *projection
	reconciler *reconciler

	queue    *mailbox.Mailbox[func()]
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	synced   chan struct{}
	syncOnce sync.Once
	hydrated atomic.Bool

	// owned by the queue
	subs      []*crdt.Subscription
	firstSync bool // the room's first sync reply has been applied
	absorbing bool // changes being applied are initial room state

	mu             sync.Mutex
	opened         bool
	closed         bool
	cancels        []func()
	watchers       map[int]chan core.Event
	nextWatcher    int
	invalidations  int
	refreshing     bool
	refreshPending bool
}

// New creates a session over doc and starts its queue. The session is
// idle until Open; Close releases it.
func New(doc *crdt.Document, opts ...Option) *Session {
	s := &Session{
		doc:         doc,
		nodes:       typed.NewMap[core.Node](doc, NodesMap),
		edges:       typed.NewMap[core.Edge](doc, EdgesMap),
		noteSize:    layout.DefaultNoteSize,
		spawnArea:   DefaultSpawnArea,
		syncTimeout: DefaultSyncTimeout,
		eventBuffer: DefaultEventBuffer,
		rand:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:      slog.New(slog.DiscardHandler),
		done:        make(chan struct{}),
		synced:      make(chan struct{}),
		watchers:    make(map[int]chan core.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("client", doc.Replica())

	s.presence = presence.New(doc.Replica(), s.clientName, nil, s.logger)
	s.resolver = layout.NewResolver(s.intersector, s.noteSize)
	s.view = newProjection(s.nodes, s.edges, s.logger)
	s.reconciler = newReconciler(s.nodes, s.edges, s.rand, s.spawnArea, s.logger)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.queue = mailbox.New[func()]()
	lifecycle.Go(s.ctx, s.loop)
	return s
}

// Room returns the name of the room the session joins.
func (s *Session) Room() string { return core.RoomName(s.workspace) }

// ClientID returns the id the session publishes under.
func (s *Session) ClientID() string { return s.doc.Replica() }

// Document returns the underlying shared document.
func (s *Session) Document() *crdt.Document { return s.doc }

// Open joins the room, waits for the room state (bounded by the sync
// timeout), hydrates the projection, reconciles the page list and starts
// watching it for changes.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return core.ErrClosed
	case s.opened:
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.opened = true
	s.cancels = append(s.cancels,
		s.doc.OnUpdate(s.publish),
		s.presence.OnChange(func([]presence.State) { s.render() }),
	)
	s.mu.Unlock()
	s.presence.SetSender(s.send)

	if s.transport == nil {
		if err := s.run(s.hydrate); err != nil {
			return err
		}
	} else if err := s.join(ctx); err != nil {
		return err
	}

	if s.pages == nil {
		return nil
	}
	if _, err := s.Refresh(ctx); err != nil {
		return err
	}
	if w, ok := s.pages.(core.PageWatcher); ok {
		changes, err := w.WatchPages(s.ctx)
		if err != nil {
			return fmt.Errorf("failed to watch pages: %w", err)
		}
		lifecycle.Go(s.ctx, func(ctx context.Context) error {
			return s.followPages(ctx, changes)
		})
	}
	return nil
}

func (s *Session) join(ctx context.Context) error {
	room := s.Room()
	if err := s.transport.Connect(ctx, room, s.doc.Replica()); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", room, err)
	}
	lifecycle.Go(s.ctx, s.pump, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("transport pump failed", "error", err)
	}))

	timer := time.NewTimer(s.syncTimeout)
	defer timer.Stop()
	select {
	case <-s.synced:
		return nil
	case <-timer.C:
		s.logger.Warn("no sync reply, starting from local state", "room", room, "timeout", s.syncTimeout)
		return s.run(s.hydrate)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return core.ErrClosed
	}
}

// Close stops the queue, drops every subscription and closes the
// transport. No callback fires after Close returns. It must not be called
// from a renderer or hook.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	s.cancel()
	s.queue.Close()
	<-s.done

	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	for _, c := range cancels {
		c()
	}
	s.presence.Close()

	s.mu.Lock()
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.mu.Unlock()

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// Watch streams graph changes until ctx is done or the session closes.
// Events are dropped when the consumer falls a full buffer behind.
func (s *Session) Watch(ctx context.Context) <-chan core.Event {
	ch := make(chan core.Event, s.eventBuffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = ch
	s.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
		return nil
	})
	return ch
}

// Frame returns the current render state.
func (s *Session) Frame() (Frame, error) {
	var f Frame
	err := s.run(func() { f = s.view.frame(s.presence.Cursors()) })
	return f, err
}

// Peers returns the other clients present in the room.
func (s *Session) Peers() []presence.State { return s.presence.Peers() }

// Presence returns the local presence record.
func (s *Session) Presence() presence.State { return s.presence.Local() }

// Refresh fetches the page list and reconciles it.
func (s *Session) Refresh(ctx context.Context) (ReconcileResult, error) {
	if s.pages == nil {
		return ReconcileResult{}, nil
	}
	pages, err := s.pages.Pages(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("failed to fetch pages: %w", err)
	}
	return s.Reconcile(ctx, pages)
}

// Reconcile mirrors pages into the document in one transaction.
func (s *Session) Reconcile(ctx context.Context, pages []core.Page) (ReconcileResult, error) {
	var res ReconcileResult
	err := s.runCtx(ctx, func() {
		s.doc.Transact(func(tx *crdt.Tx) {
			res = s.reconciler.run(tx, pages)
		})
	})
	if err == nil && !res.Empty() {
		s.logger.Info("reconciled pages",
			"created", len(res.Created), "updated", len(res.Updated), "deleted", len(res.Deleted))
	}
	return res, err
}

// ApplyNodeChanges applies changes reported by the rendering surface.
func (s *Session) ApplyNodeChanges(changes []core.NodeChange) error {
	return s.run(func() {
		for _, ch := range changes {
			s.applyNodeChange(ch)
		}
	})
}

func (s *Session) applyNodeChange(ch core.NodeChange) {
	switch ch.Type {
	case core.NodeChangePosition:
		n, ok := s.view.node(ch.ID)
		if !ok || ch.Position == nil {
			s.logger.Debug("ignoring position change", "id", ch.ID)
			return
		}
		n.Position = *ch.Position
		s.commitNode(n)
	case core.NodeChangeDimensions:
		n, ok := s.view.node(ch.ID)
		if !ok || ch.Dimensions == nil || !n.IsGroup() {
			s.logger.Debug("ignoring dimensions change", "id", ch.ID)
			return
		}
		n.Group.Dimensions = *ch.Dimensions
		s.commitNode(n)
	case core.NodeChangeSelect:
		if s.view.setSelected(ch.ID, ch.Selected) {
			s.render()
		}
	case core.NodeChangeRemove:
		n, ok := s.view.node(ch.ID)
		if !ok {
			return
		}
		if !n.IsGroup() {
			s.logger.Debug("notes follow their pages, ignoring remove", "id", ch.ID)
			return
		}
		s.removeNode(ch.ID)
	case core.NodeChangeAdd:
		if ch.Node == nil {
			return
		}
		if err := ch.Node.Validate(); err != nil {
			s.logger.Warn("rejecting node", "error", err)
			return
		}
		if !ch.Node.IsGroup() {
			s.logger.Debug("notes follow their pages, ignoring add", "id", ch.Node.ID)
			return
		}
		if _, exists := s.view.node(ch.Node.ID); exists {
			return
		}
		s.commit(layout.Plan{Nodes: []core.Node{ch.Node.Clone()}})
	default:
		s.logger.Debug("unknown node change", "type", ch.Type)
	}
}

// ApplyEdgeChanges applies edge changes reported by the rendering surface.
func (s *Session) ApplyEdgeChanges(changes []core.EdgeChange) error {
	return s.run(func() {
		for _, ch := range changes {
			switch ch.Type {
			case core.EdgeChangeRemove:
				s.doc.Transact(func(tx *crdt.Tx) {
					if !s.edges.Remove(tx, ch.ID) {
						s.logger.Debug("edge already gone", "id", ch.ID)
					}
				})
			case core.EdgeChangeAdd:
				if ch.Edge == nil {
					continue
				}
				s.connect(core.Connection{Source: ch.Edge.Source, Target: ch.Edge.Target})
			default:
				s.logger.Debug("unknown edge change", "type", ch.Type)
			}
		}
	})
}

// Connect creates the edge between two nodes with the best handles. It
// reports false when an endpoint is missing or the pair is already joined.
func (s *Session) Connect(c core.Connection) (core.Edge, bool, error) {
	var (
		e       core.Edge
		created bool
	)
	err := s.run(func() { e, created = s.connect(c) })
	return e, created, err
}

func (s *Session) connect(c core.Connection) (core.Edge, bool) {
	if c.Source == "" || c.Target == "" || c.Source == c.Target {
		s.logger.Debug("ignoring connection", "source", c.Source, "target", c.Target)
		return core.Edge{}, false
	}
	a := s.view.arena(s.noteSize)
	if _, ok := a.Node(c.Source); !ok {
		s.logger.Debug("connection source missing", "id", c.Source)
		return core.Edge{}, false
	}
	if _, ok := a.Node(c.Target); !ok {
		s.logger.Debug("connection target missing", "id", c.Target)
		return core.Edge{}, false
	}

	var (
		e       core.Edge
		created bool
	)
	id := core.EdgeID(c.Source, c.Target)
	s.doc.Transact(func(tx *crdt.Tx) {
		if existing, ok := s.edges.Lookup(tx, id); ok {
			e = existing
			return
		}
		src, tgt := layout.BestHandles(a, c.Source, c.Target)
		e = core.Edge{ID: id, Source: c.Source, Target: c.Target, SourceHandle: src, TargetHandle: tgt}
		if err := s.edges.Put(tx, id, e); err != nil {
			s.logger.Warn("failed to write edge", "id", id, "error", err)
			return
		}
		created = true
	})
	return e, created
}

// DragStart marks id as held by this client.
func (s *Session) DragStart(id string) error {
	return s.run(func() {
		if _, ok := s.view.node(id); !ok {
			s.logger.Debug("drag start on unknown node", "id", id)
			return
		}
		s.announce(s.presence.SetHolding(id))
	})
}

// DragStop releases the hold and resolves group membership for id.
func (s *Session) DragStop(id string) error {
	return s.run(func() {
		s.announce(s.presence.SetHolding(""))
		plan := s.resolver.DragStop(s.view.arena(s.noteSize), s.view.allEdges(), id)
		s.commit(plan)
	})
}

// AddGroup creates a group container and returns it.
func (s *Session) AddGroup(pos core.XY, dims core.Dimensions, label string) (core.Node, error) {
	n := core.NewGroup(uuid.NewString(), pos, dims, label)
	if err := n.Validate(); err != nil {
		return core.Node{}, err
	}
	err := s.run(func() { s.commit(layout.Plan{Nodes: []core.Node{n}}) })
	return n, err
}

// RemoveNode deletes a node and the edges touching it. A group's children
// are detached first, keeping their absolute position.
func (s *Session) RemoveNode(id string) error {
	return s.run(func() { s.removeNode(id) })
}

func (s *Session) removeNode(id string) {
	n, ok := s.view.node(id)
	if !ok {
		s.logger.Debug("remove of unknown node", "id", id)
		return
	}
	var detached []core.Node
	if n.IsGroup() {
		detached = layout.Detach(s.view.arena(s.noteSize), id)
	}
	s.doc.Transact(func(tx *crdt.Tx) {
		for _, c := range detached {
			if err := s.nodes.Put(tx, c.ID, c); err != nil {
				s.logger.Warn("failed to detach child", "id", c.ID, "error", err)
			}
		}
		s.nodes.Remove(tx, id)
		removeEdgesTouching(tx, s.edges, id)
	})
}

// UpdatePage rewrites the data of the note backing page, if there is one.
func (s *Session) UpdatePage(page core.Page) error {
	return s.run(func() {
		id := page.NodeID()
		data := core.NoteData{Title: page.Title, PageID: page.ID, Emoji: page.Emoji}
		s.doc.Transact(func(tx *crdt.Tx) {
			n, ok := s.nodes.Lookup(tx, id)
			if !ok || n.Kind() != core.KindNote || *n.Note == data {
				return
			}
			n.Note = &data
			if err := s.nodes.Put(tx, id, n); err != nil {
				s.logger.Warn("failed to update note", "id", id, "error", err)
			}
		})
	})
}

// Arrange lays the ungrouped notes out on a grid ordered by page id.
func (s *Session) Arrange() error {
	return s.run(func() {
		a := s.view.arena(s.noteSize)
		moved := layout.Arrange(a, core.XY{})
		ids := make([]string, 0, len(moved))
		for _, n := range moved {
			ids = append(ids, n.ID)
		}
		s.commit(layout.Plan{Nodes: moved, Edges: layout.ReanchorTouching(a, s.view.allEdges(), ids...)})
	})
}

// Focus returns the absolute bounds of id for the renderer to center on.
func (s *Session) Focus(id string) (layout.Rect, bool, error) {
	var (
		r  layout.Rect
		ok bool
	)
	err := s.run(func() {
		a := s.view.arena(s.noteSize)
		if _, ok = a.Node(id); ok {
			r = a.Bounds(id)
		}
	})
	return r, ok, err
}

// MoveCursor publishes the local cursor position.
func (s *Session) MoveCursor(p core.XY) error {
	return s.run(func() { s.announce(s.presence.SetCursor(p)) })
}

// LeaveCanvas withdraws the local cursor.
func (s *Session) LeaveCanvas() error {
	return s.run(func() { s.announce(s.presence.ClearCursor()) })
}

func (s *Session) announce(err error) {
	if err != nil && !errors.Is(err, core.ErrNotConnected) {
		s.logger.Debug("failed to publish presence", "error", err)
	}
}

// commitNode writes n and re-anchors the edges of n and, for a group, of
// its children, whose absolute geometry moved with it.
func (s *Session) commitNode(n core.Node) {
	a := s.view.arena(s.noteSize)
	a.Update(n)
	ids := []string{n.ID}
	if n.IsGroup() {
		for _, c := range a.Children(n.ID) {
			ids = append(ids, c.ID)
		}
	}
	s.commit(layout.Plan{
		Nodes: []core.Node{n},
		Edges: layout.ReanchorTouching(a, s.view.allEdges(), ids...),
	})
}

func (s *Session) commit(plan layout.Plan) {
	if plan.Empty() {
		return
	}
	s.doc.Transact(func(tx *crdt.Tx) {
		for _, n := range plan.Nodes {
			if err := s.nodes.Put(tx, n.ID, n); err != nil {
				s.logger.Warn("failed to write node", "id", n.ID, "error", err)
			}
		}
		for _, e := range plan.Edges {
			if err := s.edges.Put(tx, e.ID, e); err != nil {
				s.logger.Warn("failed to write edge", "id", e.ID, "error", err)
			}
		}
	})
}

// hydrate subscribes the projection to the document. It runs once.
func (s *Session) hydrate() {
	if s.hydrated.Swap(true) {
		return
	}
	nodeEntries, nodeSub := s.doc.Observe(NodesMap, s.onNodes)
	edgeEntries, edgeSub := s.doc.Observe(EdgesMap, s.onEdges)
	s.subs = append(s.subs, nodeSub, edgeSub)

	nodes := s.nodes.DecodeEntries(nodeEntries, func(id string, err error) {
		s.logger.Warn("skipping undecodable node", "id", id, "error", err)
	})
	edges := s.edges.DecodeEntries(edgeEntries, func(id string, err error) {
		s.logger.Warn("skipping undecodable edge", "id", id, "error", err)
	})
	s.view.hydrate(nodes, edges)
	s.logger.Debug("hydrated", "nodes", len(nodes), "edges", len(edges))
	s.render()
}

func (s *Session) onNodes(changes []crdt.Change) {
	events, invalidate := s.view.applyNodes(changes)
	s.emit(events)
	s.render()
	if invalidate && !s.absorbing {
		s.invalidate()
	}
}

func (s *Session) onEdges(changes []crdt.Change) {
	s.emit(s.view.applyEdges(changes))
	s.render()
}

func (s *Session) render() {
	if s.renderer == nil || s.isClosed() {
		return
	}
	s.renderer(s.view.frame(s.presence.Cursors()))
}

func (s *Session) emit(events []core.Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		for _, ch := range s.watchers {
			select {
			case ch <- ev:
			default:
				s.logger.Warn("watch buffer full, dropping event", "event", ev.String())
			}
		}
	}
}

// invalidate refetches the page list after a remote peer created or
// removed a node. Concurrent requests collapse into one follow-up fetch.
func (s *Session) invalidate() {
	s.mu.Lock()
	s.invalidations++
	s.mu.Unlock()
	if s.onInvalidate != nil {
		s.onInvalidate()
	}
	s.requestRefresh()
}

func (s *Session) requestRefresh() {
	if s.pages == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.refreshing {
		s.refreshPending = true
		s.mu.Unlock()
		return
	}
	s.refreshing = true
	s.mu.Unlock()

	lifecycle.Go(s.ctx, func(ctx context.Context) error {
		for {
			if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, core.ErrClosed) && ctx.Err() == nil {
				s.logger.Warn("page refresh failed", "error", err)
			}
			s.mu.Lock()
			if !s.refreshPending || s.closed {
				s.refreshing = false
				s.mu.Unlock()
				return nil
			}
			s.refreshPending = false
			s.mu.Unlock()
		}
	})
}

func (s *Session) followPages(ctx context.Context, changes <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			s.requestRefresh()
		}
	}
}

// pump moves transport messages onto the queue.
func (s *Session) pump(ctx context.Context) error {
	msgs := s.transport.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				s.logger.Debug("transport closed")
				return nil
			}
			s.post(func() { s.receive(msg) })
		}
	}
}

func (s *Session) receive(msg core.Message) {
	switch msg.Kind {
	case core.MessageConnected:
		s.resync()
	case core.MessageUpdate, core.MessageSync:
		u, err := crdt.DecodeUpdate(msg.Payload)
		if err != nil {
			s.logger.Warn("dropping malformed update", "from", msg.From, "error", err)
			return
		}
		if msg.Kind != core.MessageSync || s.firstSync {
			s.doc.ApplyUpdate(u)
			return
		}
		// The first room state is hydration even when the sync timeout
		// already hydrated from local state: nothing in it is a new creation.
		s.firstSync = true
		s.absorbing = true
		s.doc.ApplyUpdate(u)
		s.absorbing = false
		s.hydrate()
		s.syncOnce.Do(func() { close(s.synced) })
	case core.MessageAwareness, core.MessageHello, core.MessageLeave:
		s.presence.Handle(msg)
	default:
		s.logger.Debug("ignoring message", "kind", msg.Kind)
	}
}

// resync pushes local state and asks the room for its state. It runs on
// every (re)connection.
func (s *Session) resync() {
	if snap := s.doc.Snapshot(); !snap.Empty() {
		s.publish(snap)
	}
	if err := s.send(core.Message{Kind: core.MessageSyncRequest}); err != nil {
		s.logger.Warn("failed to request sync", "error", err)
	}
	s.announce(s.presence.Announce())
}

func (s *Session) publish(u crdt.Update) {
	payload, err := crdt.Encode(u)
	if err != nil {
		s.logger.Warn("failed to encode update", "error", err)
		return
	}
	if err := s.send(core.Message{Kind: core.MessageUpdate, Payload: payload}); err != nil {
		s.logger.Debug("update not published", "error", err)
	}
}

func (s *Session) send(msg core.Message) error {
	if s.transport == nil {
		return core.ErrNotConnected
	}
	return s.transport.Send(msg)
}

func (s *Session) loop(ctx context.Context) error {
	defer close(s.done)
	for fn := range s.queue.Out() {
		if s.isClosed() {
			continue
		}
		fn()
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) post(fn func()) bool {
	if s.isClosed() {
		return false
	}
	return s.queue.Push(fn)
}

func (s *Session) run(fn func()) error {
	return s.runCtx(context.Background(), fn)
}

// runCtx queues fn and waits until it has run.
func (s *Session) runCtx(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.post(func() { defer close(finished); fn() }) {
		return core.ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return core.ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
