package canvas

import (
	"github.com/aretw0/introspection"
)

// SessionState exposes internal state for observability.
type SessionState struct {
	Room          string   `json:"room"`
	ClientID      string   `json:"client_id"`
	Hydrated      bool     `json:"hydrated"`
	Nodes         int      `json:"nodes"`
	Edges         int      `json:"edges"`
	Peers         []string `json:"peers"`
	Pending       int      `json:"pending"`
	Watchers      int      `json:"watchers"`
	Invalidations int      `json:"invalidations"`
	Closed        bool     `json:"closed"`
	Document      any      `json:"document"`
}

// State implements introspection.Introspectable.
func (s *Session) State() any {
	peers := s.presence.Peers()
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.ClientID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{
		Room:          s.Room(),
		ClientID:      s.doc.Replica(),
		Hydrated:      s.hydrated.Load(),
		Nodes:         s.doc.Map(NodesMap).Len(),
		Edges:         s.doc.Map(EdgesMap).Len(),
		Peers:         ids,
		Pending:       s.queue.Len(),
		Watchers:      len(s.watchers),
		Invalidations: s.invalidations,
		Closed:        s.closed,
		Document:      s.doc.State(),
	}
}

// ComponentType implements introspection.Component.
func (s *Session) ComponentType() string {
	return "canvas-session"
}

var _ introspection.Introspectable = (*Session)(nil)
var _ introspection.Component = (*Session)(nil)
