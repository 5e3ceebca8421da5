package core

// Handle is the side of a node an edge is anchored to.
type Handle string

const (
	HandleTop    Handle = "top"
	HandleBottom Handle = "bottom"
	HandleLeft   Handle = "left"
	HandleRight  Handle = "right"
)

// Edge is a user-drawn connection between two nodes.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle Handle `json:"sourceHandle"`
	TargetHandle Handle `json:"targetHandle"`
}

// EdgeID derives the document key for a connection. The pair is put in
// canonical order, so a and b connected in either direction share one key.
func EdgeID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "e" + a + "-" + b
}

// Touches reports whether id is one of the edge's endpoints.
func (e Edge) Touches(id string) bool {
	return e.Source == id || e.Target == id
}

// Connection is a connect gesture from the rendering surface.
type Connection struct {
	Source string
	Target string
}
