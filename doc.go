// Package canopy is the Composition Root for the canopy canvas engine.
//
// It wires a shared graph document, a transport and a page source into a
// collaborative canvas session.
//
// Model:
//
// Every page of a workspace is a note on a shared canvas. Users arrange
// notes, draw edges between them and gather them into groups; those edits
// replicate to every client in the workspace room through a CRDT document,
// while cursors and drag state travel as presence beside it.
//
// Features:
//
//   - **Convergent**: last-writer-wins maps with tombstones; concurrent edits settle without coordination.
//   - **Page Mirror**: the canvas follows a page source (a directory of Markdown/YAML/JSON files by default).
//   - **Containment**: dropping notes on groups adopts them, moving them out detaches them.
//   - **Transports**: a socket.io relay for real deployments, an in-process hub for tests.
//   - **Presence**: live cursors and holding markers, never written to the document.
//
// Usage:
//
//	// Join the workspace room through a relay, mirroring ./pages
//	s, err := canopy.Open(ctx,
//		canopy.WithRelayURL("http://localhost:4000"),
//		canopy.WithWorkspace("42"),
//		canopy.WithPagesDir("./pages"),
//	)
//	defer s.Close()
//
//	// Connect two notes
//	_, _, err = s.Connect(core.Connection{Source: "1", Target: "2"})
package canopy
