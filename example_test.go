package canopy_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/canvas"
	"github.com/aretw0/canopy/pkg/core"
)

// Example_basic opens a local session over a fixed page list and links two notes.
func Example_basic() {
	ctx := context.Background()

	s, err := canopy.Open(ctx, canopy.WithPages(canvas.StaticPages{
		{ID: 1, Title: "Ideas", Emoji: "💡"},
		{ID: 2, Title: "Plans", Emoji: "🗺"},
	}))
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	edge, created, err := s.Connect(core.Connection{Source: "2", Target: "1"})
	if err != nil {
		log.Fatal(err)
	}

	frame, err := s.Frame()
	if err != nil {
		log.Fatal(err)
	}
	for _, n := range frame.Nodes {
		fmt.Printf("%s %s\n", n.ID, n.Note.Title)
	}
	fmt.Println(edge.ID, created)

	// Output:
	// 1 Ideas
	// 2 Plans
	// e1-2 true
}

// Example_hub shares one canvas between two sessions in the same process.
func Example_hub() {
	ctx := context.Background()
	hub := memory.NewHub(nil)
	pages := canvas.StaticPages{{ID: 1, Title: "Shared"}}

	a, err := canopy.Open(ctx, canopy.WithHub(hub), canopy.WithWorkspace("team"), canopy.WithPages(pages))
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	b, err := canopy.Open(ctx, canopy.WithHub(hub), canopy.WithWorkspace("team"), canopy.WithPages(pages))
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	fmt.Println(a.Room(), len(hub.Members(a.Room())))

	// Output:
	// flow-room-team 2
}
