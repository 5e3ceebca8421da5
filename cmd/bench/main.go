package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/core"
)

func main() {
	count := flag.Int("count", 1000, "Number of pages to generate")
	keep := flag.Bool("keep", false, "Keep the benchmark directory after running")
	flag.Parse()

	// 1. Setup page directory
	benchDir, err := os.MkdirTemp("", "canopy_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	fmt.Printf("Generating %d pages in %s...\n", *count, benchDir)
	startGen := time.Now()

	// Direct file writes simulate an existing directory.
	for i := 1; i <= *count; i++ {
		content := fmt.Sprintf("---\nid: %d\ntitle: Page %d\nemoji: \"📄\"\n---\n# Page %d\nThis is a test page.", i, i, i)
		filename := filepath.Join(benchDir, fmt.Sprintf("page_%d.md", i))
		if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
			panic(err)
		}
	}
	fmt.Printf("Generation took: %v\n", time.Since(startGen))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	hub := memory.NewHub(logger)
	ctx := context.TODO()

	// Run 1: first client materializes every page (cold page cache)
	fmt.Println("Opening first session (cold)...")
	start := time.Now()
	first, err := canopy.Open(ctx,
		canopy.WithHub(hub),
		canopy.WithPagesDir(benchDir),
		canopy.WithLogger(logger),
	)
	if err != nil {
		panic(err)
	}
	defer first.Close()
	cold := time.Since(start)

	// Run 2: second client hydrates from the room and finds nothing to write
	fmt.Println("Opening second session (warm)...")
	start = time.Now()
	second, err := canopy.Open(ctx,
		canopy.WithHub(hub),
		canopy.WithPagesDir(benchDir),
		canopy.WithLogger(logger),
	)
	if err != nil {
		panic(err)
	}
	defer second.Close()
	warm := time.Since(start)

	frame, err := second.Frame()
	if err != nil {
		panic(err)
	}

	// Run 3: arrange on one client and wait for the other to see it
	start = time.Now()
	if err := first.Arrange(); err != nil {
		panic(err)
	}
	want, _ := first.Frame()
	for {
		got, _ := second.Frame()
		if samePositions(want, got) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	converge := time.Since(start)

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d pages, %d nodes seen by peer):\n", *count, len(frame.Nodes))
	fmt.Printf("  Cold open:   %v\n", cold)
	fmt.Printf("  Warm open:   %v\n", warm)
	fmt.Printf("  Convergence: %v\n", converge)
	fmt.Printf("--------------------------------------------------\n")
}

func samePositions(a, b canopy.Frame) bool {
	if len(a.Nodes) != len(b.Nodes) {
		return false
	}
	pos := make(map[string]core.XY, len(a.Nodes))
	for _, n := range a.Nodes {
		pos[n.ID] = n.Position
	}
	for _, n := range b.Nodes {
		if pos[n.ID] != n.Position {
			return false
		}
	}
	return true
}
