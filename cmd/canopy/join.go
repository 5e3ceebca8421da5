package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/canopy/internal/platform"
	canopylifecycle "github.com/aretw0/canopy/pkg/adapters/lifecycle"
	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/lifecycle"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	added   = color.New(color.FgGreen)
	updated = color.New(color.FgYellow)
	deleted = color.New(color.FgRed)
	subtle  = color.New(color.FgHiBlack)
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join the workspace room and stream canvas changes",
	Long: `Opens a session on the workspace room, mirrors the page directory into
the canvas and prints every change until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := platform.Open(ctx, sessionOptions()...)
		if err != nil {
			return fmt.Errorf("failed to join: %w", err)
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		frame, err := s.Frame()
		if err != nil {
			return err
		}
		subtle.Fprintf(out, "joined %s as %s (%d nodes, %d edges)\n",
			s.Room(), s.ClientID(), len(frame.Nodes), len(frame.Edges))

		src := canopylifecycle.NewSource(s)
		if err := src.Start(ctx); err != nil {
			return err
		}
		for ev := range src.Events() {
			printEvent(out, ev)
		}
		return nil
	},
}

func printEvent(w io.Writer, ev lifecycle.Event) {
	e, ok := ev.(core.Event)
	if !ok {
		fmt.Fprintln(w, ev.String())
		return
	}
	c := subtle
	switch e.Type {
	case core.EventAdded:
		c = added
	case core.EventUpdated:
		c = updated
	case core.EventDeleted:
		c = deleted
	}
	c.Fprintln(w, e.String())
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
