package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/canopy/pkg/relay"
	"github.com/spf13/cobra"
)

var relayAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the room relay",
	Long: `Serves socket.io rooms that forward document updates and presence
between clients. Each room keeps a replica of the document so late joiners
can sync. Metrics are exported on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Relay.Addr
		if relayAddr != "" {
			addr = relayAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := relay.NewServer(slog.Default()).ListenAndServe(ctx, addr); err != nil {
			return err
		}
		slog.Info("relay stopped")
		return nil
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayAddr, "addr", "", "Listen address (default :4000)")
	rootCmd.AddCommand(relayCmd)
}
