package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/canopy/internal/platform"
	"github.com/spf13/cobra"
)

var inspectTimeout time.Duration

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Join the room once and print the session state as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), inspectTimeout)
		defer cancel()

		s, err := platform.Open(ctx, sessionOptions()...)
		if err != nil {
			return fmt.Errorf("failed to join: %w", err)
		}
		defer s.Close()

		data, err := json.MarshalIndent(s.State(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 30*time.Second, "Give up after this long")
	rootCmd.AddCommand(inspectCmd)
}
