package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/canopy/internal/platform"
	"github.com/aretw0/canopy/pkg/adapters/fs"
	"github.com/aretw0/canopy/pkg/core"
	"github.com/spf13/cobra"
)

var (
	pagesJSON bool
	pageEmoji string
	pageID    int
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Manage the page directory",
}

var pagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the pages the canvas mirrors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := openPageDir()
		if err != nil {
			return err
		}
		pages, err := dir.Pages(context.Background())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if pagesJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(pages)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMOJI\tTITLE")
		for _, p := range pages {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Emoji, p.Title)
		}
		return tw.Flush()
	},
}

var pagesAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a page file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := openPageDir()
		if err != nil {
			return err
		}
		page, err := dir.WritePage(context.Background(), core.Page{
			ID:    pageID,
			Title: strings.Join(args, " "),
			Emoji: pageEmoji,
		})
		if err != nil {
			return err
		}
		added.Fprintf(cmd.OutOrStdout(), "created page %d %q\n", page.ID, page.Title)
		return nil
	},
}

func openPageDir() (*fs.PageDir, error) {
	opts := append(cfg.Options(), platform.WithLogger(slog.Default()))
	return platform.PageDir(opts...)
}

func init() {
	pagesListCmd.Flags().BoolVar(&pagesJSON, "json", false, "Output as JSON")
	pagesAddCmd.Flags().StringVar(&pageEmoji, "emoji", "📄", "Page emoji")
	pagesAddCmd.Flags().IntVar(&pageID, "id", 0, "Page id (default: next free id)")

	pagesCmd.AddCommand(pagesListCmd, pagesAddCmd)
	rootCmd.AddCommand(pagesCmd)
}
