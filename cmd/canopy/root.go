package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/canopy/internal/platform"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	workspace  string
	relayURL   string
	pagesDir   string
	clientName string

	// cfg is resolved before any subcommand runs.
	cfg *platform.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "canopy",
	Short: "A collaborative canvas over your pages",
	Long: `Canopy lays the pages of a workspace out as notes on a shared canvas.
Clients join a workspace room through a relay and edit the graph together;
edits converge through a CRDT document, cursors travel as presence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := resolveConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		applyFlags(cfg)

		if verbose {
			cfg.Log.Level = "debug"
		}
		slog.SetDefault(cfg.Logger(os.Stderr))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVarP(&configPath, "config", "c", "", "Config file (default: canopy.yaml, canopy.yml or canopy.toml at the workspace root)")
	flags.StringVarP(&workspace, "workspace", "w", "", "Workspace id")
	flags.StringVar(&relayURL, "relay", "", "Relay URL (e.g. http://localhost:4000)")
	flags.StringVarP(&pagesDir, "pages", "p", "", "Page directory")
	flags.StringVar(&clientName, "name", "", "Display name shown to peers")
}

// resolveConfig loads --config, or the config file found above the working
// directory, or the defaults.
func resolveConfig() (*platform.Config, error) {
	if configPath != "" {
		return platform.LoadConfig(configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	found, err := platform.FindConfig(wd)
	if err != nil || found == "" {
		return platform.DefaultConfig(), nil
	}
	return platform.LoadConfig(found)
}

// applyFlags lets explicit flags override the config file.
func applyFlags(c *platform.Config) {
	if workspace != "" {
		c.Workspace = workspace
	}
	if relayURL != "" {
		c.Relay.URL = relayURL
	}
	if pagesDir != "" {
		c.Pages.Dir = pagesDir
	}
	if clientName != "" {
		c.Client.Name = clientName
	}
}

// sessionOptions returns the options for a session built from the config.
func sessionOptions() []platform.Option {
	return append(cfg.Options(), platform.WithLogger(slog.Default()))
}
