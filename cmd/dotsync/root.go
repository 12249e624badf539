package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/dotsync/internal/version"
	"github.com/arthur-debert/dotsync/pkg/config"
	"github.com/arthur-debert/dotsync/pkg/logging"
	"github.com/arthur-debert/dotsync/pkg/paths"
	"github.com/arthur-debert/dotsync/pkg/sync"
	"github.com/arthur-debert/dotsync/pkg/template"
)

var (
	configPath string
	verbosity  int
	dryRun     bool

	rootCmd = &cobra.Command{
		Use:   "dotsync",
		Short: "Synchronize dotfiles across machines from one configuration",
		Long: `dotsync synchronizes a declared set of source files and directories
into target locations on the local filesystem, optionally rendering
their contents as templates and optionally staging the copies behind
symlinks. One configuration serves every machine: host-specific items
and per-group renaming rules decide what lands where.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Configuration file (default is $XDG_CONFIG_HOME/dotsync/config.toml)")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false,
		"Report intended actions without mutating the filesystem")

	rootCmd.AddCommand(versionCmd)
}

// runSync resolves the configuration and drives the sync engine
func runSync() error {
	path := configPath
	if path == "" {
		path = paths.DefaultConfigPath()
	}

	raw, err := config.Load(path)
	if err != nil {
		return err
	}

	resolved, err := config.Resolve(raw)
	if err != nil {
		return err
	}

	hostname, err := paths.Hostname()
	if err != nil {
		return err
	}

	registry := template.NewRegistry(hostname)
	for i := range resolved.Groups {
		if err := registry.LoadGroup(&resolved.Groups[i]); err != nil {
			return err
		}
	}

	return sync.NewEngine(resolved, registry, hostname, dryRun).Run()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dotsync version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}
