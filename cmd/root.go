package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/egoavara/modmgr/internal/config"
	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/i18n"
	"github.com/egoavara/modmgr/internal/logging"
)

var (
	verbose bool
	homeDir string

	rootCmd = &cobra.Command{
		Use:           "modmgr",
		Short:         "Package manager and plugin runtime for host application mods",
		SilenceErrors: true,
		SilenceUsage:  true,
		Long: `modmgr installs mods from git-hosted buckets and runs plugins
against the host application's local API.

It works similar to 'scoop bucket' for Scoop, allowing you to
add package repositories and install mods from them.

Commands:
  bucket   Manage buckets (add, rm, list, update)
  mod      Manage mods (install, uninstall, update, reset, list, search, link, unlink, outdated)
  mount    Mount an installed mod into a headless document
  plugin   Manage and run downloaded plugins
  script   Run an external script through the callback bridge
  config   Manage configuration

Shortcuts (aliases):
  install    = mod install
  uninstall  = mod uninstall
  search     = mod search
  update     = mod update`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.SetDefault(logging.New(os.Stderr, verbose))
			if homeDir == "" {
				return nil
			}
			config.SetAppDir(homeDir)
			if err := config.Reload(); err != nil {
				return err
			}
			if l := config.GetLocale(); l != "auto" {
				i18n.SetLocale(l)
			}
			return nil
		},
	}
)

// createAliasCommand creates a root-level alias that shares flags with a mod subcommand
func createAliasCommand(modSubCmd *cobra.Command, aliases []string) *cobra.Command {
	aliasCmd := &cobra.Command{
		Use:     modSubCmd.Use,
		Short:   modSubCmd.Short + " (alias)",
		Long:    modSubCmd.Long,
		Args:    modSubCmd.Args,
		Aliases: aliases,
		RunE:    modSubCmd.RunE,
	}
	// Copy all flags from the original command
	modSubCmd.Flags().VisitAll(func(f *pflag.Flag) {
		aliasCmd.Flags().AddFlag(f)
	})
	return aliasCmd
}

// Execute runs the root command and exits with a code derived from the error
// category.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Default().Debug("command failed", "kind", errs.Kind(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return 2
	case errors.Is(err, errs.ErrNotFound):
		return 3
	case errors.Is(err, errs.ErrConflict):
		return 4
	case errors.Is(err, errs.ErrSecurityViolation):
		return 5
	case errors.Is(err, errs.ErrTimeout):
		return 6
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "application directory (default ~/.config/modmgr, or $MODMGR_HOME)")

	// Main commands
	rootCmd.AddCommand(bucketCmd)
	rootCmd.AddCommand(modCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(pluginCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(resetCmd)
}

// RegisterModAliases registers root-level aliases for mod subcommands
// Must be called after mod subcommands are initialized
func RegisterModAliases() {
	rootCmd.AddCommand(createAliasCommand(modInstallCmd, nil))
	rootCmd.AddCommand(createAliasCommand(modUninstallCmd, []string{"remove", "rm"}))
	rootCmd.AddCommand(createAliasCommand(modSearchCmd, nil))
	rootCmd.AddCommand(createAliasCommand(modUpdateCmd, nil))
}
