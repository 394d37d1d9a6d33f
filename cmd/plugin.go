package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/egoavara/modmgr/internal/bridge"
	"github.com/egoavara/modmgr/internal/discovery"
	"github.com/egoavara/modmgr/internal/executor"
	"github.com/egoavara/modmgr/internal/hostapi"
	"github.com/egoavara/modmgr/internal/i18n"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage and run downloaded plugins",
	Long: `Manage plugins distributed as zip archives and run them.

Commands:
  list     List discovered plugins
  install  Install a plugin archive
  remove   Delete a downloaded plugin or hide a built-in one
  unhide   Show a hidden built-in plugin again
  run      Run a plugin
  api      List host api methods plugins can call`,
}

var pluginAPICmd = &cobra.Command{
	Use:   "api",
	Short: "List host api methods plugins can call",
	Long: `List the host api methods reachable from plugin code. Methods that
return a value cannot be called through script callbacks.`,
	Args: cobra.NoArgs,
	RunE: runPluginAPI,
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered plugins",
	RunE:  runPluginList,
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install <archive.zip>",
	Short: "Install a plugin archive",
	Long: `Validate a plugin archive and extract it into the plugins folder.
An archive without a valid plugin.json is deleted.

Example:
  modmgr plugin install ~/Downloads/my-plugin.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runPluginInstall,
}

var pluginRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm", "hide"},
	Short:   "Delete a downloaded plugin or hide a built-in one",
	Args:    cobra.ExactArgs(1),
	RunE:    runPluginRemove,
}

var pluginUnhideCmd = &cobra.Command{
	Use:   "unhide <id>",
	Short: "Show a hidden built-in plugin again",
	Args:  cobra.ExactArgs(1),
	RunE:  runPluginUnhide,
}

var pluginRunCmd = &cobra.Command{
	Use:   "run <id> [args...]",
	Short: "Run a plugin",
	Long: `Run a plugin. Standard plugins run in the sandbox and render into a
headless document; external-script plugins are spawned through the
callback bridge with the current host selection.

Example:
  modmgr plugin run my-plugin
  modmgr plugin run my-plugin --watch
  modmgr plugin run my-script-plugin -- --flag value`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPluginRun,
}

var (
	pluginBuiltinDir  string
	pluginRunWatch    bool
	pluginMetricsAddr string
)

func init() {
	pluginCmd.PersistentFlags().StringVar(&pluginBuiltinDir, "builtin-dir", "", "folder of built-in plugins")
	pluginRunCmd.Flags().BoolVarP(&pluginRunWatch, "watch", "w", false, "keep a standard plugin running and deliver host events")
	pluginRunCmd.Flags().StringVar(&pluginMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while watching")

	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginInstallCmd)
	pluginCmd.AddCommand(pluginRemoveCmd)
	pluginCmd.AddCommand(pluginUnhideCmd)
	pluginCmd.AddCommand(pluginRunCmd)
	pluginCmd.AddCommand(pluginAPICmd)
}

func runPluginAPI(cmd *cobra.Command, args []string) error {
	for _, m := range hostapi.Methods() {
		note := ""
		if m.Returns {
			note = "  (lua only)"
		}
		fmt.Printf("  %-6s %-28s %s%s\n", m.HTTP, m.Key(), m.Path(), note)
	}
	return nil
}

func runPluginList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	infos, err := a.plugins(pluginBuiltinDir).Discover()
	if err != nil {
		return err
	}

	printHeader(i18n.T("ListPluginsHeader", nil))
	if len(infos) == 0 {
		fmt.Println(i18n.T("NoPlugins", nil))
		return nil
	}
	for _, info := range infos {
		builtin := ""
		if info.Builtin {
			builtin = " [built-in]"
		}
		fmt.Printf("  %s (%s) %s%s\n", info.Name, info.ID, info.Type, builtin)
		if info.Description != "" {
			fmt.Printf("    %s\n", info.Description)
		}
	}
	return nil
}

func runPluginInstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	info, err := a.plugins(pluginBuiltinDir).InstallArchive(args[0])
	if err != nil {
		if errors.Is(err, discovery.ErrInvalidArchive) || errors.Is(err, discovery.ErrUnsafeArchive) {
			return fmt.Errorf("%s: %w", i18n.T("InvalidArchive", map[string]any{"Path": args[0]}), err)
		}
		return err
	}
	fmt.Println(i18n.T("PluginInstalled", map[string]any{"Name": info.Name, "ID": info.ID}))
	return nil
}

func runPluginRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.plugins(pluginBuiltinDir).Remove(args[0]); err != nil {
		if errors.Is(err, discovery.ErrPluginNotFound) {
			return fmt.Errorf("%s: %w", i18n.T("PluginNotFound", map[string]any{"ID": args[0]}), err)
		}
		return err
	}
	fmt.Println(i18n.T("PluginRemoved", map[string]any{"ID": args[0]}))
	return nil
}

func runPluginUnhide(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return a.plugins(pluginBuiltinDir).Unhide(args[0])
}

func runPluginRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	info, err := a.plugins(pluginBuiltinDir).Find(args[0])
	if err != nil {
		return err
	}

	if info.Type == discovery.TypeExternalScript {
		b := a.bridge
		if info.Manifest != nil && info.Manifest.PythonEnv != "" {
			opts := b.Options()
			opts.Interpreter = info.Manifest.PythonEnv
			b = bridge.New(opts,
				bridge.WithSession(a.bridge.Session()),
				bridge.WithTokenSource(a.host.Token),
				bridge.WithHost(a.host),
				bridge.WithSelection(a.host),
				bridge.WithLogger(a.log),
				bridge.WithMetrics(a.metrics),
			)
		}
		return runScript(cmd, b, info.ID, info.Entry, args[1:])
	}

	x := executor.New(a.env)
	if _, err := x.Run(ctx, info.Plugin()); err != nil {
		return err
	}
	if err := renderDocument(os.Stdout, a.env.Doc); err != nil {
		return err
	}

	if !pluginRunWatch {
		x.Stop(info.ID)
		return nil
	}
	a.log.Info("watching plugins", "live", x.Live())
	waitForInterrupt(ctx, a, pluginMetricsAddr)
	x.ClearHomeContent()
	return nil
}
