package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egoavara/modmgr/internal/config"
	"github.com/egoavara/modmgr/internal/i18n"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage modmgr configuration",
	Long: `Manage modmgr configuration settings.

Values are read from defaults, then config.json, then MODMGR_*
environment variables (MODMGR_SCRIPT_TIMEOUT overrides script.timeout).

Example:
  modmgr config show
  modmgr config set script.timeout 30s`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Available keys:
  locale                   - Language setting
                             Values: auto, en-US, ko-KR, etc.
  base_dir                 - Repository root for buckets and mods
  script.interpreter       - Interpreter for external scripts (python3)
  script.timeout           - Script time limit, 0 for none (e.g. 30s)
  script.filter_callbacks  - Evaluate callback signals on stderr
                             Values: true, false
  script.env_var           - Variable carrying the script context
  host.api_url             - Host application api endpoint
  poll.interval            - Host event polling period (e.g. 1s)

Example:
  modmgr config set locale ko-KR
  modmgr config set host.api_url http://127.0.0.1:41595`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Configuration:")
	fmt.Println("----------------------------------------")
	fmt.Printf("  locale: %s\n", cfg.Locale)
	fmt.Printf("  base_dir: %s\n", config.BaseDir())
	fmt.Printf("  script.interpreter: %s\n", cfg.Script.Interpreter)
	fmt.Printf("  script.timeout: %s\n", cfg.Script.Timeout)
	fmt.Printf("  script.filter_callbacks: %t\n", cfg.Script.FilterCallbacks)
	fmt.Printf("  script.env_var: %s\n", cfg.Script.EnvVar)
	fmt.Printf("  host.api_url: %s\n", cfg.Host.APIURL)
	fmt.Printf("  poll.interval: %s\n", cfg.Poll.Interval)
	fmt.Println()
	fmt.Printf("  file: %s\n", config.ConfigPath())

	// Explain current settings
	fmt.Println()
	fmt.Println("Locale:")
	if cfg.Locale == "auto" {
		fmt.Println("  auto: System locale is auto-detected")
	} else {
		fmt.Printf("  %s: Using fixed locale\n", cfg.Locale)
	}

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if err := config.Set(key, value); err != nil {
		return err
	}
	fmt.Println(i18n.T("ConfigSet", map[string]any{"Key": key, "Value": value}))
	if key == "locale" {
		i18n.SetLocale(value)
	}
	return nil
}
