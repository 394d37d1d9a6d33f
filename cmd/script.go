package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/egoavara/modmgr/internal/bridge"
	"github.com/egoavara/modmgr/internal/runner"
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Run external scripts through the callback bridge",
}

var scriptRunCmd = &cobra.Command{
	Use:   "run <script> [args...]",
	Short: "Run a script with the host selection and api token",
	Long: `Spawn a script with the current host selection and a session
token in its environment. Callback signals written to stderr are
validated and dispatched to the host api, and stripped from the output.

Example:
  modmgr script run ./tag_items.py
  modmgr script run ./tag_items.py --plugin tagger --timeout 30s -- --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScriptRun,
}

var (
	scriptPluginID string
	scriptTimeout  time.Duration
	scriptNoFilter bool
)

func init() {
	scriptRunCmd.Flags().StringVar(&scriptPluginID, "plugin", "script", "plugin id the script's callbacks must carry")
	scriptRunCmd.Flags().DurationVar(&scriptTimeout, "timeout", 0, "kill the script after this long (0 uses the configured timeout)")
	scriptRunCmd.Flags().BoolVar(&scriptNoFilter, "no-filter", false, "pass stderr through without evaluating callbacks")

	scriptCmd.AddCommand(scriptRunCmd)
}

func runScriptRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	b := a.bridge
	if scriptNoFilter {
		opts := b.Options()
		opts.FilterCallbacks = false
		b = bridge.New(opts,
			bridge.WithSession(a.bridge.Session()),
			bridge.WithTokenSource(a.host.Token),
			bridge.WithSelection(a.host),
			bridge.WithLogger(a.log),
			bridge.WithMetrics(a.metrics),
		)
	}
	return runScript(cmd, b, scriptPluginID, args[0], args[1:])
}

// runScript runs path through b, streaming its output, and turns a non-zero
// exit into an error.
func runScript(cmd *cobra.Command, b *bridge.Bridge, pluginID, path string, args []string) error {
	res, err := b.Run(cmd.Context(), bridge.Script{
		PluginID: pluginID,
		Path:     path,
		Args:     args,
		Timeout:  scriptTimeout,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: %s: exit %d", runner.ErrScriptExit, path, res.ExitCode)
	}
	return nil
}
