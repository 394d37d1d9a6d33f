package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/egoavara/modmgr/internal/i18n"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Uninstall every mod and remove every bucket",
	Long: `Uninstall every mod and remove every bucket, returning the
repository to its initial state. Plugins and configuration are kept.

Example:
  modmgr reset
  modmgr reset --yes`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var resetYes bool

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "do not ask for confirmation")
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if !resetYes {
		fmt.Print(i18n.T("reset.prompt", map[string]any{
			"Mods":    len(a.reg.Packages()),
			"Buckets": len(a.reg.Buckets()),
		}) + " [y/N] ")
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(input)); answer != "y" && answer != "yes" {
			fmt.Println(i18n.T("reset.cancelled", nil))
			return nil
		}
	}

	if err := a.reg.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Println(i18n.T("reset.done", nil))
	return nil
}
