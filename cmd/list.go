package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("205"))

// printHeader prints a section title over a rule.
func printHeader(title string) {
	fmt.Println(headerStyle.Render(title))
	fmt.Println(strings.Repeat("-", 40))
}

var listAll bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered buckets and installed mods",
	Long: `List all registered buckets and installed mods.

Example:
  modmgr list
  modmgr list --all  # Also show available mods`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "show available mods of each bucket")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	printBuckets(a.reg, listAll)
	fmt.Println()
	printMods(a.reg)
	return nil
}
