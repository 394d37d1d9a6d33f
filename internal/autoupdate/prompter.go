package autoupdate

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/egoavara/modmgr/internal/i18n"
)

// ShowUpdateSummary displays a summary of available updates
func ShowUpdateSummary(w io.Writer, result *CheckResult) {
	for _, err := range result.Errors {
		fmt.Fprintf(w, "  ! %v\n", err)
	}
	if !result.HasAnyUpdate() {
		fmt.Fprintln(w, i18n.T("update.noUpdates", nil))
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, i18n.T("update.available", nil))
	fmt.Fprintln(w)

	for _, p := range result.Packages {
		fmt.Fprintf(w, "  [%s] %s (%s → %s)\n",
			p.Bucket,
			p.Name,
			p.CurrentVer,
			p.RemoteVer,
		)
	}

	fmt.Fprintln(w)
}

// PromptUpdate asks the user if they want to apply updates
func PromptUpdate(in io.Reader, w io.Writer, result *CheckResult) bool {
	if !result.HasAnyUpdate() {
		return false
	}

	fmt.Fprint(w, i18n.T("update.prompt", nil)+" [Y/n] ")

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return false
	}

	input = strings.TrimSpace(strings.ToLower(input))

	// Default to yes if empty or explicit yes
	return input == "" || input == "y" || input == "yes"
}
