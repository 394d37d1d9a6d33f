package autoupdate

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/egoavara/modmgr/internal/i18n"
)

var (
	okMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("✓")
	failMark = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
)

// Spinner animates one line of progress outside a bubbletea program. Frames
// come from the bubbles spinner set.
type Spinner struct {
	out     io.Writer
	message string
	frames  spinner.Spinner
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner creates a spinner showing message.
func NewSpinner(out io.Writer, message string) *Spinner {
	return &Spinner{
		out:     out,
		message: message,
		frames:  spinner.Dot,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start draws frames until Stop. Only the animation goroutine writes to out
// until Stop returns.
func (s *Spinner) Start() {
	go func() {
		defer close(s.done)
		fps := s.frames.FPS
		if fps <= 0 {
			fps = 100 * time.Millisecond
		}
		ticker := time.NewTicker(fps)
		defer ticker.Stop()

		for i := 0; ; i++ {
			fmt.Fprintf(s.out, "\r  %s %s ", s.frames.Frames[i%len(s.frames.Frames)], s.message)
			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the animation and replaces it with a result mark.
func (s *Spinner) Stop(success bool) {
	close(s.stop)
	<-s.done
	mark := okMark
	if !success {
		mark = failMark
	}
	fmt.Fprintf(s.out, "\r  %s %s\n", mark, s.message)
}

// Updater handles applying updates
type Updater struct {
	reg Registry
	out io.Writer
}

// NewUpdater creates a new updater writing progress to out
func NewUpdater(reg Registry, out io.Writer) *Updater {
	return &Updater{reg: reg, out: out}
}

// Apply updates every package in result and returns the failures. One
// failing package does not stop the others.
func (u *Updater) Apply(ctx context.Context, result *CheckResult) []error {
	if !result.HasAnyUpdate() {
		return nil
	}

	fmt.Fprintln(u.out, i18n.T("update.updating", nil))
	fmt.Fprintln(u.out)

	var updateErrors []error
	for _, p := range result.Packages {
		spinner := NewSpinner(u.out, fmt.Sprintf("%s %s", i18n.T("update.typePackage", nil), p.Name))
		spinner.Start()

		_, err := u.reg.UpdatePkg(ctx, p.Name, false)
		spinner.Stop(err == nil)

		if err != nil {
			updateErrors = append(updateErrors, fmt.Errorf("%s: %w", p.Name, err))
		}
	}

	fmt.Fprintln(u.out)
	if len(updateErrors) > 0 {
		fmt.Fprintln(u.out, i18n.T("update.partialSuccess", nil))
	} else {
		fmt.Fprintln(u.out, i18n.T("update.complete", nil))
	}
	return updateErrors
}
