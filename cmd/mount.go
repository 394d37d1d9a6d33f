package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/egoavara/modmgr/internal/dom"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mod>",
	Short: "Mount an installed mod into a headless document",
	Long: `Load an installed mod with its type runtime, mount it into a
headless document and print the rendered HTML.

With --watch the mod stays mounted: host events are polled and
delivered to its handlers until interrupted, then it is unmounted.

Example:
  modmgr mount my-mod
  modmgr mount my-mod --watch --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

var (
	mountWatch       bool
	mountMetricsAddr string
)

func init() {
	mountCmd.Flags().BoolVarP(&mountWatch, "watch", "w", false, "keep the mod mounted and deliver host events")
	mountCmd.Flags().StringVar(&mountMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while watching")
}

// mountContainerID is the id of the element a mounted mod renders into.
func mountContainerID(name string) string {
	return "mount-" + name
}

func runMount(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	p, err := a.reg.Package(args[0])
	if err != nil {
		return err
	}

	inst, err := a.types.Load(ctx, p.Spec())
	if err != nil {
		return err
	}

	doc := a.env.Doc
	container := doc.Body.AppendChild(doc.CreateElement("div", mountContainerID(p.Name)))
	if err := inst.Mount(ctx, container); err != nil {
		return err
	}
	a.log.Debug("mod mounted", "mod", p.Name, "type", p.Type)

	if err := renderDocument(os.Stdout, doc); err != nil {
		return err
	}

	if mountWatch {
		waitForInterrupt(ctx, a, mountMetricsAddr)
	}

	if err := inst.Unmount(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	container.Remove()
	return nil
}

// renderDocument writes head and body of doc.
func renderDocument(w io.Writer, doc *dom.Document) error {
	if err := dom.Render(w, doc.Head); err != nil {
		return err
	}
	if err := dom.Render(w, doc.Body); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// waitForInterrupt runs the event loop, host polling and the optional metrics
// server until SIGINT or SIGTERM, and returns once the loop has stopped.
func waitForInterrupt(parent context.Context, a *app, metricsAddr string) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	wait := a.startRuntime(ctx)
	a.serveMetrics(ctx, metricsAddr)
	a.log.Info("watching host events, press Ctrl+C to stop")
	<-ctx.Done()
	wait()
}
