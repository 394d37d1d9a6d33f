// Package bridge runs external scripts and carries out the host API calls
// they request through callback signals on their diagnostic stream.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/metrics"
)

// DefaultInterpreter runs scripts when none is configured.
const DefaultInterpreter = "python3"

// ErrScriptNotFound is returned when the script file does not exist.
var ErrScriptNotFound = fmt.Errorf("%w: script", errs.ErrNotFound)

// Options configure a Bridge.
type Options struct {
	Interpreter string
	// EnvVar names the variable carrying the ScriptContext.
	EnvVar string
	// Timeout applies to every run unless the Script sets its own.
	Timeout time.Duration
	// FilterCallbacks turns signal evaluation on. When off, stderr is passed
	// through untouched and nothing is dispatched.
	FilterCallbacks bool
	// ThirdPartyDir is prepended to PYTHONPATH when set.
	ThirdPartyDir string
}

// Bridge spawns scripts for plugins.
type Bridge struct {
	opts      Options
	session   *Session
	tokens    TokenSource
	host      Caller
	selection SelectionSource
	log       *log.Logger
	metrics   *metrics.Metrics
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithSession sets the token session. The default is a fresh random one.
func WithSession(s *Session) Option { return func(b *Bridge) { b.session = s } }

// WithTokenSource sets where the session token comes from. Scripts then get
// the host API token; a random one is used only while the host is unreachable.
func WithTokenSource(src TokenSource) Option { return func(b *Bridge) { b.tokens = src } }

// WithHost sets where dispatched signals go.
func WithHost(h Caller) Option { return func(b *Bridge) { b.host = h } }

// WithSelection sets the source of the selection passed to scripts.
func WithSelection(s SelectionSource) Option { return func(b *Bridge) { b.selection = s } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(b *Bridge) { b.log = l } }

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(b *Bridge) { b.metrics = m } }

// New returns a bridge configured by opts.
func New(opts Options, options ...Option) *Bridge {
	if opts.Interpreter == "" {
		opts.Interpreter = DefaultInterpreter
	}
	if opts.EnvVar == "" {
		opts.EnvVar = DefaultEnvVar
	}
	b := &Bridge{opts: opts}
	for _, o := range options {
		o(b)
	}
	if b.session == nil {
		b.session = NewSession()
	}
	b.log = logging.Or(b.log).WithPrefix("bridge")
	b.metrics = metrics.Or(b.metrics)
	return b
}

// Session returns the token session.
func (b *Bridge) Session() *Session { return b.session }

// Options returns the configuration.
func (b *Bridge) Options() Options { return b.opts }

// Script is one run request.
type Script struct {
	PluginID string
	Path     string
	Args     []string
	// Dir overrides the working directory.
	Dir string
	// Timeout overrides Options.Timeout when non-zero.
	Timeout time.Duration

	Stdout io.Writer
	Stderr io.Writer
}

// Run spawns s and waits for it. The returned Result.Stderr never contains
// callback signals when filtering is on.
func (b *Bridge) Run(ctx context.Context, s Script) (*Result, error) {
	if _, err := os.Stat(s.Path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, s.Path)
	}

	if err := b.session.Seed(ctx, b.tokens); err != nil {
		b.log.Warn("host token unavailable, using a local session token", "err", err)
	}

	sc := BuildContext(ctx, b.selection, b.session.Token(), b.log)
	blob, err := sc.Encode()
	if err != nil {
		return nil, err
	}

	cmd := Command{
		Interpreter: b.opts.Interpreter,
		Script:      s.Path,
		Args:        s.Args,
		Dir:         s.Dir,
		Env:         b.env(blob),
		Timeout:     b.opts.Timeout,
		Stdout:      s.Stdout,
		Stderr:      s.Stderr,
	}
	if s.Timeout > 0 {
		cmd.Timeout = s.Timeout
	}
	if b.opts.FilterCallbacks {
		cmd.Filter = NewEvaluator(ctx, b.session, s.PluginID, b.host, b.log, b.metrics).Line
	}

	b.log.Debug("running script", "plugin", s.PluginID, "script", s.Path)
	res, err := Run(ctx, cmd)
	switch {
	case errors.Is(err, ErrTimeout):
		b.metrics.ScriptRuns.WithLabelValues("timeout").Inc()
		b.log.Warn("script timed out", "plugin", s.PluginID, "timeout", cmd.Timeout)
	case err != nil || res.ExitCode != 0:
		b.metrics.ScriptRuns.WithLabelValues(metrics.ResultError).Inc()
	default:
		b.metrics.ScriptRuns.WithLabelValues(metrics.ResultOK).Inc()
	}
	return res, err
}

func (b *Bridge) env(blob string) []string {
	env := []string{b.opts.EnvVar + "=" + blob, "PYTHONUNBUFFERED=1"}
	if b.opts.ThirdPartyDir != "" {
		path := b.opts.ThirdPartyDir
		if existing := os.Getenv("PYTHONPATH"); existing != "" {
			path += string(filepath.ListSeparator) + existing
		}
		env = append(env, "PYTHONPATH="+path)
	}
	return env
}
