package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/egoavara/modmgr/internal/errs"
)

var (
	// ErrTimeout is returned when a script outlives its timeout and is killed.
	ErrTimeout = fmt.Errorf("%w: script", errs.ErrTimeout)
	// ErrStartFailed is returned when the interpreter cannot be started.
	ErrStartFailed = fmt.Errorf("%w: starting script", errs.ErrExternalTool)
)

// waitDelay bounds how long Wait keeps reading pipes after the process is
// killed, in case grandchildren still hold them open.
const waitDelay = 2 * time.Second

// Command describes one script execution.
type Command struct {
	Interpreter string
	Script      string
	Args        []string
	// Dir defaults to the script's folder.
	Dir string
	// Env is appended to the current environment.
	Env []string
	// Timeout kills the process when exceeded. Zero means no limit.
	Timeout time.Duration

	// Stdout and Stderr receive output as it arrives, in addition to the
	// buffered copy in Result. Either may be nil.
	Stdout io.Writer
	Stderr io.Writer
	// Filter, when set, sees every complete stderr line. Lines for which it
	// returns false are dropped from both Stderr and Result.Stderr.
	Filter func(line string) bool
}

// Result is the outcome of a finished script.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Run executes c and waits for it. A non-zero exit is reported through
// Result.ExitCode, not as an error. A timeout returns the partial result
// together with ErrTimeout.
func Run(ctx context.Context, c Command) (*Result, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append([]string{c.Script}, c.Args...)
	cmd := exec.CommandContext(runCtx, c.Interpreter, args...)
	cmd.Dir = c.Dir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(c.Script)
	}
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = tee(&stdout, c.Stdout)
	errSink := tee(&stderr, c.Stderr)
	var lines *lineFilter
	if c.Filter != nil {
		lines = &lineFilter{dst: errSink, keep: c.Filter}
		cmd.Stderr = lines
	} else {
		cmd.Stderr = errSink
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStartFailed, c.Interpreter, err)
	}
	waitErr := cmd.Wait()
	if lines != nil {
		lines.Flush()
	}

	res := &Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if c.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return res, fmt.Errorf("%w after %s", ErrTimeout, c.Timeout)
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("%w: %w", errs.ErrExternalTool, waitErr)
	}
	return res, nil
}

func tee(buf *bytes.Buffer, sink io.Writer) io.Writer {
	if sink == nil {
		return buf
	}
	return io.MultiWriter(buf, sink)
}

// lineFilter forwards complete lines accepted by keep.
type lineFilter struct {
	mu      sync.Mutex
	dst     io.Writer
	keep    func(string) bool
	partial []byte
}

func (f *lineFilter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.partial = append(f.partial, p...)
	for {
		i := bytes.IndexByte(f.partial, '\n')
		if i < 0 {
			break
		}
		line := string(f.partial[:i+1])
		f.partial = f.partial[i+1:]
		if err := f.emit(line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

func (f *lineFilter) emit(line string) error {
	if !f.keep(strings.TrimRight(line, "\r\n")) {
		return nil
	}
	_, err := io.WriteString(f.dst, line)
	return err
}

// Flush handles a trailing line without a newline.
func (f *lineFilter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.partial) == 0 {
		return nil
	}
	line := string(f.partial)
	f.partial = nil
	return f.emit(line)
}
