package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/egoavara/modmgr/internal/bridge"
	"github.com/egoavara/modmgr/internal/discovery"
	"github.com/egoavara/modmgr/internal/events"
	"github.com/egoavara/modmgr/internal/executor"
	"github.com/egoavara/modmgr/internal/hostapi"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/modmgr"
	"github.com/egoavara/modmgr/internal/sandbox"
)

func TestParseModIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id      string
		name    string
		bucket  string
		wantErr bool
	}{
		{"foo", "foo", "", false},
		{"foo@org_mods", "foo", "org_mods", false},
		{"@org_mods", "", "", true},
		{"foo@", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			name, bucket, err := parseModIdentifier(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if name != tt.name || bucket != tt.bucket {
				t.Errorf("got (%q, %q), want (%q, %q)", name, bucket, tt.name, tt.bucket)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("wrap: %w", bridge.ErrMalformedSignal), 2},
		{"not found", modmgr.ErrPackageNotFound, 3},
		{"conflict", modmgr.ErrAlreadyExists, 4},
		{"security", discovery.ErrUnsafeArchive, 5},
		{"timeout", bridge.ErrTimeout, 6},
		{"other", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMountContainerID(t *testing.T) {
	t.Parallel()

	if got := mountContainerID("theme"); got != "mount-theme" {
		t.Errorf("mountContainerID = %q", got)
	}
}

type idleHost struct{}

func (idleHost) SelectedItems(context.Context) ([]hostapi.Item, error)     { return nil, nil }
func (idleHost) SelectedFolders(context.Context) ([]hostapi.Folder, error) { return nil, nil }
func (idleHost) LibraryPath(context.Context) (string, error)               { return "", nil }

func TestRuntimeWaitsForRunningTask(t *testing.T) {
	t.Parallel()

	a := &app{
		log: logging.Discard(),
		env: &executor.Env{
			Loop:   sandbox.NewLoop(0),
			Events: events.New(idleHost{}, time.Hour, logging.Discard()),
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	wait := a.startRuntime(ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	err := a.env.Loop.Post(func() error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	<-started
	cancel()

	returned := make(chan struct{})
	go func() {
		wait()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("wait returned while a loop task was still running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after the task finished")
	}
	if !finished.Load() {
		t.Error("task did not finish before wait returned")
	}
}
