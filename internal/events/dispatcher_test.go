package events

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/egoavara/modmgr/internal/hostapi"
	"github.com/egoavara/modmgr/internal/logging"
)

type fakeSource struct {
	mu      sync.Mutex
	items   []hostapi.Item
	folders []hostapi.Folder
	library string
	err     error
	reads   int
}

func (f *fakeSource) SelectedItems(context.Context) ([]hostapi.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return append([]hostapi.Item(nil), f.items...), f.err
}

func (f *fakeSource) SelectedFolders(context.Context) ([]hostapi.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return append([]hostapi.Folder(nil), f.folders...), f.err
}

func (f *fakeSource) LibraryPath(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.library, f.err
}

func (f *fakeSource) set(fn func(*fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func TestPollDetectsChanges(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		items:   []hostapi.Item{{ID: "b"}, {ID: "a"}},
		library: "/one",
	}
	d := New(src, 0, logging.Discard())
	ctx := context.Background()

	var got []Event
	d.Subscribe(ItemSelectionChanged, func(ev Event) { got = append(got, ev) })
	d.Subscribe(LibraryChanged, func(ev Event) { got = append(got, ev) })

	d.Poll(ctx) // baseline
	if len(got) != 0 {
		t.Fatalf("baseline poll fired %v", got)
	}

	// same set in a different order is not a change
	src.set(func(s *fakeSource) { s.items = []hostapi.Item{{ID: "a"}, {ID: "b"}} })
	d.Poll(ctx)
	if len(got) != 0 {
		t.Fatalf("reordered selection fired %v", got)
	}

	src.set(func(s *fakeSource) {
		s.items = []hostapi.Item{{ID: "c"}}
		s.library = "/two"
	})
	d.Poll(ctx)

	want := []Event{
		{Type: LibraryChanged, Value: "/two"},
		{Type: ItemSelectionChanged, Value: []string{"c"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
}

func TestUnsubscribeStopsPolling(t *testing.T) {
	t.Parallel()

	src := &fakeSource{folders: []hostapi.Folder{{ID: "f"}}}
	d := New(src, 0, logging.Discard())
	ctx := context.Background()

	calls := 0
	off := d.Subscribe(FolderSelectionChanged, func(Event) { calls++ })
	d.Poll(ctx)
	off()
	off()

	reads := src.reads
	src.set(func(s *fakeSource) { s.folders = nil })
	d.Poll(ctx)

	if calls != 0 {
		t.Errorf("handler called %d times after unsubscribe", calls)
	}
	if src.reads != reads {
		t.Error("dispatcher kept polling without subscribers")
	}
	if d.Subscribers(FolderSelectionChanged) != 0 {
		t.Error("subscriber not removed")
	}
}

func TestPollErrorsAreSkipped(t *testing.T) {
	t.Parallel()

	src := &fakeSource{library: "/one"}
	d := New(src, 0, logging.Discard())
	ctx := context.Background()

	calls := 0
	d.Subscribe(LibraryChanged, func(Event) { calls++ })
	d.Poll(ctx)

	src.set(func(s *fakeSource) { s.err = errors.New("host down") })
	d.Poll(ctx)

	src.set(func(s *fakeSource) {
		s.err = nil
		s.library = "/two"
	})
	d.Poll(ctx)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
