// Package events turns host selection and library state into change events.
//
// The host offers no push notifications for selection changes, so one shared
// Dispatcher polls at a fixed interval and compares sorted snapshots.
package events

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/egoavara/modmgr/internal/hostapi"
	"github.com/egoavara/modmgr/internal/logging"
)

// Type names a change event.
type Type string

const (
	LibraryChanged         Type = "libraryChanged"
	ItemSelectionChanged   Type = "itemSelectionChanged"
	FolderSelectionChanged Type = "folderSelectionChanged"
)

// Types lists every event type.
var Types = []Type{LibraryChanged, ItemSelectionChanged, FolderSelectionChanged}

// DefaultInterval is the polling period.
const DefaultInterval = time.Second

// Source reads the host state being watched. *hostapi.Client implements it.
type Source interface {
	SelectedItems(ctx context.Context) ([]hostapi.Item, error)
	SelectedFolders(ctx context.Context) ([]hostapi.Folder, error)
	LibraryPath(ctx context.Context) (string, error)
}

// Event is delivered to handlers.
type Event struct {
	Type Type
	// Value is the new state: []string of ids for selections, the path for the library.
	Value any
}

// Handler receives events. It runs on the polling goroutine.
type Handler func(Event)

type snapshot struct {
	known bool
	ids   []string
}

// Dispatcher polls a Source for every event type that has subscribers.
type Dispatcher struct {
	src      Source
	interval time.Duration
	log      *log.Logger

	mu     sync.Mutex
	subs   map[Type]map[int]Handler
	nextID int
	last   map[Type]snapshot
}

// New creates a dispatcher polling src every interval (DefaultInterval when <= 0).
func New(src Source, interval time.Duration, logger *log.Logger) *Dispatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Dispatcher{
		src:      src,
		interval: interval,
		log:      logging.Or(logger).WithPrefix("events"),
		subs:     make(map[Type]map[int]Handler),
		last:     make(map[Type]snapshot),
	}
}

// Subscribe registers h for typ and returns a function removing it. The
// first poll after a type gains interest records a baseline and fires nothing.
func (d *Dispatcher) Subscribe(typ Type, h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.subs[typ] == nil {
		d.subs[typ] = make(map[int]Handler)
	}
	d.nextID++
	id := d.nextID
	d.subs[typ][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs[typ], id)
			if len(d.subs[typ]) == 0 {
				delete(d.subs, typ)
				delete(d.last, typ)
			}
		})
	}
}

// Subscribers returns the number of handlers for typ.
func (d *Dispatcher) Subscribers(typ Type) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs[typ])
}

// Poll reads the state of every subscribed type once and fires handlers for
// the types whose state changed since the previous poll.
func (d *Dispatcher) Poll(ctx context.Context) {
	for _, typ := range Types {
		if d.Subscribers(typ) == 0 {
			continue
		}

		ids, value, err := d.read(ctx, typ)
		if err != nil {
			d.log.Debug("poll failed", "event", typ, "err", err)
			continue
		}

		d.mu.Lock()
		prev, tracked := d.last[typ]
		changed := tracked && prev.known && !slices.Equal(prev.ids, ids)
		if _, subscribed := d.subs[typ]; subscribed {
			d.last[typ] = snapshot{known: true, ids: ids}
		}
		var handlers []Handler
		if changed {
			keys := make([]int, 0, len(d.subs[typ]))
			for id := range d.subs[typ] {
				keys = append(keys, id)
			}
			sort.Ints(keys)
			for _, id := range keys {
				handlers = append(handlers, d.subs[typ][id])
			}
		}
		d.mu.Unlock()

		for _, h := range handlers {
			h(Event{Type: typ, Value: value})
		}
	}
}

func (d *Dispatcher) read(ctx context.Context, typ Type) ([]string, any, error) {
	switch typ {
	case ItemSelectionChanged:
		items, err := d.src.SelectedItems(ctx)
		if err != nil {
			return nil, nil, err
		}
		ids := make([]string, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		sort.Strings(ids)
		return ids, ids, nil
	case FolderSelectionChanged:
		folders, err := d.src.SelectedFolders(ctx)
		if err != nil {
			return nil, nil, err
		}
		ids := make([]string, len(folders))
		for i, f := range folders {
			ids[i] = f.ID
		}
		sort.Strings(ids)
		return ids, ids, nil
	default:
		path, err := d.src.LibraryPath(ctx)
		if err != nil {
			return nil, nil, err
		}
		return []string{path}, path, nil
	}
}

// Run polls until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Poll(ctx)
		}
	}
}
