// Package modmgr is the mod package manager: buckets cloned from git, packages
// installed from them, and the Registry that keeps both catalogs in step with
// the disk.
package modmgr

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/git"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/metrics"
	"github.com/egoavara/modmgr/internal/runner"
	"github.com/egoavara/modmgr/internal/store"
)

// Well-known files under the base directory.
const (
	LinksFile   = "links.json"
	OriginsFile = "installed.json"
	OrderFile   = "buckets.json"
)

var (
	ErrBucketNotFound  = fmt.Errorf("%w: bucket", errs.ErrNotFound)
	ErrDuplicateBucket = fmt.Errorf("%w: bucket already exists", errs.ErrConflict)
	ErrPackageNotFound = fmt.Errorf("%w: package", errs.ErrNotFound)
	ErrPackageMissing  = fmt.Errorf("%w: package folder", errs.ErrNotFound)
	ErrNotInstalled    = fmt.Errorf("%w: package not installed", errs.ErrNotFound)
	ErrAlreadyExists   = fmt.Errorf("%w: package already installed", errs.ErrConflict)
	ErrReservedName    = fmt.Errorf("%w: reserved name", errs.ErrConflict)
	ErrNotRepository   = fmt.Errorf("%w: not a git repository", errs.ErrInvalidInput)
	ErrLinkTarget      = fmt.Errorf("%w: link target", errs.ErrNotFound)
)

// Env carries what buckets and packages need from their surroundings.
type Env struct {
	Layout  *store.Layout
	Git     git.Client
	Types   *runner.Registry
	Links   *store.JSONFile
	Log     *log.Logger
	Metrics *metrics.Metrics
}

// NewEnv builds an Env for layout with the default git client and link table.
func NewEnv(layout *store.Layout, types *runner.Registry, logger *log.Logger) *Env {
	return &Env{
		Layout: layout,
		Git:    git.NewClient(),
		Types:  types,
		Links:  layout.File(LinksFile),
		Log:    logging.Or(logger),
	}
}

func (e *Env) logger(prefix string) *log.Logger {
	return logging.Or(e.Log).WithPrefix(prefix)
}

func (e *Env) metrics() *metrics.Metrics {
	return metrics.Or(e.Metrics)
}

func (e *Env) types() *runner.Registry {
	if e.Types == nil {
		return runner.NewRegistry()
	}
	return e.Types
}

func (e *Env) links() *store.JSONFile {
	if e.Links == nil {
		e.Links = e.Layout.File(LinksFile)
	}
	return e.Links
}

// reserved reports whether name collides with a well-known folder.
func (e *Env) reserved(name string) bool {
	return name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) ||
		name == filepath.Base(e.Layout.ThirdParty)
}
