// Package runner resolves a mod's implementation by its type tag and turns an
// installed package into a mounted instance.
//
// Every type implements Type. Lifecycle hooks are part of the interface; types
// without hooks embed NoHooks.
package runner

import (
	"context"
	"fmt"

	"github.com/egoavara/modmgr/internal/dom"
	"github.com/egoavara/modmgr/internal/errs"
)

// Well-known type tags.
const (
	TypeLegacy         = "v1"
	TypeStandard       = "standard"
	TypeExternalScript = "external-script"
)

// ManifestFile is the package manifest name. Its absence marks a legacy package.
const ManifestFile = "mod.json"

// ErrUnknownType is returned when no implementation is registered for a type tag.
var ErrUnknownType = fmt.Errorf("%w: unknown mod type", errs.ErrInvalidInput)

// ErrInvalidStructure is returned when a package's files do not match its type.
var ErrInvalidStructure = fmt.Errorf("%w: package structure does not match its type", errs.ErrInvalidInput)

// InstallContext is handed to lifecycle hooks.
type InstallContext struct {
	// Name is the package name.
	Name string
	// SourcePath is the bucket-side folder being installed from. Empty on uninstall.
	SourcePath string
	// InstallPath is where the package lives (or will live) under pkgs/.
	InstallPath string
	// ThirdPartyDir is the shared dependency folder.
	ThirdPartyDir string
}

// Hooks are the optional install/uninstall callbacks of a type.
type Hooks interface {
	PreInstall(ctx context.Context, ic InstallContext) error
	PostInstall(ctx context.Context, ic InstallContext) error
	PreUninstall(ctx context.Context, ic InstallContext) error
	PostUninstall(ctx context.Context, ic InstallContext) error
}

// NoHooks implements Hooks with no-ops.
type NoHooks struct{}

func (NoHooks) PreInstall(context.Context, InstallContext) error    { return nil }
func (NoHooks) PostInstall(context.Context, InstallContext) error   { return nil }
func (NoHooks) PreUninstall(context.Context, InstallContext) error  { return nil }
func (NoHooks) PostUninstall(context.Context, InstallContext) error { return nil }

// Spec describes an installed package to load.
type Spec struct {
	Name       string
	Type       string
	Version    string
	Dir        string // install folder, or the linked source folder
	EntryPoint string // file name relative to Dir; empty means resolve by convention
	Events     []string
}

// Type is one mod implementation.
type Type interface {
	Hooks

	// Name returns the type tag.
	Name() string

	// IsType reports whether the folder at path has this type's on-disk shape.
	IsType(path string) bool

	// Load resolves the entry file, validates the structure and produces an
	// instance ready to be mounted.
	Load(ctx context.Context, spec Spec) (Instance, error)
}

// Instance is a loaded mod.
type Instance interface {
	// Mount renders the mod into container and runs its mount callback.
	Mount(ctx context.Context, container *dom.Node) error
	// Unmount clears the container and releases host event subscriptions.
	Unmount(ctx context.Context) error
}
