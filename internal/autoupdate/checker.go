// Package autoupdate checks installed packages against their buckets and
// applies the updates in one batch.
package autoupdate

import (
	"context"
	"fmt"

	"github.com/egoavara/modmgr/internal/modmgr"
)

// Registry is the part of the mod manager the checker and updater use.
// *modmgr.Registry implements it.
type Registry interface {
	UpdateAllBuckets(ctx context.Context) []modmgr.BucketResult
	Outdated() []modmgr.OutdatedPackage
	UpdatePkg(ctx context.Context, name string, force bool) (bool, error)
}

// Checker handles update checking logic
type Checker struct {
	reg Registry
}

// NewChecker creates a new update checker
func NewChecker(reg Registry) *Checker {
	return &Checker{reg: reg}
}

// Check lists outdated packages. With refresh, every bucket is pulled first;
// a bucket that fails to pull is reported and the rest are still checked.
func (c *Checker) Check(ctx context.Context, refresh bool) *CheckResult {
	result := &CheckResult{Packages: []UpdateInfo{}}

	if refresh {
		for _, br := range c.reg.UpdateAllBuckets(ctx) {
			if br.Err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("bucket %s: %w", br.Name, br.Err))
			}
		}
	}

	for _, o := range c.reg.Outdated() {
		result.Packages = append(result.Packages, UpdateInfo{
			Type:       UpdateTypePackage,
			Name:       o.Name,
			Bucket:     o.Bucket,
			CurrentVer: o.Installed,
			RemoteVer:  o.Available,
		})
	}
	return result
}
