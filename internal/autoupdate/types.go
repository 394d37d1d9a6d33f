package autoupdate

// UpdateType represents the type of updatable item
type UpdateType string

const (
	UpdateTypeBucket  UpdateType = "bucket"
	UpdateTypePackage UpdateType = "package"
)

// UpdateInfo contains information about an available update
type UpdateInfo struct {
	Type       UpdateType
	Name       string
	Bucket     string // bucket the package is updated from
	CurrentVer string
	RemoteVer  string
}

// CheckResult contains the result of update check
type CheckResult struct {
	Packages []UpdateInfo
	Errors   []error // Non-fatal errors during check, one per failed bucket
}

// HasAnyUpdate reports whether at least one package can be updated.
func (r *CheckResult) HasAnyUpdate() bool {
	return len(r.Packages) > 0
}

// TotalUpdates returns the total number of available updates
func (r *CheckResult) TotalUpdates() int {
	return len(r.Packages)
}
