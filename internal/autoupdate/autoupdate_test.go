package autoupdate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/egoavara/modmgr/internal/modmgr"
)

type fakeRegistry struct {
	buckets  []modmgr.BucketResult
	outdated []modmgr.OutdatedPackage
	failing  map[string]bool
	pulled   bool
	updated  []string
}

func (f *fakeRegistry) UpdateAllBuckets(context.Context) []modmgr.BucketResult {
	f.pulled = true
	return f.buckets
}

func (f *fakeRegistry) Outdated() []modmgr.OutdatedPackage { return f.outdated }

func (f *fakeRegistry) UpdatePkg(_ context.Context, name string, _ bool) (bool, error) {
	if f.failing[name] {
		return false, errors.New("copy failed")
	}
	f.updated = append(f.updated, name)
	return true, nil
}

func TestCheck(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{
		buckets: []modmgr.BucketResult{{Name: "acme_tools"}, {Name: "x_bar", Err: errors.New("pull failed")}},
		outdated: []modmgr.OutdatedPackage{
			{Name: "foo", Bucket: "acme_tools", Installed: "1.0.0", Available: "1.1.0"},
		},
	}

	res := NewChecker(reg).Check(context.Background(), false)
	if reg.pulled {
		t.Error("buckets pulled without refresh")
	}
	if !res.HasAnyUpdate() || res.TotalUpdates() != 1 {
		t.Fatalf("result = %+v", res)
	}
	if p := res.Packages[0]; p.Name != "foo" || p.CurrentVer != "1.0.0" || p.RemoteVer != "1.1.0" || p.Type != UpdateTypePackage {
		t.Errorf("package = %+v", p)
	}

	res = NewChecker(reg).Check(context.Background(), true)
	if !reg.pulled {
		t.Error("buckets not pulled")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0].Error(), "x_bar") {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestApplyContinuesPastFailures(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{failing: map[string]bool{"bad": true}}
	res := &CheckResult{Packages: []UpdateInfo{{Name: "bad"}, {Name: "good"}}}
	var out bytes.Buffer

	errs := NewUpdater(reg, &out).Apply(context.Background(), res)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "bad") {
		t.Errorf("errors = %v", errs)
	}
	if len(reg.updated) != 1 || reg.updated[0] != "good" {
		t.Errorf("updated = %v", reg.updated)
	}
	if !strings.Contains(out.String(), "✗") || !strings.Contains(out.String(), "✓") {
		t.Errorf("output = %q", out.String())
	}
}

func TestApplyNothing(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if errs := NewUpdater(&fakeRegistry{}, &out).Apply(context.Background(), &CheckResult{}); errs != nil {
		t.Errorf("errors = %v", errs)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q", out.String())
	}
}

func TestPromptUpdate(t *testing.T) {
	t.Parallel()

	res := &CheckResult{Packages: []UpdateInfo{{Name: "foo"}}}
	tests := []struct {
		input string
		want  bool
	}{
		{"\n", true},
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := PromptUpdate(strings.NewReader(tt.input), &out, res); got != tt.want {
			t.Errorf("PromptUpdate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
	if PromptUpdate(strings.NewReader("y\n"), &bytes.Buffer{}, &CheckResult{}) {
		t.Error("prompted with nothing to update")
	}
}

func TestShowUpdateSummary(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	ShowUpdateSummary(&out, &CheckResult{Packages: []UpdateInfo{{Name: "foo", Bucket: "acme_tools", CurrentVer: "1.0.0", RemoteVer: "1.1.0"}}})
	if !strings.Contains(out.String(), "[acme_tools] foo (1.0.0 → 1.1.0)") {
		t.Errorf("summary = %q", out.String())
	}
}
