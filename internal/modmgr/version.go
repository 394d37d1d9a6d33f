package modmgr

import (
	"strconv"
	"strings"
)

// VersionDiff compares two dot-separated versions segment by segment. The
// result is positive when upstream is newer than installed, negative when it
// is older and zero when they are equal. Missing trailing segments count as
// zero; a segment that is not an integer also counts as zero.
func VersionDiff(installed, upstream string) int {
	a := splitVersion(installed)
	b := splitVersion(upstream)

	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return y - x
		}
	}
	return 0
}

func splitVersion(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err == nil {
			out[i] = n
		}
	}
	return out
}
