package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/egoavara/modmgr/internal/errs"
)

// ErrInvalidSourceURL is returned when no owner/repo pair can be read from a URL.
var ErrInvalidSourceURL = fmt.Errorf("%w: invalid source url", errs.ErrInvalidInput)

// ParseSourceURL extracts the (owner, repo) pair of a repository URL.
//
//	https://github.com/org/repo
//	https://github.com/org/repo.git
//	git@github.com:org/repo.git
//	ssh://git@github.com/org/repo
func ParseSourceURL(url string) (owner, repo string, err error) {
	url = strings.TrimSpace(url)
	if url == "" || strings.ContainsAny(url, " \t\n") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSourceURL, url)
	}

	var path string
	switch {
	case strings.Contains(url, "://"):
		rest := url[strings.Index(url, "://")+3:]
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidSourceURL, url)
		}
		path = rest[slash+1:]
	case strings.Contains(url, "@") && strings.Contains(url, ":"):
		path = url[strings.Index(url, ":")+1:]
	default:
		slash := strings.Index(url, "/")
		if slash < 0 {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidSourceURL, url)
		}
		path = url[slash+1:]
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSourceURL, url)
	}

	owner, repo = segments[len(segments)-2], segments[len(segments)-1]
	if !validSegment(owner) || !validSegment(repo) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSourceURL, url)
	}
	return owner, repo, nil
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// BucketName returns the folder name of the bucket cloned from url: {owner}_{repo}.
func BucketName(url string) (string, error) {
	owner, repo, err := ParseSourceURL(url)
	if err != nil {
		return "", err
	}
	return owner + "_" + repo, nil
}

func sameDir(a, b string) bool {
	ra, err1 := filepath.EvalSymlinks(a)
	rb, err2 := filepath.EvalSymlinks(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	if ra == rb {
		return true
	}
	ia, err1 := os.Stat(ra)
	ib, err2 := os.Stat(rb)
	return err1 == nil && err2 == nil && os.SameFile(ia, ib)
}
