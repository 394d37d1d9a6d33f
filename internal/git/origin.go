package git

import (
	"fmt"

	gogit "github.com/go-git/go-git/v5"
)

// OriginURL reads the URL of the "origin" remote from the repository at path
// without spawning git.
func OriginURL(path string) (string, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("open repository %s: %w", path, err)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("read origin of %s: %w", path, err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("origin of %s has no url", path)
	}
	return urls[0], nil
}
