// Package hooks installs the git hooks that keep the index fresh: after
// a commit, merge, or checkout the hook runs an incremental build in the
// background.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	nserr "github.com/nsearch/ns/internal/errors"
)

// hookNames are the VCS state changes worth reindexing after.
var hookNames = []string{"post-commit", "post-merge", "post-checkout"}

// marker identifies hooks we own so Remove never deletes a user's hook.
const marker = "# managed by ns hooks"

const script = `#!/bin/sh
` + marker + `
ns index --incremental --quiet >/dev/null 2>&1 &
`

// Install writes the hooks into root's .git/hooks directory. An existing
// hook we do not own is left alone and reported.
func Install(root string) ([]string, error) {
	hooksDir := filepath.Join(root, ".git", "hooks")
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		return nil, nserr.Config("not a git repository", err)
	}
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return nil, nserr.IO("create hooks directory", err)
	}

	var installed []string
	for _, name := range hookNames {
		path := filepath.Join(hooksDir, name)

		existing, err := os.ReadFile(path)
		if err == nil && !strings.Contains(string(existing), marker) {
			return installed, nserr.Config(
				fmt.Sprintf("hook %s already exists and is not managed by ns", name), nil)
		}

		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			return installed, nserr.IO("write hook "+name, err)
		}
		installed = append(installed, name)
	}
	return installed, nil
}

// Remove deletes the hooks we installed. Hooks not carrying the marker
// are untouched.
func Remove(root string) ([]string, error) {
	hooksDir := filepath.Join(root, ".git", "hooks")

	var removed []string
	for _, name := range hookNames {
		path := filepath.Join(hooksDir, name)

		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, nserr.IO("read hook "+name, err)
		}
		if !strings.Contains(string(data), marker) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, nserr.IO("remove hook "+name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
