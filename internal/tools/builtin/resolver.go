// Package builtin provides the built-in tool set registered with every
// runtime: workspace file access, command execution (synchronous and
// background via the shell manager), web fetch, and a thin git wrapper.
package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver maps tool-supplied paths onto the workspace root, rejecting
// escapes through ".." or symlinks that resolve outside it.
type Resolver struct {
	// Root is the workspace directory all relative paths resolve
	// against. Empty disables confinement (paths resolve as given).
	Root string
}

// Resolve returns the absolute path for p, confined to the root.
func (r Resolver) Resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	if r.Root == "" {
		return filepath.Abs(p)
	}

	absRoot, err := filepath.Abs(r.Root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}

	var abs string
	if filepath.IsAbs(p) {
		abs = filepath.Clean(p)
	} else {
		abs = filepath.Clean(filepath.Join(absRoot, p))
	}

	if !within(abs, absRoot) {
		return "", fmt.Errorf("access denied: %s is outside the workspace", p)
	}

	// A path may lexically sit inside the root while a symlink along it
	// points elsewhere; check the resolved form too.
	rootReal := absRoot
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		rootReal = resolved
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		if !within(resolved, rootReal) {
			return "", fmt.Errorf("access denied: %s resolves outside the workspace", p)
		}
	} else if os.IsNotExist(err) {
		if ancestor, err := resolveExistingAncestor(filepath.Dir(abs)); err == nil {
			if !within(ancestor, rootReal) {
				return "", fmt.Errorf("access denied: %s resolves outside the workspace", p)
			}
		}
	} else {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}

	return abs, nil
}

func resolveExistingAncestor(path string) (string, error) {
	for current := filepath.Clean(path); ; current = filepath.Dir(current) {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			return resolved, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}
		if filepath.Dir(current) == current {
			return "", os.ErrNotExist
		}
	}
}

func within(candidate, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(candidate))
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}
