package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
)

// artifactDirs are build outputs removed after a build. Names that are also
// common source directories only count at the repository root.
var artifactDirs = map[string]bool{
	"build":        true,
	"dist":         true,
	"target":       true,
	".venv":        true,
	"node_modules": false,
	"__pycache__":  false,
}

// isArtifactPath reports whether the directory p under root is a build output.
// Root-only names such as build and target are source below the root.
func isArtifactPath(root, p string) bool {
	rootOnly, ok := artifactDirs[filepath.Base(p)]
	if !ok {
		return false
	}
	return !rootOnly || filepath.Dir(p) == filepath.Clean(root)
}

// CleanArtifacts removes build output directories under root and returns how
// many were removed.
func CleanArtifacts(root string) (int, error) {
	var victims []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || p == root {
			return nil
		}
		if d.Name() == ".git" {
			return fs.SkipDir
		}
		if isArtifactPath(root, p) {
			victims = append(victims, p)
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, v := range victims {
		if err := os.RemoveAll(v); err != nil {
			return 0, err
		}
	}
	return len(victims), nil
}
