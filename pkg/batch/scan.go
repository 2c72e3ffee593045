package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanDirectory walks root recursively and returns a FileSpec for every file
// with a recognized image extension, matched case-insensitively. Hidden
// directories are skipped. A maxDepth of 0 or less means unbounded; depth 1
// covers files directly under root. Results are sorted by path so repeated
// scans of the same tree produce the same job.
func ScanDirectory(root string, maxDepth int) ([]FileSpec, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrValidation, root)
	}

	var specs []FileSpec
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if maxDepth > 0 && depthBelow(root, path) >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if maxDepth > 0 && depthBelow(root, path) > maxDepth {
			return nil
		}
		if recognizedExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			specs = append(specs, FileSpec{Name: d.Name(), Path: path})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Path < specs[j].Path })
	return specs, nil
}

// depthBelow counts path components under root: a file directly in root has
// depth 1.
func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}
