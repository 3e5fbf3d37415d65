// Package pathutil confines file writes requested by remote callers to
// allowed directories.
package pathutil

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nvandessel/rbdc/internal/config"
	"github.com/nvandessel/rbdc/internal/models"
)

// DatasetExtensions are the file suffixes a dataset export may use.
var DatasetExtensions = []string{".csv", ".csv.gz"}

// ExportsDir is the always-allowed export directory under ~/.rbdc.
const ExportsDir = "exports"

func reject(path, reason string) error {
	if path == "" {
		return &models.ValidationError{Field: "path", Reason: reason}
	}
	return &models.ValidationError{Field: "path", Value: RedactPath(path), Reason: reason}
}

// RedactPath shortens a path to .../<parent>/<base> for error messages.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	clean := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(clean))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(clean)
	}
	return ".../" + parent + "/" + filepath.Base(clean)
}

// ValidatePath reports whether path, after cleaning and resolving symlinks
// in its existing ancestors, lies inside one of allowedDirs. The file
// itself need not exist.
func ValidatePath(path string, allowedDirs []string) error {
	switch {
	case path == "":
		return reject("", "path is empty")
	case len(allowedDirs) == 0:
		return reject(path, "no allowed directories configured")
	case strings.ContainsRune(path, 0):
		return reject("", "path contains null byte")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return reject(path, "cannot make absolute: "+err.Error())
	}
	dir, err := resolve(filepath.Dir(abs))
	if err != nil {
		return reject(path, err.Error())
	}
	target := filepath.Join(dir, filepath.Base(abs))

	inside := slices.ContainsFunc(allowedDirs, func(allowed string) bool {
		root, err := filepath.Abs(allowed)
		if err != nil {
			return false
		}
		if root, err = resolve(root); err != nil {
			return false
		}
		return within(target, root)
	})
	if !inside {
		return reject(abs, "outside allowed directories")
	}
	return nil
}

// resolve evaluates symlinks in the deepest existing ancestor of dir and
// re-appends the components that do not exist yet.
func resolve(dir string) (string, error) {
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			slices.Reverse(missing)
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", err
		}
		missing = append(missing, filepath.Base(dir))
		dir = parent
	}
}

// within reports whether path is root or below it.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// AllowedOutputDirs returns the directories dataset exports may be written
// to: outputDir, when set, then ~/.rbdc/exports.
func AllowedOutputDirs(outputDir string) ([]string, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	exports := filepath.Join(dir, ExportsDir)
	if outputDir == "" {
		return []string{exports}, nil
	}
	return []string{outputDir, exports}, nil
}

// ResolveOutputPath makes a requested dataset path absolute, joining a
// relative path onto outputDir, and checks it has a dataset extension and
// lands in an allowed output directory.
func ResolveOutputPath(path, outputDir string) (string, error) {
	if path == "" {
		return "", reject("", "path is empty")
	}
	lower := strings.ToLower(path)
	if !slices.ContainsFunc(DatasetExtensions, func(ext string) bool { return strings.HasSuffix(lower, ext) }) {
		return "", reject(path, "must end in one of "+strings.Join(DatasetExtensions, ", "))
	}
	if !filepath.IsAbs(path) && outputDir != "" {
		path = filepath.Join(outputDir, path)
	}
	allowed, err := AllowedOutputDirs(outputDir)
	if err != nil {
		return "", err
	}
	if err := ValidatePath(path, allowed); err != nil {
		return "", err
	}
	return filepath.Abs(path)
}
