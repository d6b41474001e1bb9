package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// supportedExtensions are the source, markup, config and shell formats the
// pipeline sends to the model.
var supportedExtensions = map[string]bool{
	"py": true, "js": true, "java": true, "c": true, "cpp": true, "go": true,
	"php": true, "rb": true, "ts": true, "jsx": true, "tsx": true, "html": true,
	"css": true, "cs": true, "kt": true, "kts": true, "scala": true, "h": true,
	"cc": true, "cxx": true, "hpp": true, "hh": true, "hxx": true, "htm": true,
	"sql": true, "swift": true, "rs": true, "sh": true, "m": true, "dart": true,
	"r": true, "pl": true, "pm": true, "xml": true, "yaml": true, "yml": true,
}

// Supported reports whether path has a scannable extension.
func Supported(path string) bool {
	return supportedExtensions[extOf(path)]
}

// Discover walks root on fsys and returns the slash-separated paths,
// relative to root, of every supported file. Hidden files and directories
// are skipped. The result is sorted.
func Discover(fsys afero.Fs, root string) ([]string, error) {
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	var out []string
	err = afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() || !Supported(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}
