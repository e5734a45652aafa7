package bundle

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roamjs/roamjs-scripts/internal/setup"
)

var sourceExtensions = []string{".ts", ".tsx", ".js", ".jsx"}

// FindEntry picks the entry file in srcDir: one named after the package
// first, then index. The returned name is relative to srcDir.
func FindEntry(srcDir, name string) (string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	files := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() {
			files[entry.Name()] = true
		}
	}

	for _, stem := range []string{name, "index"} {
		if stem == "" {
			continue
		}
		for _, ext := range sourceExtensions {
			if files[stem+ext] {
				return stem + ext, nil
			}
		}
	}
	return "", setup.Userf("Need an entry file in the `src` directory named index or %s", name)
}

// Workers maps each file in srcDir/workers to an extra entry point named
// after it.
func Workers(srcDir string) (map[string]string, error) {
	dir := filepath.Join(srcDir, "workers")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	workers := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".ts" && ext != ".js" {
			continue
		}
		workers[strings.TrimSuffix(entry.Name(), ext)] = filepath.Join(dir, entry.Name())
	}
	return workers, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
