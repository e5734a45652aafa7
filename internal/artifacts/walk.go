package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Exclusions are skipped by Walk at any depth.
var Exclusions = map[string]struct{}{
	".git":      {},
	".github":   {},
	".replit":   {},
	"LICENSE":   {},
	"README.md": {},
}

// DepotFiles are the only files a depot publish considers.
var DepotFiles = []string{
	"extension.js",
	"extension.css",
	"README.md",
	"CHANGELOG.md",
	"package.json",
}

// Walk lists every file under root except Exclusions, in lexical order.
func Walk(root string) ([]Artifact, error) {
	var found []Artifact
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if _, skip := Exclusions[d.Name()]; skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		found = append(found, New(p, filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return found, nil
}

// Whitelist returns the named files that exist directly in dir, in the
// order given.
func Whitelist(dir string, names []string) ([]Artifact, error) {
	var found []Artifact
	for _, name := range names {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if info.IsDir() {
			continue
		}
		found = append(found, New(p, name))
	}
	return found, nil
}
