package bundle

import (
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Emitted is the set of files the latest build wrote, named relative to the
// output directory. The dev server serves nothing else.
type Emitted struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewEmitted returns a set holding names.
func NewEmitted(names ...string) *Emitted {
	e := &Emitted{}
	e.Replace(names)
	return e
}

// Replace swaps in the outputs of a finished build.
func (e *Emitted) Replace(names []string) {
	next := make(map[string]struct{}, len(names))
	for _, name := range names {
		next[path.Clean(filepath.ToSlash(name))] = struct{}{}
	}
	e.mu.Lock()
	e.names = next
	e.mu.Unlock()
}

// Has reports whether name was emitted. Hidden paths never are.
func (e *Emitted) Has(name string) bool {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" || hidden(name) {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.names[name]
	return ok
}

func hidden(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

// Names converts the metafile's output keys, which are relative to workDir,
// into names relative to outDir. Outputs outside outDir are dropped.
func (m *Metafile) Names(workDir, outDir string) []string {
	names := make([]string, 0, len(m.Outputs))
	for key := range m.Outputs {
		abs := filepath.Join(workDir, filepath.FromSlash(key))
		rel, err := filepath.Rel(outDir, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		names = append(names, filepath.ToSlash(rel))
	}
	return names
}
