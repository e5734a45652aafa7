package lambdas

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	DefaultDir    = "lambdas"
	DefaultPrefix = "RoamJS"
	OutDir        = "out"
)

// Function is one deployable handler source file.
type Function struct {
	Name  string
	Entry string
}

// Discover lists the handler files directly under dir. Declaration files
// and subdirectories such as common/ hold shared code and are skipped.
func Discover(dir string) ([]Function, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var functions []Function
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".d.ts") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".ts" && ext != ".js" {
			continue
		}
		functions = append(functions, Function{
			Name:  strings.TrimSuffix(name, ext),
			Entry: filepath.Join(dir, name),
		})
	}
	sort.Slice(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })
	return functions, nil
}

// FunctionName renders the deployed Lambda name.
func FunctionName(prefix, extension, function string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "_" + extension + "_" + function
}
