package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Dotenv files merged into the environment, lowest precedence first. Values
// already present in the process environment always win.
var DotenvFiles = [...]string{".env", ".env.local"}

const (
	DefaultDepotAPIURL = "https://lambda.roamjs.com"
	DefaultDevAPIURL   = "http://localhost:3003/dev"
)

// Environment is an immutable snapshot of the variables a command may read.
type Environment struct {
	vars map[string]string
}

// LoadEnvironment snapshots the process environment merged with the dotenv
// files found in dir.
func LoadEnvironment(dir string) (Environment, error) {
	vars := map[string]string{}
	for _, name := range DotenvFiles {
		path := filepath.Join(dir, name)
		parsed, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Environment{}, fmt.Errorf("read %s: %w", name, err)
		}
		getLogger().Debug("loaded dotenv file", "file", name, "keys", len(parsed))
		for k, v := range parsed {
			vars[k] = v
		}
	}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = value
	}
	return Environment{vars: vars}, nil
}

// NewEnvironment builds an Environment from explicit values.
func NewEnvironment(vars map[string]string) Environment {
	cloned := make(map[string]string, len(vars))
	for k, v := range vars {
		cloned[k] = v
	}
	return Environment{vars: cloned}
}

// Get returns the value of key or "".
func (e Environment) Get(key string) string {
	return e.vars[key]
}

// GetEnv returns the value of key, or defaultValue when unset or empty.
func (e Environment) GetEnv(key, defaultValue string) string {
	if value := e.vars[key]; value != "" {
		return value
	}
	return defaultValue
}

// Lookup reports whether key is set.
func (e Environment) Lookup(key string) (string, bool) {
	value, ok := e.vars[key]
	return value, ok
}

// With returns a copy of e with key set to value.
func (e Environment) With(key, value string) Environment {
	next := NewEnvironment(e.vars)
	next.vars[key] = value
	return next
}

// Keys returns every variable name in sorted order.
func (e Environment) Keys() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ renders the snapshot in os/exec form.
func (e Environment) Environ() []string {
	out := make([]string, 0, len(e.vars))
	for _, k := range e.Keys() {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}

// Depot reports whether the build targets the Roam Depot marketplace.
func (e Environment) Depot() bool {
	return e.Get("ROAM_MARKETPLACE") == "true" || e.Get("ROAM_DEPOT") == "true"
}

func (e Environment) Version() string        { return e.Get("ROAMJS_VERSION") }
func (e Environment) ExtensionID() string    { return e.Get("ROAMJS_EXTENSION_ID") }
func (e Environment) GitHubToken() string    { return e.Get("GITHUB_TOKEN") }
func (e Environment) DeveloperToken() string { return e.Get("ROAMJS_DEVELOPER_TOKEN") }
func (e Environment) ReleaseToken() string   { return e.Get("ROAMJS_RELEASE_TOKEN") }
func (e Environment) Email() string          { return e.Get("ROAMJS_EMAIL") }
func (e Environment) Owner() string          { return e.Get("GITHUB_REPOSITORY_OWNER") }
func (e Environment) CommitSHA() string      { return e.Get("GITHUB_SHA") }

// Debug returns DEBUG, falling back to PWDEBUG.
func (e Environment) Debug() string {
	return e.GetEnv("DEBUG", e.Get("PWDEBUG"))
}

// PackageName resolves the extension name for dir: the package.json name,
// else the git origin repository name, else the directory name. A leading
// "roamjs-" is stripped.
func PackageName(dir string) string {
	name := packageJSONName(dir)
	if name == "" {
		name = gitRepoName(dir)
	}
	if name == "" {
		if abs, err := filepath.Abs(dir); err == nil {
			name = filepath.Base(abs)
		}
	}
	return strings.TrimPrefix(name, "roamjs-")
}
