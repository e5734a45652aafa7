package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectFile is the optional per-repository override file.
const ProjectFile = "roamjs.yaml"

// PackageJSON holds the package.json fields the tooling reads.
type PackageJSON struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Stripe      string   `json:"stripe,omitempty"`
}

// Project captures roamjs.yaml.
type Project struct {
	// Externals are extra "module=window.Path" mappings.
	Externals []string `yaml:"externals"`
	// Env lists extra variable names injected into depot builds.
	Env     []string       `yaml:"env"`
	MaxSize int64          `yaml:"max_size"`
	Lambdas LambdasProject `yaml:"lambdas"`
}

type LambdasProject struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// ReadPackageJSON parses dir/package.json.
func ReadPackageJSON(dir string) (PackageJSON, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return PackageJSON{}, err
	}
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return PackageJSON{}, fmt.Errorf("parse package.json: %w", err)
	}
	return pkg, nil
}

// LoadProject reads roamjs.yaml from dir. A missing file yields the zero value.
func LoadProject(dir string) (Project, error) {
	data, err := os.ReadFile(filepath.Join(dir, ProjectFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Project{}, nil
		}
		return Project{}, err
	}
	var project Project
	if err := yaml.Unmarshal(data, &project); err != nil {
		return Project{}, fmt.Errorf("parse %s: %w", ProjectFile, err)
	}
	return project, nil
}

func packageJSONName(dir string) string {
	pkg, err := ReadPackageJSON(dir)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(pkg.Name)
}

func gitRepoName(dir string) string {
	cmd := exec.Command("git", "config", "--get", "remote.origin.url")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return RepoNameFromURL(strings.TrimSpace(string(out)))
}

// RepoNameFromURL extracts "name" from https or scp-style git remotes.
func RepoNameFromURL(remote string) string {
	remote = strings.TrimSuffix(strings.TrimSpace(remote), "/")
	if remote == "" {
		return ""
	}
	if i := strings.LastIndex(remote, ":"); i >= 0 && !strings.Contains(remote, "://") {
		remote = remote[i+1:]
	}
	return strings.TrimSuffix(path.Base(remote), ".git")
}

// ToVersion formats t as YYYY-MM-DD-HH-MM.
func ToVersion(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d-%02d-%02d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
}

// StampVersion rewrites dir/.env so that ROAMJS_VERSION holds version,
// preserving every other entry.
func StampVersion(dir, version string) error {
	envPath := filepath.Join(dir, ".env")
	values, err := godotenv.Read(envPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read .env: %w", err)
		}
		values = map[string]string{}
	}
	values["ROAMJS_VERSION"] = version
	if err := godotenv.Write(values, envPath); err != nil {
		return fmt.Errorf("write .env: %w", err)
	}
	getLogger().Debug("stamped version", "version", version, "file", envPath)
	return nil
}
