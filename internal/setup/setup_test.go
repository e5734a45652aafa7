package setup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

func TestToVersionZeroPads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, time.January, 5, 9, 3, 0, 0, time.UTC), "2024-01-05-09-03"},
		{time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC), "2023-12-31-23-59"},
		{time.Date(2025, time.October, 10, 0, 0, 0, 0, time.UTC), "2025-10-10-00-00"},
	}

	for _, tt := range tests {
		if got := ToVersion(tt.at); got != tt.want {
			t.Fatalf("ToVersion(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestStampVersionPreservesOtherEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("API_URL=http://localhost:3003\nROAMJS_VERSION=2020-01-01-00-00\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := StampVersion(dir, "2024-01-05-09-03"); err != nil {
		t.Fatalf("StampVersion() error = %v", err)
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		t.Fatalf("read .env: %v", err)
	}
	if values["ROAMJS_VERSION"] != "2024-01-05-09-03" {
		t.Fatalf("unexpected version: %q", values["ROAMJS_VERSION"])
	}
	if values["API_URL"] != "http://localhost:3003" {
		t.Fatalf("expected API_URL to survive, got %q", values["API_URL"])
	}
}

func TestStampVersionCreatesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := StampVersion(dir, "development"); err != nil {
		t.Fatalf("StampVersion() error = %v", err)
	}
	values, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("read .env: %v", err)
	}
	if len(values) != 1 || values["ROAMJS_VERSION"] != "development" {
		t.Fatalf("unexpected .env contents: %v", values)
	}
}

func TestLoadEnvironmentProcessWinsOverDotenv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ROAMJS_EMAIL=file@example.com\nROAMJS_EXTENSION_ID=from-env-file\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("ROAMJS_EXTENSION_ID=from-local\n"), 0o644); err != nil {
		t.Fatalf("write .env.local: %v", err)
	}
	t.Setenv("ROAMJS_EMAIL", "process@example.com")

	env, err := LoadEnvironment(dir)
	if err != nil {
		t.Fatalf("LoadEnvironment() error = %v", err)
	}
	if env.Email() != "process@example.com" {
		t.Fatalf("Email() = %q, want process value", env.Email())
	}
	if env.ExtensionID() != "from-local" {
		t.Fatalf("ExtensionID() = %q, want .env.local value", env.ExtensionID())
	}
}

func TestEnvironmentWithDoesNotMutate(t *testing.T) {
	t.Parallel()

	base := NewEnvironment(map[string]string{"ROAM_DEPOT": ""})
	depot := base.With("ROAM_DEPOT", "true")

	if base.Depot() {
		t.Fatal("base environment should not be depot")
	}
	if !depot.Depot() {
		t.Fatal("derived environment should be depot")
	}
	if got := NewEnvironment(map[string]string{"PWDEBUG": "1"}).Debug(); got != "1" {
		t.Fatalf("Debug() = %q, want PWDEBUG fallback", got)
	}
}

func TestPackageNameStripsPrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"roamjs-query-builder"}`), 0o644); err != nil {
		t.Fatalf("write package.json: %v", err)
	}
	if got := PackageName(dir); got != "query-builder" {
		t.Fatalf("PackageName() = %q, want %q", got, "query-builder")
	}
}

func TestPackageNameFallsBackToDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "roamjs-smartblocks")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if got := PackageName(dir); got != "smartblocks" {
		t.Fatalf("PackageName() = %q, want %q", got, "smartblocks")
	}
}

func TestRepoNameFromURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://github.com/dvargas92495/roamjs-todont.git": "roamjs-todont",
		"git@github.com:dvargas92495/roam-depot.git":        "roam-depot",
		"https://github.com/owner/plain/":                   "plain",
		"":                                                  "",
	}
	for in, want := range cases {
		if got := RepoNameFromURL(in); got != want {
			t.Fatalf("RepoNameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	project, err := LoadProject(dir)
	if err != nil {
		t.Fatalf("LoadProject() on missing file error = %v", err)
	}
	if project.MaxSize != 0 || len(project.Externals) != 0 {
		t.Fatalf("expected zero project, got %+v", project)
	}

	content := "externals:\n  - lodash=window.Lodash\nenv: [ROAM_PASSWORD]\nmax_size: 1000\nlambdas:\n  prefix: Custom\n"
	if err := os.WriteFile(filepath.Join(dir, ProjectFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write project file: %v", err)
	}
	project, err = LoadProject(dir)
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if project.MaxSize != 1000 || project.Lambdas.Prefix != "Custom" {
		t.Fatalf("unexpected project: %+v", project)
	}
	if len(project.Externals) != 1 || project.Externals[0] != "lodash=window.Lodash" {
		t.Fatalf("unexpected externals: %v", project.Externals)
	}
	if len(project.Env) != 1 || project.Env[0] != "ROAM_PASSWORD" {
		t.Fatalf("unexpected env: %v", project.Env)
	}
}
