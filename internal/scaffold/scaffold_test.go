package scaffold

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roamjs/roamjs-scripts/internal/setup"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRepos struct {
	repos     []string
	secrets   map[string]string
	secretErr error
}

func (f *fakeRepos) EnsureRepo(_ context.Context, owner, repo string) (bool, error) {
	f.repos = append(f.repos, owner+"/"+repo)
	return true, nil
}

func (f *fakeRepos) AddSecret(_ context.Context, _, _, name, value string) error {
	if f.secretErr != nil {
		return f.secretErr
	}
	if f.secrets == nil {
		f.secrets = map[string]string{}
	}
	f.secrets[name] = value
	return nil
}

type recordingGit struct {
	calls *[]string
}

func (g recordingGit) Run(_ context.Context, args ...string) (string, error) {
	*g.calls = append(*g.calls, strings.Join(args, " "))
	return "", nil
}

func newScaffolder(repos *fakeRepos, gitCalls, execCalls *[]string) *Scaffolder {
	return &Scaffolder{
		GitHub: repos,
		Git:    func(string) GitRunner { return recordingGit{calls: gitCalls} },
		Exec: func(_ context.Context, _ string, name string, args ...string) error {
			*execCalls = append(*execCalls, name+" "+strings.Join(args, " "))
			return nil
		},
		Now:    func() time.Time { return time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC) },
		Logger: quietLogger(),
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"":              false,
		"roamjs-todont": true,
		"Todont":        false,
		"9lives":        false,
		"my_ext":        false,
		"a1-b2":         true,
	}
	for name, ok := range cases {
		err := Validate(Request{Name: name})
		if ok != (err == nil) {
			t.Fatalf("Validate(%q) error = %v", name, err)
		}
		var userErr *setup.UserError
		if err != nil && !errors.As(err, &userErr) {
			t.Fatalf("Validate(%q) should return UserError, got %T", name, err)
		}
	}
}

func TestInitWritesProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var gitCalls, execCalls []string
	repos := &fakeRepos{}
	var out bytes.Buffer
	s := newScaffolder(repos, &gitCalls, &execCalls)
	s.Out = &out

	results, err := s.Init(context.Background(), Request{
		Dir:            dir,
		Name:           "roamjs-todont",
		User:           "dvargas92495",
		Author:         "David",
		GitHubToken:    "ghp",
		DeveloperToken: "dev",
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	root := filepath.Join(dir, "roamjs-todont")
	var pkg map[string]any
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		t.Fatalf("read package.json: %v", err)
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		t.Fatalf("decode package.json: %v", err)
	}
	if pkg["name"] != "todont" || pkg["description"] != "Description for todont." {
		t.Fatalf("package.json = %v", pkg)
	}

	license, err := os.ReadFile(filepath.Join(root, "LICENSE"))
	if err != nil || !strings.Contains(string(license), "Copyright (c) 2024 David") {
		t.Fatalf("LICENSE = %q, %v", license, err)
	}
	index, err := os.ReadFile(filepath.Join(root, "src", "index.ts"))
	if err != nil || !strings.Contains(string(index), `tabTitle: "todont"`) {
		t.Fatalf("index.ts = %q, %v", index, err)
	}

	var workflow map[string]any
	raw, err := os.ReadFile(filepath.Join(root, ".github", "workflows", "main.yaml"))
	if err != nil {
		t.Fatalf("read main.yaml: %v", err)
	}
	if err := yaml.Unmarshal(raw, &workflow); err != nil {
		t.Fatalf("decode main.yaml: %v", err)
	}
	env := workflow["env"].(map[string]any)
	if env["ROAMJS_EXTENSION_ID"] != "todont" || env["ROAMJS_EMAIL"] != DefaultEmail {
		t.Fatalf("workflow env = %v", env)
	}
	if env["ROAMJS_DEVELOPER_TOKEN"] != "${{ secrets.ROAMJS_DEVELOPER_TOKEN }}" {
		t.Fatalf("developer token ref = %v", env["ROAMJS_DEVELOPER_TOKEN"])
	}

	if _, err := os.Stat(filepath.Join(root, ".github", "workflows", "lambdas.yaml")); !os.IsNotExist(err) {
		t.Fatal("lambdas workflow written without --backend")
	}

	if len(repos.repos) != 1 || repos.repos[0] != "dvargas92495/roamjs-todont" {
		t.Fatalf("repos = %v", repos.repos)
	}
	if repos.secrets["ROAMJS_DEVELOPER_TOKEN"] != "dev" || repos.secrets["ROAMJS_RELEASE_TOKEN"] != "ghp" {
		t.Fatalf("secrets = %v", repos.secrets)
	}
	if len(execCalls) != 2 || execCalls[0] != "npm install --save-dev --quiet roamjs-scripts" {
		t.Fatalf("exec calls = %v", execCalls)
	}
	wantGit := []string{
		"init",
		"add -A",
		"commit -m Initial commit for RoamJS extension todont",
		"branch -M main",
		"remote add origin https://github.com/dvargas92495/roamjs-todont.git",
		"push origin main",
	}
	if strings.Join(gitCalls, "|") != strings.Join(wantGit, "|") {
		t.Fatalf("git calls = %v", gitCalls)
	}

	for _, result := range results {
		if result.Status == StatusFailed || result.Status == StatusSoftFailed {
			t.Fatalf("unexpected result %+v", result)
		}
	}
	if !strings.Contains(out.String(), "[done] Write Package JSON") {
		t.Fatalf("progress output = %q", out.String())
	}
}

func TestInitExistingProjectOnlyRefreshesBuildScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	root := filepath.Join(dir, "todont")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	var gitCalls, execCalls []string
	results, err := newScaffolder(&fakeRepos{}, &gitCalls, &execCalls).Init(context.Background(), Request{Dir: dir, Name: "todont", User: "u", GitHubToken: "g", DeveloperToken: "d"})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	for _, result := range results {
		want := StatusSkipped
		if result.Title == "Write build.sh" {
			want = StatusDone
		}
		if result.Status != want {
			t.Fatalf("%s = %s, want %s", result.Title, result.Status, want)
		}
	}
	if len(gitCalls) != 0 || len(execCalls) != 0 {
		t.Fatalf("side effects on existing project: git=%v exec=%v", gitCalls, execCalls)
	}
}

func TestInitSkipsRemoteWithoutUser(t *testing.T) {
	t.Parallel()

	var gitCalls, execCalls []string
	results, err := newScaffolder(&fakeRepos{}, &gitCalls, &execCalls).Init(context.Background(), Request{Dir: t.TempDir(), Name: "todont"})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	statuses := map[string]Status{}
	for _, result := range results {
		statuses[result.Title] = result.Status
	}
	for _, title := range []string{"Write main.yaml", "Create a github repo", "Add Developer Tokens As Secrets", "Git remote", "Git push"} {
		if statuses[title] != StatusSkipped {
			t.Fatalf("%s = %s, want skipped", title, statuses[title])
		}
	}
	if statuses["Git commit"] != StatusDone {
		t.Fatalf("Git commit = %s", statuses["Git commit"])
	}
}

func TestInitSecretFailureIsSoft(t *testing.T) {
	t.Parallel()

	var gitCalls, execCalls []string
	repos := &fakeRepos{secretErr: errors.New("forbidden")}
	results, err := newScaffolder(repos, &gitCalls, &execCalls).Init(context.Background(), Request{
		Dir: t.TempDir(), Name: "todont", User: "u", GitHubToken: "g", DeveloperToken: "d",
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	found := false
	for _, result := range results {
		if result.Title == "Add Developer Tokens As Secrets" {
			found = result.Status == StatusSoftFailed && result.Err != nil
		}
	}
	if !found {
		t.Fatalf("expected soft failure in %+v", results)
	}
	if gitCalls[len(gitCalls)-1] != "push origin main" {
		t.Fatalf("run should continue after soft failure: %v", gitCalls)
	}
}

func TestInitBackendAddsLambdas(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var gitCalls, execCalls []string
	repos := &fakeRepos{}
	_, err := newScaffolder(repos, &gitCalls, &execCalls).Init(context.Background(), Request{
		Dir: dir, Name: "todont", Backend: true, User: "u", GitHubToken: "g",
		AWSAccessKeyID: "AKIA", AWSSecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	root := filepath.Join(dir, "todont")
	for _, rel := range []string{filepath.Join("lambdas", "todont.ts"), filepath.Join(".github", "workflows", "lambdas.yaml")} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Fatalf("expected %s: %v", rel, err)
		}
	}
	ignore, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil || !strings.HasSuffix(string(ignore), "lambdas/out\n") {
		t.Fatalf(".gitignore = %q, %v", ignore, err)
	}
	if repos.secrets["AWS_ACCESS_KEY_ID"] != "AKIA" || repos.secrets["AWS_SECRET_ACCESS_KEY"] != "secret" {
		t.Fatalf("secrets = %v", repos.secrets)
	}
}

func TestTaskRunnerStopsOnHardFailure(t *testing.T) {
	t.Parallel()

	ran := 0
	tasks := []Task{
		{Title: "first", Run: func(context.Context) error { ran++; return nil }},
		{Title: "broken", Run: func(context.Context) error { return errors.New("boom") }},
		{Title: "never", Run: func(context.Context) error { ran++; return nil }},
	}
	results, err := (&TaskRunner{Logger: quietLogger()}).Run(context.Background(), tasks)
	if err == nil || !strings.Contains(err.Error(), "broken: boom") {
		t.Fatalf("Run() error = %v", err)
	}
	if ran != 1 || len(results) != 2 || results[1].Status != StatusFailed {
		t.Fatalf("ran = %d results = %+v", ran, results)
	}
}

func TestPublishWorkflowEncodes(t *testing.T) {
	t.Parallel()

	data, err := PublishWorkflow("todont", "me@example.com").Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var decoded Workflow
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v\n%s", err, data)
	}
	if decoded.Name != "Publish Extension" || decoded.On.Push.Branches[0] != "main" {
		t.Fatalf("decoded = %+v", decoded)
	}
	steps := decoded.Jobs["deploy"].Steps
	if len(steps) != 4 || steps[3].Run != "npx roamjs-scripts publish --depot" {
		t.Fatalf("steps = %+v", steps)
	}
}
