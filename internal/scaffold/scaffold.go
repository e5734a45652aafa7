// Package scaffold creates a new extension project: package files, CI
// workflows, an entry module, a GitHub repository with its secrets, and the
// initial commit.
package scaffold

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/roamjs/roamjs-scripts/internal/git"
	"github.com/roamjs/roamjs-scripts/internal/logging"
	"github.com/roamjs/roamjs-scripts/internal/setup"
)

// DefaultEmail is used in the generated workflow when none is given.
const DefaultEmail = "support@roamjs.com"

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Request describes the project to create.
type Request struct {
	// Dir is the parent directory the project is created in.
	Dir         string
	Name        string
	Description string
	User        string
	Repo        string
	Email       string
	Author      string
	Backend     bool

	GitHubToken        string
	DeveloperToken     string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// RepoClient is the GitHub surface the scaffolder needs.
type RepoClient interface {
	EnsureRepo(ctx context.Context, owner, repo string) (bool, error)
	AddSecret(ctx context.Context, owner, repo, name, value string) error
}

// GitRunner runs git subcommands in a fixed directory.
type GitRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// CommandRunner runs an external program in dir.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) error

// Scaffolder plans and runs the init tasks.
type Scaffolder struct {
	GitHub RepoClient
	Git    func(dir string) GitRunner
	Exec   CommandRunner
	Out    io.Writer
	Color  bool
	Now    func() time.Time
	Logger *slog.Logger
}

func (s *Scaffolder) logger() *slog.Logger {
	return logging.Ensure(s.Logger)
}

func (s *Scaffolder) git(dir string) GitRunner {
	if s.Git != nil {
		return s.Git(dir)
	}
	return &git.Runner{Dir: dir, Logger: s.Logger}
}

func (s *Scaffolder) exec(ctx context.Context, dir, name string, args ...string) error {
	if s.Exec != nil {
		return s.Exec(ctx, dir, name, args...)
	}
	return runCommand(ctx, dir, name, args...)
}

// Validate checks the request before anything touches disk.
func Validate(req Request) error {
	if req.Name == "" {
		return setup.Userf("--name parameter is required")
	}
	if !namePattern.MatchString(req.Name) {
		return setup.Userf("Extension name must consist of only lowercase letters, numbers, and dashes")
	}
	return nil
}

// Init validates req, runs every task and reports their outcomes.
func (s *Scaffolder) Init(ctx context.Context, req Request) ([]Result, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	tasks, err := s.Plan(req)
	if err != nil {
		return nil, err
	}
	runner := &TaskRunner{Out: s.Out, Color: s.Color, Logger: s.Logger}
	results, err := runner.Run(ctx, tasks)
	if err != nil {
		return results, err
	}
	s.logger().Info(fmt.Sprintf("Package %s is ready!", req.Name))
	return results, nil
}

// Plan builds the ordered task list for req. When the project directory
// already exists, only the tasks that refresh generated build files run.
func (s *Scaffolder) Plan(req Request) ([]Task, error) {
	root := filepath.Join(req.Dir, req.Name)
	_, statErr := os.Stat(root)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return nil, statErr
	}

	extension := strings.TrimPrefix(req.Name, "roamjs-")
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Description for %s.", extension)
	}
	repo := req.Repo
	if repo == "" {
		repo = req.Name
	}
	email := req.Email
	if email == "" {
		email = DefaultEmail
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	data := templateData{
		Extension:   extension,
		Description: description,
		Author:      req.Author,
		Year:        now().Year(),
		Backend:     req.Backend,
	}
	if data.Author == "" {
		data.Author = "RoamJS"
	}

	existing := func() bool { return exists }
	noUser := func() bool { return req.User == "" || exists }
	noGitHub := func() bool { return req.User == "" || req.GitHubToken == "" || exists }
	noBackend := func() bool { return !req.Backend || exists }

	writeFile := func(rel string, content func() ([]byte, error)) func(context.Context) error {
		return func(context.Context) error {
			body, err := content()
			if err != nil {
				return err
			}
			target := filepath.Join(root, rel)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			return os.WriteFile(target, body, 0o644)
		}
	}
	fromTemplate := func(name string) func() ([]byte, error) {
		return func() ([]byte, error) { return render(name, data) }
	}
	static := func(content string) func() ([]byte, error) {
		return func() ([]byte, error) { return []byte(content), nil }
	}
	gitTask := func(args ...string) func(context.Context) error {
		return func(ctx context.Context) error {
			_, err := s.git(root).Run(ctx, args...)
			return err
		}
	}

	tasks := []Task{
		{
			Title: "Make Project Directory",
			Skip:  existing,
			Run:   func(context.Context) error { return os.Mkdir(root, 0o755) },
		},
		{
			Title: "Write Package JSON",
			Skip:  existing,
			Run:   writeFile("package.json", func() ([]byte, error) { return packageJSONFile(extension, description) }),
		},
		{
			Title: "Write README.md",
			Skip:  existing,
			Run:   writeFile("README.md", fromTemplate("README.md.tmpl")),
		},
		{
			Title: "Write build.sh",
			Run:   writeFile("build.sh", static("npm run build:roam\n")),
		},
		{
			Title: "Write tsconfig.json",
			Skip:  existing,
			Run:   writeFile("tsconfig.json", func() ([]byte, error) { return tsconfigFile(req.Backend) }),
		},
		{
			Title: "Write main.yaml",
			Skip:  func() bool { return exists || req.DeveloperToken == "" },
			Run:   writeFile(filepath.Join(".github", "workflows", "main.yaml"), PublishWorkflow(extension, email).Encode),
		},
		{
			Title: "Write lambdas.yaml",
			Skip:  noBackend,
			Run:   writeFile(filepath.Join(".github", "workflows", "lambdas.yaml"), LambdasWorkflow().Encode),
		},
		{
			Title: "Write .gitignore",
			Skip:  existing,
			Run:   writeFile(".gitignore", fromTemplate("gitignore.tmpl")),
		},
		{
			Title: "Write LICENSE",
			Skip:  existing,
			Run:   writeFile("LICENSE", fromTemplate("LICENSE.tmpl")),
		},
		{
			Title: "Install Dev Package",
			Skip:  existing,
			Run: func(ctx context.Context) error {
				return s.exec(ctx, root, "npm", "install", "--save-dev", "--quiet", "roamjs-scripts")
			},
		},
		{
			Title: "Install Packages",
			Skip:  existing,
			Run: func(ctx context.Context) error {
				return s.exec(ctx, root, "npm", "install", "--quiet", "roamjs-components")
			},
		},
		{
			Title: "Write src",
			Skip:  existing,
			Run:   writeFile(filepath.Join("src", "index.ts"), fromTemplate("index.ts.tmpl")),
		},
		{
			Title: "Write lambdas",
			Skip:  noBackend,
			Run:   writeFile(filepath.Join("lambdas", extension+".ts"), fromTemplate("lambda.ts.tmpl")),
		},
		{
			Title: "Create a github repo",
			Skip:  noGitHub,
			Soft:  true,
			Run: func(ctx context.Context) error {
				created, err := s.GitHub.EnsureRepo(ctx, req.User, repo)
				if err != nil {
					return err
				}
				if !created {
					s.logger().Info("Repo already exists.")
				}
				return nil
			},
		},
		{
			Title: "Add Developer Tokens As Secrets",
			Skip:  func() bool { return noGitHub() || req.DeveloperToken == "" },
			Soft:  true,
			Run: s.secretsTask(req.User, repo, map[string]string{
				"ROAMJS_DEVELOPER_TOKEN": req.DeveloperToken,
				"ROAMJS_RELEASE_TOKEN":   req.GitHubToken,
			}),
		},
		{
			Title: "Add AWS Credentials As Secrets",
			Skip:  func() bool { return noGitHub() || !req.Backend },
			Soft:  true,
			Run: s.secretsTask(req.User, repo, map[string]string{
				"AWS_ACCESS_KEY_ID":     req.AWSAccessKeyID,
				"AWS_SECRET_ACCESS_KEY": req.AWSSecretAccessKey,
			}),
		},
		{Title: "Git init", Skip: existing, Run: gitTask("init")},
		{Title: "Git add", Skip: existing, Run: gitTask("add", "-A")},
		{Title: "Git commit", Skip: existing, Run: gitTask("commit", "-m", "Initial commit for RoamJS extension "+extension)},
		{Title: "Git branch", Skip: existing, Run: gitTask("branch", "-M", "main")},
		{Title: "Git remote", Skip: noUser, Run: gitTask("remote", "add", "origin", fmt.Sprintf("https://github.com/%s/%s.git", req.User, repo))},
		{Title: "Git push", Skip: noUser, Run: gitTask("push", "origin", "main")},
	}
	return tasks, nil
}

func (s *Scaffolder) secretsTask(owner, repo string, secrets map[string]string) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, name := range sortedNames(secrets) {
			value := secrets[name]
			if value == "" {
				s.logger().Info("No local value set, skip", "secret", name)
				continue
			}
			if err := s.GitHub.AddSecret(ctx, owner, repo, name, value); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runCommand(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
