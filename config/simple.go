package simple

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/roamjs/roamjs-scripts/internal/args"
	"github.com/roamjs/roamjs-scripts/internal/artifacts"
	"github.com/roamjs/roamjs-scripts/internal/bundle"
	"github.com/roamjs/roamjs-scripts/internal/e2e"
	"github.com/roamjs/roamjs-scripts/internal/git"
	"github.com/roamjs/roamjs-scripts/internal/github"
	"github.com/roamjs/roamjs-scripts/internal/lambdas"
	"github.com/roamjs/roamjs-scripts/internal/logging"
	"github.com/roamjs/roamjs-scripts/internal/publish"
	"github.com/roamjs/roamjs-scripts/internal/scaffold"
	"github.com/roamjs/roamjs-scripts/internal/setup"
)

// LabsEnv is injected into labs and test bundles, which otherwise only see
// the names the project asks for.
var LabsEnv = []string{"API_URL", "BLUEPRINT_NAMESPACE", "NODE_ENV", "ROAM_DEPOT", "ROAM_MARKETPLACE", "ROAMJS_EXTENSION_ID", "ROAMJS_VERSION"}

// BlueprintNamespace is the class prefix Roam's bundled Blueprint uses.
const BlueprintNamespace = "bp3"

// TestEnv is always compiled into test bundles.
var TestEnv = []string{"ROAM_PASSWORD", "ROAM_USERNAME"}

// Invocation is everything a command reads: the project directory, the
// parsed flags and an environment snapshot.
type Invocation struct {
	Dir     string
	Options args.Options
	Env     setup.Environment
	Project setup.Project
	// Out receives progress lines and reports meant for the user.
	Out    io.Writer
	Color  bool
	Now    func() time.Time
	Logger *slog.Logger
}

// Load snapshots the environment and roamjs.yaml of dir and parses tokens.
func Load(dir string, tokens []string) (*Invocation, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	env, err := setup.LoadEnvironment(abs)
	if err != nil {
		return nil, err
	}
	project, err := setup.LoadProject(abs)
	if err != nil {
		return nil, err
	}
	return &Invocation{Dir: abs, Options: args.Parse(tokens), Env: env, Project: project}, nil
}

func (inv *Invocation) logger() *slog.Logger {
	return logging.Ensure(inv.Logger)
}

func (inv *Invocation) now() time.Time {
	if inv.Now != nil {
		return inv.Now()
	}
	return time.Now()
}

func (inv *Invocation) name() string {
	return setup.PackageName(inv.Dir)
}

// targetEnvironment sets the depot flags and the API URL the bundle talks to.
func targetEnvironment(env setup.Environment, depot bool) setup.Environment {
	if !depot {
		return env.With("ROAM_MARKETPLACE", "").With("ROAM_DEPOT", "").
			With("API_URL", env.GetEnv("API_URL", setup.DefaultDevAPIURL))
	}
	return env.With("ROAM_MARKETPLACE", "true").With("ROAM_DEPOT", "true").
		With("API_URL", env.GetEnv("API_URL", setup.DefaultDepotAPIURL))
}

func (inv *Invocation) bundleOptions(env setup.Environment, depot bool, allow []string) bundle.Options {
	return bundle.Options{
		Dir:       inv.Dir,
		Name:      inv.name(),
		Depot:     depot,
		Env:       env,
		EnvAllow:  allow,
		Externals: inv.Project.Externals,
		MaxSize:   inv.Project.MaxSize,
		Analyze:   inv.Options.Bool("analyze"),
		Color:     inv.Color,
	}
}

// labsEnvironment points Blueprint at Roam's class namespace unless the
// caller overrides it.
func labsEnvironment(env setup.Environment) setup.Environment {
	return env.With("BLUEPRINT_NAMESPACE", env.GetEnv("BLUEPRINT_NAMESPACE", BlueprintNamespace))
}

func labsAllow(project setup.Project, extra ...[]string) []string {
	allow := append([]string(nil), LabsEnv...)
	allow = append(allow, project.Env...)
	for _, names := range extra {
		allow = append(allow, names...)
	}
	return allow
}

// Build stamps a fresh version into .env and runs one optimized build.
func Build(ctx context.Context, inv *Invocation) error {
	logger := inv.logger().With("component", "config.simple", "command", "build")

	version := setup.ToVersion(inv.now())
	if err := setup.StampVersion(inv.Dir, version); err != nil {
		return err
	}
	depot := inv.Options.Depot()
	env := inv.Env.With("ROAMJS_VERSION", version)
	env = env.With("ROAMJS_EXTENSION_ID", env.GetEnv("ROAMJS_EXTENSION_ID", inv.name()))
	if depot {
		env = env.With("ROAM_MARKETPLACE", "true").With("ROAM_DEPOT", "true").With("API_URL", setup.DefaultDepotAPIURL)
	} else {
		env = env.With("ROAM_MARKETPLACE", "").With("ROAM_DEPOT", "")
	}

	cfg, err := bundle.Assemble(inv.bundleOptions(env, depot, nil))
	if err != nil {
		return err
	}
	logger.Debug("assembled build", "version", version, "depot", depot, "out_dir", cfg.OutDir)
	runner := &bundle.Runner{Logger: logger, Report: inv.Out}
	return runner.Build(ctx, cfg)
}

// Dev serves a watched development build until ctx is cancelled.
func Dev(ctx context.Context, inv *Invocation) error {
	logger := inv.logger().With("component", "config.simple", "command", "dev")

	labs := inv.Options.Bool("labs")
	depot := inv.Options.Depot() || labs
	env := inv.Env.
		With("NODE_ENV", inv.Env.GetEnv("NODE_ENV", "development")).
		With("ROAMJS_VERSION", inv.Env.GetEnv("ROAMJS_VERSION", "development")).
		With("ROAMJS_EXTENSION_ID", inv.Env.GetEnv("ROAMJS_EXTENSION_ID", inv.name()))
	env = targetEnvironment(env, depot)

	var allow []string
	if labs {
		env = labsEnvironment(env)
		allow = labsAllow(inv.Project)
	}
	cfg, err := bundle.Assemble(inv.bundleOptions(env, depot, allow))
	if err != nil {
		return err
	}
	so := bundle.ServeOptions{
		Host: inv.Options.String("host", ""),
		Port: inv.Options.Int("port", 0),
	}
	runner := &bundle.Runner{Logger: logger, Report: inv.Out}
	return runner.Serve(ctx, cfg, so)
}

// Lambdas packages lambdas/ and deploys changed functions, or with --build
// only writes the zips to out/.
func Lambdas(ctx context.Context, inv *Invocation) ([]lambdas.Outcome, error) {
	logger := inv.logger().With("component", "config.simple", "command", "lambdas")

	prefix := inv.Project.Lambdas.Prefix
	if prefix == "" {
		prefix = lambdas.DefaultPrefix
	}
	packager := &lambdas.Packager{
		Dir:       inv.Dir,
		Extension: inv.name(),
		Prefix:    prefix,
		SourceDir: inv.Project.Lambdas.Dir,
		Logger:    logger,
	}

	if inv.Options.Bool("build") {
		packager.Store = &artifacts.LocalStore{BaseDir: filepath.Join(inv.Dir, lambdas.OutDir)}
	} else {
		region := inv.Project.Lambdas.Region
		if region == "" {
			region = inv.Env.GetEnv("AWS_REGION", publish.Region)
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		packager.Client = lambda.NewFromConfig(cfg)
	}

	outcomes, err := packager.Run(ctx)
	if err != nil {
		return outcomes, err
	}
	for _, outcome := range outcomes {
		logger.Debug("lambda outcome", "function", outcome.Function, "action", outcome.Action, "sha256", outcome.Sha256)
	}
	return outcomes, nil
}

func (inv *Invocation) githubToken() string {
	return inv.Env.GetEnv("GITHUB_TOKEN", inv.Env.ReleaseToken())
}

func (inv *Invocation) githubClient() (*github.Client, error) {
	client := github.NewClient(inv.githubToken())
	if base := inv.Env.Get("GITHUB_API_URL"); base != "" {
		if err := client.SetBaseURL(base); err != nil {
			return nil, fmt.Errorf("GITHUB_API_URL: %w", err)
		}
	}
	return client, nil
}

// Publish uploads the built files and runs the release and depot steps.
func Publish(ctx context.Context, inv *Invocation) (*publish.Report, error) {
	logger := inv.logger().With("component", "config.simple", "command", "publish")
	opts := inv.Options

	req := publish.Request{
		Dir:       inv.Dir,
		Source:    opts.String("source", ""),
		Path:      opts.String("path", inv.name()),
		Depot:     opts.Depot(),
		Labs:      opts.Bool("labs") || inv.Env.Get("LABS") != "",
		Branch:    opts.String("branch", ""),
		Proxy:     opts.String("proxy", ""),
		Version:   inv.Env.Version(),
		Token:     opts.String("token", inv.Env.DeveloperToken()),
		Email:     opts.String("email", inv.Env.Email()),
		Owner:     opts.String("user", inv.Env.Owner()),
		CommitSHA: inv.Env.CommitSHA(),
	}

	pipeline := &publish.Pipeline{
		Credentials: &publish.TokenExchanger{Endpoint: inv.Env.Get("ROAMJS_PUBLISH_URL")},
		Clients:     publish.AWSClients,
		Bucket:      publish.DefaultBucket,
		Now:         inv.Now,
		Logger:      logger,
	}
	if token := inv.githubToken(); token != "" {
		client, err := inv.githubClient()
		if err != nil {
			return nil, err
		}
		pipeline.Releases = client
		pipeline.Marketplace = &publish.Marketplace{GitHub: client, Token: token, Logger: logger}
	}

	report, err := pipeline.Run(ctx, req)
	if err != nil {
		return report, err
	}
	if inv.Out != nil {
		for _, step := range report.Steps {
			line := fmt.Sprintf("%s: %s", step.Step, step.Status)
			if step.Message != "" {
				line += " (" + step.Message + ")"
			}
			fmt.Fprintln(inv.Out, line)
		}
	}
	return report, nil
}

// Init scaffolds a new extension project next to Dir.
func Init(ctx context.Context, inv *Invocation) ([]scaffold.Result, error) {
	logger := inv.logger().With("component", "config.simple", "command", "init")
	opts := inv.Options

	client, err := inv.githubClient()
	if err != nil {
		return nil, err
	}
	req := scaffold.Request{
		Dir:                inv.Dir,
		Name:               opts.String("name", ""),
		Description:        opts.String("description", ""),
		User:               opts.String("user", inv.Env.Owner()),
		Repo:               opts.String("repo", ""),
		Email:              opts.String("email", inv.Env.Email()),
		Author:             gitUserName(ctx, inv.Dir),
		Backend:            opts.Bool("backend"),
		GitHubToken:        inv.Env.GitHubToken(),
		DeveloperToken:     inv.Env.DeveloperToken(),
		AWSAccessKeyID:     inv.Env.Get("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: inv.Env.Get("AWS_SECRET_ACCESS_KEY"),
	}
	scaffolder := &scaffold.Scaffolder{
		GitHub: client,
		Out:    inv.Out,
		Color:  inv.Color,
		Now:    inv.Now,
		Logger: logger,
	}
	return scaffolder.Init(ctx, req)
}

func gitUserName(ctx context.Context, dir string) string {
	out, err := (&git.Runner{Dir: dir}).Run(ctx, "config", "user.name")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// Test compiles a depot bundle and runs the end-to-end suite against it.
func Test(ctx context.Context, inv *Invocation) (int, error) {
	logger := inv.logger().With("component", "config.simple", "command", "test")
	opts := inv.Options

	names := opts.Strings("env")
	env := labsEnvironment(targetEnvironment(inv.Env, true))
	env = env.With("ROAMJS_EXTENSION_ID", env.GetEnv("ROAMJS_EXTENSION_ID", inv.name()))
	tester := &e2e.Tester{Logger: logger}
	return tester.Run(ctx, e2e.Request{
		Bundle:  inv.bundleOptions(env, true, labsAllow(inv.Project, TestEnv, names)),
		Runner:  opts.String("runner", e2e.RunnerPlaywright),
		EnvVars: names,
		Forward: opts.Strings("forward"),
	})
}
