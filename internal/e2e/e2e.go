// Package e2e compiles the extension for the depot and hands it to an
// end-to-end test runner.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/roamjs/roamjs-scripts/internal/bundle"
	"github.com/roamjs/roamjs-scripts/internal/logging"
	"github.com/roamjs/roamjs-scripts/internal/setup"
)

const (
	RunnerPlaywright = "playwright"
	RunnerCypress    = "cypress"

	// PlaywrightConfig is the shared configuration shipped with the npm package.
	PlaywrightConfig = "./node_modules/roamjs-scripts/labs/internal/playwright.config.js"
)

// ForwardedEnv is always passed to the delegate when set.
var ForwardedEnv = []string{"ROAM_USERNAME", "ROAM_PASSWORD", "ROAMJS_EXTENSION_ID", "NODE_ENV", "DEBUG"}

// systemEnv keeps npx itself runnable.
var systemEnv = []string{"PATH", "HOME", "USER", "TMPDIR", "SHELL", "LANG", "TERM", "CI", "SystemRoot"}

// Request describes one test run.
type Request struct {
	Bundle  bundle.Options
	Runner  string
	EnvVars []string
	Forward []string
}

// Compiler builds an assembled configuration.
type Compiler interface {
	Build(ctx context.Context, cfg *bundle.Config) error
}

// Spawner runs name in dir with env and returns its exit code.
type Spawner func(ctx context.Context, dir string, env []string, name string, args ...string) (int, error)

// Tester runs the compile-then-delegate flow.
type Tester struct {
	Compiler Compiler
	Spawn    Spawner
	Logger   *slog.Logger
}

func (t *Tester) logger() *slog.Logger {
	return logging.Ensure(t.Logger)
}

// Run returns the delegate's exit code. A non-zero code is also returned as
// a setup.ExitError so callers can propagate it.
func (t *Tester) Run(ctx context.Context, req Request) (int, error) {
	opts := req.Bundle
	opts.Depot = true
	opts.Env = TestEnvironment(opts.Env)

	cfg, err := bundle.Assemble(opts)
	if err != nil {
		return 1, err
	}
	compiler := t.Compiler
	if compiler == nil {
		compiler = &bundle.Runner{Logger: t.Logger}
	}
	if err := compiler.Build(ctx, cfg); err != nil {
		return 1, fmt.Errorf("compile: %w", err)
	}

	name, args := Command(req.Runner, req.Forward)
	env := DelegateEnv(opts.Env, req.EnvVars)
	t.logger().Info("running tests", "runner", name+" "+args[0], "forward", len(req.Forward))

	spawn := t.Spawn
	if spawn == nil {
		spawn = spawnCommand
	}
	code, err := spawn(ctx, opts.Dir, env, name, args...)
	if err != nil {
		return 1, fmt.Errorf("Failed to run tests: %w", err)
	}
	if code != 0 {
		return code, &setup.ExitError{Code: code}
	}
	return 0, nil
}

// TestEnvironment defaults NODE_ENV to test and DEBUG to PWDEBUG.
func TestEnvironment(env setup.Environment) setup.Environment {
	env = env.With("NODE_ENV", env.GetEnv("NODE_ENV", "test"))
	if debug := env.Debug(); debug != "" {
		env = env.With("DEBUG", debug)
	}
	return env
}

// Command builds the delegate invocation for runner.
func Command(runner string, forward []string) (string, []string) {
	var args []string
	if runner == RunnerCypress {
		args = []string{"cypress", "run"}
	} else {
		args = []string{"playwright", "test", "--config=" + PlaywrightConfig}
	}
	return "npx", append(args, forward...)
}

// DelegateEnv renders the allowlisted subset of env in os/exec form.
func DelegateEnv(env setup.Environment, extra []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, group := range [][]string{systemEnv, ForwardedEnv, extra} {
		for _, key := range group {
			if seen[key] {
				continue
			}
			seen[key] = true
			if value, ok := env.Lookup(key); ok {
				out = append(out, key+"="+value)
			}
		}
	}
	return out
}

func spawnCommand(ctx context.Context, dir string, env []string, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 1, err
	}
	return 0, nil
}
