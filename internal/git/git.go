// Package git runs the git CLI for repository bootstrapping and the
// marketplace pull request flow.
package git

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/roamjs/roamjs-scripts/internal/logging"
)

// Runner executes git in Dir.
type Runner struct {
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// Secrets are masked in logs and errors, for tokens embedded in remotes.
	Secrets []string
	Logger  *slog.Logger
	// Binary overrides the git executable.
	Binary string
}

// CommandError reports a failed git invocation with its combined output.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Run executes git with args and returns its trimmed combined output.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	binary := r.Binary
	if binary == "" {
		binary = "git"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logging.Ensure(r.Logger).Debug("git", "args", r.mask(strings.Join(args, " ")), "dir", r.Dir)
	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err != nil {
		masked := make([]string, len(args))
		for i, arg := range args {
			masked[i] = r.mask(arg)
		}
		return r.mask(output), &CommandError{Args: masked, Output: r.mask(output), Err: err}
	}
	return output, nil
}

// Commander runs one git subcommand.
type Commander interface {
	Run(ctx context.Context, args ...string) (string, error)
}

var _ Commander = (*Runner)(nil)

// RunAll executes each command in order, stopping at the first failure.
func RunAll(ctx context.Context, c Commander, commands ...[]string) error {
	for _, args := range commands {
		if _, err := c.Run(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) mask(s string) string {
	for _, secret := range r.Secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "***")
		}
	}
	return s
}

// AuthenticatedURL renders an https remote for owner/repo carrying token.
func AuthenticatedURL(owner, token, repo string) string {
	if token == "" {
		return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
	}
	return fmt.Sprintf("https://%s:%s@github.com/%s/%s.git", owner, token, owner, repo)
}
