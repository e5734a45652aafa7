package lambdas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/roamjs/roamjs-scripts/internal/artifacts"
	"github.com/roamjs/roamjs-scripts/internal/logging"
	"github.com/roamjs/roamjs-scripts/internal/setup"
)

// FunctionClient is the subset of the Lambda API the packager calls.
type FunctionClient interface {
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
}

// Action records what happened to one function.
type Action string

const (
	ActionUploaded Action = "uploaded"
	ActionSkipped  Action = "skipped"
	ActionBuilt    Action = "built"
)

// Outcome is the per-function result of a run.
type Outcome struct {
	Function string
	Action   Action
	Sha256   string
	Version  string
}

// Packager turns lambdas/ sources into deployed functions.
type Packager struct {
	Dir       string
	Extension string
	Prefix    string
	// SourceDir overrides lambdas/ relative to Dir.
	SourceDir string
	Client    FunctionClient
	// Store, when set, receives the zips instead of Lambda.
	Store  artifacts.ArtifactStore
	Logger *slog.Logger
}

func (p *Packager) logger() *slog.Logger {
	return logging.Ensure(p.Logger)
}

// Run packages every discovered function and deploys or stores each one.
func (p *Packager) Run(ctx context.Context) ([]Outcome, error) {
	if p.Extension == "" {
		return nil, setup.Userf("extension name is required to deploy lambdas")
	}
	if p.Store == nil && p.Client == nil {
		return nil, errors.New("lambdas: no client or store configured")
	}

	sourceDir := p.SourceDir
	if sourceDir == "" {
		sourceDir = DefaultDir
	}
	functions, err := Discover(filepath.Join(p.Dir, sourceDir))
	if err != nil {
		return nil, err
	}
	if len(functions) == 0 {
		p.logger().Warn("no lambdas found", "dir", sourceDir)
		return nil, nil
	}

	outcomes := make([]Outcome, 0, len(functions))
	for _, fn := range functions {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		archive, err := p.Package(fn)
		if err != nil {
			return outcomes, err
		}
		outcome, err := p.deliver(ctx, fn, archive)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// Package bundles fn for Node and zips the result with a fixed timestamp,
// so unchanged sources always hash the same. The bundle is also kept under
// out/ for inspection.
func (p *Packager) Package(fn Function) ([]byte, error) {
	result := api.Build(api.BuildOptions{
		AbsWorkingDir: p.Dir,
		EntryPoints:   []string{fn.Entry},
		Outfile:       filepath.Join(p.Dir, OutDir, fn.Name+".js"),
		Bundle:        true,
		Write:         false,
		Platform:      api.PlatformNode,
		Format:        api.FormatCommonJS,
		Target:        api.ES2020,
		External:      []string{"aws-sdk", "@aws-sdk/*"},
		LogLevel:      api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		formatted := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return nil, fmt.Errorf("bundle %s: %s", fn.Name, strings.TrimSpace(strings.Join(formatted, "")))
	}

	var code []byte
	for _, file := range result.OutputFiles {
		if filepath.Ext(file.Path) == ".js" {
			code = file.Contents
			break
		}
	}
	if code == nil {
		return nil, fmt.Errorf("bundle %s: no output", fn.Name)
	}

	outPath := filepath.Join(p.Dir, OutDir, fn.Name+".js")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath, code, 0o644); err != nil {
		return nil, err
	}

	return artifacts.Zip([]artifacts.ZipEntry{{Name: fn.Name + ".js", Data: code}}, artifacts.FixedTime)
}

func (p *Packager) deliver(ctx context.Context, fn Function, archive []byte) (Outcome, error) {
	sha := artifacts.CodeSha256(archive)
	outcome := Outcome{Function: fn.Name, Sha256: sha}

	if p.Store != nil {
		stored, err := p.Store.StoreArtifact(fn.Name+".zip", archive)
		if err != nil {
			return outcome, err
		}
		p.logger().Info("built lambda", "function", fn.Name, "path", stored.Path)
		outcome.Action = ActionBuilt
		return outcome, nil
	}

	name := FunctionName(p.Prefix, p.Extension, fn.Name)
	current, err := p.Client.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)})
	if err != nil {
		return outcome, fmt.Errorf("get function %s: %w", name, err)
	}
	if current.Configuration != nil && aws.ToString(current.Configuration.CodeSha256) == sha {
		p.logger().Info(fmt.Sprintf("No need to upload %s, shas match.", fn.Name))
		outcome.Action = ActionSkipped
		return outcome, nil
	}

	updated, err := p.Client.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(name),
		ZipFile:      archive,
		Publish:      true,
	})
	if err != nil {
		return outcome, fmt.Errorf("update function %s: %w", name, err)
	}
	outcome.Action = ActionUploaded
	outcome.Version = aws.ToString(updated.Version)
	p.logger().Info("uploaded lambda", "function", name, "version", outcome.Version, "sha256", aws.ToString(updated.CodeSha256))
	return outcome, nil
}
