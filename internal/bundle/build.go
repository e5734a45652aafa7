package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/roamjs/roamjs-scripts/internal/logging"
)

// StatsFile is written next to the outputs by analyze builds.
const StatsFile = "stats.json"

var errNoOutput = errors.New("internal bundler failure: no stats produced")

// Runner executes assembled configurations.
type Runner struct {
	Logger *slog.Logger
	// Report receives the analyze summary; defaults to stdout.
	Report io.Writer
}

func (r *Runner) logger() *slog.Logger {
	return logging.Ensure(r.Logger)
}

// Build runs a single production build. Analyze builds skip minification,
// write the metafile to StatsFile and print a size breakdown.
func (r *Runner) Build(ctx context.Context, cfg *Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := cfg.Build
	minify := !cfg.Analyze
	opts.MinifyWhitespace = minify
	opts.MinifyIdentifiers = minify
	opts.MinifySyntax = minify
	opts.Define = withDefine(opts.Define, "process.env.NODE_ENV", `"production"`)

	started := time.Now()
	r.logger().Info("compiling", "outputs", cfg.Outputs, "dir", cfg.OutDir)
	result := api.Build(opts)

	for _, warning := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage, Color: cfg.Color}) {
		r.logger().Warn(warning)
	}
	if len(result.Errors) > 0 {
		return newBuildError(result.Errors, cfg.Color)
	}
	if result.Metafile == "" {
		return errNoOutput
	}

	meta, err := parseMetafile(result.Metafile)
	if err != nil {
		return err
	}

	if cfg.Analyze {
		if err := r.analyze(cfg, result.Metafile); err != nil {
			return err
		}
	}
	if err := meta.CheckSize(cfg.MaxSize); err != nil {
		if !cfg.Analyze {
			return err
		}
		r.logger().Warn(err.Error())
	}

	finished := time.Now()
	r.logger().Info("successfully compiled",
		"started", started.Format(time.TimeOnly),
		"finished", finished.Format(time.TimeOnly),
		"duration", finished.Sub(started).Round(time.Millisecond),
		"bytes", meta.TotalBytes(),
	)
	return nil
}

func (r *Runner) analyze(cfg *Config, metafile string) error {
	statsPath := filepath.Join(cfg.OutDir, StatsFile)
	if err := os.WriteFile(statsPath, []byte(metafile), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", StatsFile, err)
	}
	var report io.Writer = os.Stdout
	if r.Report != nil {
		report = r.Report
	}
	summary := api.AnalyzeMetafile(metafile, api.AnalyzeMetafileOptions{
		Color:   logging.IsTerminal(report),
		Verbose: true,
	})
	if _, err := fmt.Fprintln(report, summary); err != nil {
		return err
	}
	r.logger().Info("wrote bundle stats", "file", statsPath)
	return nil
}
