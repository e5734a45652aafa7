package publish

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/roamjs/roamjs-scripts/internal/artifacts"
	"github.com/roamjs/roamjs-scripts/internal/logging"
	"github.com/roamjs/roamjs-scripts/internal/setup"
)

const (
	// MaxFiles bounds a publish so a misconfigured source cannot ship a
	// whole tree.
	MaxFiles = 100

	DefaultSource = "build"

	StepUpload      = "upload"
	StepArchive     = "archive"
	StepInvalidate  = "invalidate"
	StepRelease     = "release"
	StepMarketplace = "marketplace"
)

// Request describes one publish.
type Request struct {
	Dir    string
	Source string
	// Path is the destination prefix, usually the extension name.
	Path      string
	Depot     bool
	Labs      bool
	Branch    string
	Proxy     string
	Version   string
	Token     string
	Email     string
	Owner     string
	CommitSHA string
}

// ClientFactory builds storage and CDN clients from issued credentials.
type ClientFactory func(ctx context.Context, creds Credentials) (ObjectPutter, CDNClient, error)

// Pipeline runs publishes. Releases and Marketplace are optional; a nil
// value skips the step.
type Pipeline struct {
	Credentials CredentialSource
	Clients     ClientFactory
	Releases    ReleaseClient
	Marketplace *Marketplace

	Bucket       string
	PollInterval time.Duration
	PollAttempts int
	PollWait     func(ctx context.Context, d time.Duration) error

	Now    func() time.Time
	Logger *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	return logging.Ensure(p.Logger)
}

func (p *Pipeline) version(req Request) string {
	if req.Version != "" {
		return req.Version
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return setup.ToVersion(now())
}

// Run publishes req. Validation, credential and upload failures are
// returned; CDN timeouts, release and marketplace failures are soft and only
// recorded in the report.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	dir, err := filepath.Abs(req.Dir)
	if err != nil {
		return nil, err
	}
	req.Dir = dir
	repo := filepath.Base(dir)
	report := &Report{Version: p.version(req)}

	if req.Labs {
		p.marketplace(ctx, req, repo, report)
		return report, nil
	}

	sourceDir := dir
	if !req.Depot {
		source := req.Source
		if source == "" {
			source = DefaultSource
		}
		sourceDir = filepath.Join(dir, source)
	}
	p.logger().Info("Source Path: " + sourceDir)

	var files []artifacts.Artifact
	if req.Depot {
		files, err = artifacts.Whitelist(sourceDir, artifacts.DepotFiles)
	} else {
		files, err = artifacts.Walk(sourceDir)
	}
	if err != nil {
		return nil, fmt.Errorf("list files in %s: %w", sourceDir, err)
	}
	if len(files) > MaxFiles {
		return nil, setup.Userf("Attempting to upload too many files from %s. Max: %d, Actual: %d", sourceDir, MaxFiles, len(files))
	}
	if strings.HasSuffix(req.Path, "/") {
		p.logger().Warn("No need to put an ending slash on the `path` input")
	}
	dest := strings.TrimSuffix(req.Path, "/")
	if strings.Trim(dest, "/") == "" {
		return nil, setup.Userf("`path` argument is required.")
	}
	report.Destination = dest
	report.Files = len(files)
	report.Kinds = artifacts.CountKinds(files)
	if report.Kinds[artifacts.BundleArtifact] == 0 {
		p.logger().Warn("No javascript bundle found in " + sourceDir + ", did the build run?")
	}
	if req.Token == "" {
		return nil, setup.Userf("ROAMJS_DEVELOPER_TOKEN is required to publish")
	}

	p.logger().Info(fmt.Sprintf("Preparing to publish %d files to RoamJS destination %s", len(files), dest))
	grant, err := p.Credentials.Exchange(ctx, dest, Authorization(req.Email, req.Token))
	if err != nil {
		return nil, err
	}
	storage, cdn, err := p.Clients(ctx, grant.Credentials)
	if err != nil {
		return nil, err
	}

	uploader := &Uploader{Client: storage, Bucket: p.Bucket, Logger: p.Logger}
	keys, err := uploader.Upload(ctx, dest, report.Version, files)
	if err != nil {
		return nil, err
	}
	report.Keys = keys
	report.add(StepUpload, StepDone, fmt.Sprintf("%d objects", len(keys)), nil)

	if req.Depot {
		key, err := uploader.UploadArchive(ctx, dest, files)
		if err != nil {
			return nil, err
		}
		report.Keys = append(report.Keys, key)
		report.add(StepArchive, StepDone, key, nil)
	}

	p.invalidate(ctx, cdn, grant.DistributionID, dest, report)
	p.release(ctx, req, repo, report)
	return report, nil
}

func (p *Pipeline) invalidate(ctx context.Context, cdn CDNClient, distributionID, dest string, report *Report) {
	if distributionID == "" || cdn == nil {
		report.add(StepInvalidate, StepSkipped, "no distribution", nil)
		return
	}
	invalidator := &Invalidator{
		Client:   cdn,
		Interval: p.PollInterval,
		Attempts: p.PollAttempts,
		Wait:     p.PollWait,
		Logger:   p.Logger,
	}
	status, err := invalidator.Invalidate(ctx, distributionID, dest)
	switch {
	case err != nil:
		p.logger().Warn("cache invalidation failed", "error", err)
		report.add(StepInvalidate, StepSoftFailed, "", err)
	case status == InvalidationTimedOut:
		p.logger().Warn(status)
		report.add(StepInvalidate, StepSoftFailed, status, nil)
	default:
		p.logger().Info(status)
		report.add(StepInvalidate, StepDone, status, nil)
	}
}

func (p *Pipeline) release(ctx context.Context, req Request, repo string, report *Report) {
	if p.Releases == nil {
		p.logger().Warn("No release token set so no Github release created")
		report.add(StepRelease, StepSkipped, "no token", nil)
		return
	}
	release, err := (&Releaser{Client: p.Releases}).Release(ctx, req.Owner, repo, req.CommitSHA, report.Version)
	if err != nil {
		p.logger().Error("github release failed", "error", err)
		report.add(StepRelease, StepSoftFailed, "", err)
		return
	}
	p.logger().Info("Successfully created github release for version " + release.TagName)
	report.add(StepRelease, StepDone, release.HTMLURL, nil)

	if req.Depot {
		p.marketplace(ctx, req, repo, report)
	}
}

func (p *Pipeline) marketplace(ctx context.Context, req Request, repo string, report *Report) {
	if p.Marketplace == nil {
		report.add(StepMarketplace, StepSkipped, "no token", nil)
		return
	}
	url, err := p.Marketplace.Publish(ctx, MarketplaceRequest{
		Dir:       req.Dir,
		Owner:     req.Owner,
		Repo:      repo,
		Branch:    req.Branch,
		Proxy:     req.Proxy,
		TagName:   report.Version,
		CommitSHA: req.CommitSHA,
	})
	if err != nil {
		p.logger().Error("roam depot publish failed", "error", err)
		report.add(StepMarketplace, StepSoftFailed, "", err)
		return
	}
	report.add(StepMarketplace, StepDone, url, nil)
}
