package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roamjs/roamjs-scripts/internal/git"
	"github.com/roamjs/roamjs-scripts/internal/github"
	"github.com/roamjs/roamjs-scripts/internal/logging"
	"github.com/roamjs/roamjs-scripts/internal/setup"
)

const depotUpstream = "https://github.com/" + github.DepotOwner + "/" + github.DepotRepo

// DepotClient is the GitHub surface the marketplace flow needs.
type DepotClient interface {
	AuthenticatedUser(ctx context.Context) (github.User, error)
	FindPullRequest(ctx context.Context, owner, repo, head string) (string, error)
	CreatePullRequest(ctx context.Context, owner, repo, head, base, title string) (string, error)
}

// GitRunner runs git subcommands in a fixed directory.
type GitRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// Marketplace opens or refreshes the Roam Depot pull request listing an
// extension, working from the owner's fork of roam-depot.
type Marketplace struct {
	GitHub DepotClient
	// Git returns a runner bound to dir.
	Git   func(dir string) GitRunner
	Token string
	// WorkDir hosts the temporary clone; defaults to os.TempDir.
	WorkDir string
	Logger  *slog.Logger
}

// MarketplaceRequest identifies the listing to update.
type MarketplaceRequest struct {
	Dir       string
	Owner     string
	Repo      string
	Branch    string
	Proxy     string
	TagName   string
	CommitSHA string
}

// DepotManifest is a listing under extensions/<proxy>/ in roam-depot.
type DepotManifest struct {
	Name             string   `json:"name"`
	ShortDescription string   `json:"short_description"`
	Author           string   `json:"author"`
	Tags             []string `json:"tags"`
	SourceURL        string   `json:"source_url"`
	SourceRepo       string   `json:"source_repo"`
	SourceCommit     string   `json:"source_commit"`
	StripeAccount    string   `json:"stripe_account,omitempty"`
}

var (
	sourceCommitPattern = regexp.MustCompile(`"source_commit": "[a-f0-9]+",`)
	roamPrefixPattern   = regexp.MustCompile(`^roam(js)?-`)
)

// ListingSlug strips a leading roam- or roamjs- from repo.
func ListingSlug(repo string) string {
	return roamPrefixPattern.ReplaceAllString(repo, "")
}

// ListingTitle title-cases the dash separated slug: "query-builder"
// becomes "Query Builder".
func ListingTitle(repo string) string {
	words := strings.Split(ListingSlug(repo), "-")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// ManifestPath is the listing file inside a roam-depot checkout.
func ManifestPath(proxy, repo string) string {
	return filepath.Join("extensions", proxy, ListingSlug(repo)+".json")
}

// UpdateSourceCommit rewrites the first source_commit entry to sha.
func UpdateSourceCommit(manifest, sha string) (string, bool) {
	loc := sourceCommitPattern.FindStringIndex(manifest)
	if loc == nil {
		return manifest, false
	}
	return manifest[:loc[0]] + fmt.Sprintf(`"source_commit": %q,`, sha) + manifest[loc[1]:], true
}

// EncodeManifest renders m with four space indentation and a trailing
// newline.
func EncodeManifest(m DepotManifest) ([]byte, error) {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Marketplace) logger() *slog.Logger {
	return logging.Ensure(m.Logger)
}

func (m *Marketplace) git(dir string) GitRunner {
	if m.Git != nil {
		return m.Git(dir)
	}
	return &git.Runner{Dir: dir, Secrets: []string{m.Token}, Logger: m.Logger}
}

// Publish syncs the owner's fork with upstream, writes the listing and
// pushes it. It returns the pull request URL.
func (m *Marketplace) Publish(ctx context.Context, req MarketplaceRequest) (string, error) {
	if req.Owner == "" {
		return "", setup.Userf("GITHUB_REPOSITORY_OWNER is required to publish to Roam Depot")
	}
	branch := req.Branch
	if branch == "" {
		branch = req.Repo
	}
	proxy := req.Proxy
	if proxy == "" {
		proxy = req.Owner
	}
	head := req.Owner + ":" + branch

	m.logger().Info("Attempting to publish to Roam Depot...")
	pr, err := m.GitHub.FindPullRequest(ctx, github.DepotOwner, github.DepotRepo, head)
	if err != nil {
		return "", err
	}

	workDir, err := os.MkdirTemp(m.WorkDir, "roam-depot-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	if _, err := m.git(workDir).Run(ctx, "clone", git.AuthenticatedURL(req.Owner, m.Token, github.DepotRepo), github.DepotRepo); err != nil {
		return "", err
	}
	checkout := filepath.Join(workDir, github.DepotRepo)
	repo := m.git(checkout)

	author, err := m.GitHub.AuthenticatedUser(ctx)
	if err != nil {
		return "", err
	}
	if err := git.RunAll(ctx, repo,
		[]string{"config", "user.email", author.Email},
		[]string{"config", "user.name", author.Name},
		[]string{"remote", "add", "roam", depotUpstream},
		[]string{"pull", "roam", "main", "--rebase"},
		[]string{"push", "origin", "main", "-f"},
	); err != nil {
		return "", err
	}

	manifestPath := ManifestPath(proxy, req.Repo)
	manifestFile := filepath.Join(checkout, manifestPath)

	if pr != "" {
		m.logger().Info("Found existing PR")
		if err := git.RunAll(ctx, repo,
			[]string{"checkout", branch},
			[]string{"rebase", "origin/main"},
		); err != nil {
			return "", err
		}
		if err := rewriteSourceCommit(manifestFile, req.CommitSHA); err != nil {
			return "", err
		}
		if err := git.RunAll(ctx, repo,
			[]string{"add", "--all"},
			[]string{"commit", "-m", "Version " + req.TagName},
			[]string{"push", "origin", branch, "-f"},
		); err != nil {
			return "", err
		}
		m.logger().Info("Updated pull request: " + pr)
		return pr, nil
	}

	m.logger().Info("Creating new PR")
	if _, err := repo.Run(ctx, "checkout", "-b", branch); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(manifestFile), 0o755); err != nil {
		return "", err
	}
	title := ListingTitle(req.Repo)
	if _, statErr := os.Stat(manifestFile); statErr == nil {
		if err := rewriteSourceCommit(manifestFile, req.CommitSHA); err != nil {
			return "", err
		}
	} else if errors.Is(statErr, fs.ErrNotExist) {
		if err := m.writeManifest(manifestFile, title, author.Name, req); err != nil {
			return "", err
		}
	} else {
		return "", statErr
	}

	commitTitle := fmt.Sprintf("%s: Version %s", title, req.TagName)
	if err := git.RunAll(ctx, repo,
		[]string{"add", "--all"},
		[]string{"commit", "-m", commitTitle},
		[]string{"push", "origin", branch, "-f"},
	); err != nil {
		return "", err
	}
	url, err := m.GitHub.CreatePullRequest(ctx, github.DepotOwner, github.DepotRepo, head, "main", commitTitle)
	if err != nil {
		return "", err
	}
	m.logger().Info("Created pull request: " + url)
	return url, nil
}

func (m *Marketplace) writeManifest(path, title, author string, req MarketplaceRequest) error {
	pkg, err := setup.ReadPackageJSON(req.Dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	description := pkg.Description
	if description == "" {
		description = "Description missing from package json"
	}
	data, err := EncodeManifest(DepotManifest{
		Name:             title,
		ShortDescription: description,
		Author:           author,
		Tags:             pkg.Tags,
		SourceURL:        fmt.Sprintf("https://github.com/%s/%s", req.Owner, req.Repo),
		SourceRepo:       fmt.Sprintf("https://github.com/%s/%s.git", req.Owner, req.Repo),
		SourceCommit:     req.CommitSHA,
		StripeAccount:    pkg.Stripe,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func rewriteSourceCommit(path, sha string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	updated, ok := UpdateSourceCommit(string(data), sha)
	if !ok {
		return fmt.Errorf("%s has no source_commit entry", path)
	}
	return os.WriteFile(path, []byte(updated), 0o644)
}
