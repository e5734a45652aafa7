package github

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/crypto/nacl/box"
)

const (
	// DepotOwner and DepotRepo name the upstream marketplace repository.
	DepotOwner = "Roam-Research"
	DepotRepo  = "roam-depot"
)

// Client wraps the GitHub REST API calls the CLI needs.
type Client struct {
	gh *gh.Client
}

// NewClient authenticates with token; an empty token makes anonymous calls.
func NewClient(token string) *Client {
	client := gh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &Client{gh: client}
}

// SetBaseURL points the client at another API root, such as a GitHub
// Enterprise host or a test server.
func (c *Client) SetBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	c.gh.BaseURL = base
	return nil
}

// User is the authenticated account.
type User struct {
	Login string
	Name  string
	Email string
}

// AuthenticatedUser returns the token owner. A hidden email falls back to
// the account's noreply address.
func (c *Client) AuthenticatedUser(ctx context.Context) (User, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return User{}, fmt.Errorf("get authenticated user: %w", err)
	}
	out := User{Login: user.GetLogin(), Name: user.GetName(), Email: user.GetEmail()}
	if out.Name == "" {
		out.Name = out.Login
	}
	if out.Email == "" && out.Login != "" {
		out.Email = out.Login + "@users.noreply.github.com"
	}
	return out, nil
}

// RepoExists reports whether owner/repo is visible to the client.
func (c *Client) RepoExists(ctx context.Context, owner, repo string) (bool, error) {
	_, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("check repo %s/%s: %w", owner, repo, err)
}

// EnsureRepo creates repo under the authenticated user unless owner/repo
// already exists. It reports whether a repository was created.
func (c *Client) EnsureRepo(ctx context.Context, owner, repo string) (bool, error) {
	exists, err := c.RepoExists(ctx, owner, repo)
	if err != nil || exists {
		return false, err
	}
	if _, _, err := c.gh.Repositories.Create(ctx, "", &gh.Repository{Name: gh.String(repo)}); err != nil {
		return false, fmt.Errorf("create repo %s: %w", repo, err)
	}
	return true, nil
}

// AddSecret stores value as an Actions secret on owner/repo, sealed with
// the repository's public key.
func (c *Client) AddSecret(ctx context.Context, owner, repo, name, value string) error {
	key, _, err := c.gh.Actions.GetRepoPublicKey(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("get public key for %s/%s: %w", owner, repo, err)
	}
	sealed, err := SealSecret(key.GetKey(), value)
	if err != nil {
		return err
	}
	_, err = c.gh.Actions.CreateOrUpdateRepoSecret(ctx, owner, repo, &gh.EncryptedSecret{
		Name:           name,
		KeyID:          key.GetKeyID(),
		EncryptedValue: sealed,
	})
	if err != nil {
		return fmt.Errorf("put secret %s: %w", name, err)
	}
	return nil
}

// SealSecret encrypts value for a base64 curve25519 public key and returns
// the base64 sealed box.
func SealSecret(publicKey, value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("public key must be 32 bytes, got %d", len(raw))
	}
	var recipient [32]byte
	copy(recipient[:], raw)

	sealed, err := box.SealAnonymous(nil, []byte(value), &recipient, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("seal secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// CommitMessage returns the full message of owner/repo@sha.
func (c *Client) CommitMessage(ctx context.Context, owner, repo, sha string) (string, error) {
	commit, _, err := c.gh.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return "", fmt.Errorf("get commit %s: %w", sha, err)
	}
	return commit.GetCommit().GetMessage(), nil
}

// Release is a created GitHub release.
type Release struct {
	TagName string
	HTMLURL string
}

// CreateRelease tags owner/repo with tag, titling the release from message.
func (c *Client) CreateRelease(ctx context.Context, owner, repo, tag, message string) (Release, error) {
	name, body := ReleaseTitle(message)
	release, _, err := c.gh.Repositories.CreateRelease(ctx, owner, repo, &gh.RepositoryRelease{
		TagName: gh.String(tag),
		Name:    gh.String(name),
		Body:    gh.String(body),
	})
	if err != nil {
		return Release{}, fmt.Errorf("create release %s: %w", tag, err)
	}
	return Release{TagName: release.GetTagName(), HTMLURL: release.GetHTMLURL()}, nil
}

// ReleaseTitle splits a commit message longer than 50 characters into a
// 47 character title with an ellipsis and a body carrying the rest.
func ReleaseTitle(message string) (string, string) {
	runes := []rune(message)
	if len(runes) <= 50 {
		return message, ""
	}
	return string(runes[:47]) + "...", "..." + string(runes[47:])
}

// FindPullRequest returns the URL of the first open pull request on
// owner/repo whose head is head ("user:branch"), or "".
func (c *Client) FindPullRequest(ctx context.Context, owner, repo, head string) (string, error) {
	prs, _, err := c.gh.PullRequests.List(ctx, owner, repo, &gh.PullRequestListOptions{
		State: "open",
		Head:  head,
	})
	if err != nil {
		return "", fmt.Errorf("list pull requests: %w", err)
	}
	if len(prs) == 0 {
		return "", nil
	}
	return prs[0].GetHTMLURL(), nil
}

// CreatePullRequest opens head against base on owner/repo.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, head, base, title string) (string, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title: gh.String(title),
		Head:  gh.String(head),
		Base:  gh.String(base),
	})
	if err != nil {
		return "", fmt.Errorf("create pull request: %w", err)
	}
	return pr.GetHTMLURL(), nil
}

func isNotFound(err error) bool {
	var apiErr *gh.ErrorResponse
	return errors.As(err, &apiErr) && apiErr.Response != nil && apiErr.Response.StatusCode == http.StatusNotFound
}
