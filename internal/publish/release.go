package publish

import (
	"context"

	"github.com/roamjs/roamjs-scripts/internal/github"
)

// ReleaseClient creates GitHub releases from commit messages.
type ReleaseClient interface {
	CommitMessage(ctx context.Context, owner, repo, sha string) (string, error)
	CreateRelease(ctx context.Context, owner, repo, tag, message string) (github.Release, error)
}

// Releaser tags the published commit.
type Releaser struct {
	Client ReleaseClient
}

// Release creates tag on owner/repo titled from the message of sha.
func (r *Releaser) Release(ctx context.Context, owner, repo, sha, tag string) (github.Release, error) {
	message, err := r.Client.CommitMessage(ctx, owner, repo, sha)
	if err != nil {
		return github.Release{}, err
	}
	return r.Client.CreateRelease(ctx, owner, repo, tag, message)
}
