package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/google/uuid"

	"github.com/roamjs/roamjs-scripts/internal/logging"
)

const (
	InvalidationDone     = "Done!"
	InvalidationTimedOut = "Ran out of time waiting for cloudfront..."

	DefaultPollInterval = time.Second
	DefaultPollAttempts = 60

	statusCompleted = "Completed"
)

// CDNClient is the subset of the CloudFront API used for invalidations.
type CDNClient interface {
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
	GetInvalidation(ctx context.Context, params *cloudfront.GetInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetInvalidationOutput, error)
}

// Invalidator clears a destination from the CDN and waits, within a fixed
// number of polls, for the invalidation to complete.
type Invalidator struct {
	Client   CDNClient
	Interval time.Duration
	Attempts int
	// Wait pauses between polls; tests replace it to avoid sleeping.
	Wait   func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

func (i *Invalidator) logger() *slog.Logger {
	return logging.Ensure(i.Logger)
}

// Invalidate requests /<dest>/* on distributionID and polls its status. It
// returns InvalidationDone or, once every attempt is spent,
// InvalidationTimedOut. Only API failures are errors.
func (i *Invalidator) Invalidate(ctx context.Context, distributionID, dest string) (string, error) {
	created, err := i.Client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(uuid.NewString()),
			Paths: &types.Paths{
				Quantity: aws.Int32(1),
				Items:    []string{"/" + dest + "/*"},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create invalidation: %w", err)
	}
	if created.Invalidation == nil || created.Invalidation.Id == nil {
		return "", fmt.Errorf("create invalidation: no invalidation id returned")
	}
	id := aws.ToString(created.Invalidation.Id)
	i.logger().Info("invalidating cache", "distribution", distributionID, "id", id)
	return i.Poll(ctx, distributionID, id)
}

// Poll checks the invalidation status up to Attempts times, Interval apart.
func (i *Invalidator) Poll(ctx context.Context, distributionID, id string) (string, error) {
	attempts := i.Attempts
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	interval := i.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	wait := i.Wait
	if wait == nil {
		wait = sleep
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := i.Client.GetInvalidation(ctx, &cloudfront.GetInvalidationInput{
			DistributionId: aws.String(distributionID),
			Id:             aws.String(id),
		})
		if err != nil {
			return "", fmt.Errorf("get invalidation %s: %w", id, err)
		}
		if out.Invalidation != nil && aws.ToString(out.Invalidation.Status) == statusCompleted {
			return InvalidationDone, nil
		}
		if attempt == attempts {
			break
		}
		if err := wait(ctx, interval); err != nil {
			return "", err
		}
	}
	return InvalidationTimedOut, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
