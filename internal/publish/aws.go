package publish

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AWSClients is the production ClientFactory: S3 and CloudFront clients
// signed with the issued session credentials.
func AWSClients(ctx context.Context, creds Credentials) (ObjectPutter, CDNClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken,
		)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), cloudfront.NewFromConfig(cfg), nil
}
