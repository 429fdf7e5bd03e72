/*
Package awsconf loads the shared AWS SDK configuration used by the SNS and SQS adapters.
*/
package awsconf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// DefaultRegion is used when none is configured.
const DefaultRegion = "us-east-1"

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Endpoint overrides the service endpoint (LocalStack, ElasticMQ).
	Endpoint string
}

// Load resolves an aws.Config. Static keys take precedence over the default
// credential chain when both parts are set.
func Load(ctx context.Context, c Config) (aws.Config, error) {
	region := c.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}

	return cfg, nil
}

// EndpointPtr returns the endpoint override as the SDK expects it, or nil.
func (c Config) EndpointPtr() *string {
	if c.Endpoint == "" {
		return nil
	}

	return aws.String(c.Endpoint)
}
