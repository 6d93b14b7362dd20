// Package auth selects the AWS credential source.
package auth

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Options selects the credential source. Static keys win over an identity
// pool; with neither, the SDK default chain is used.
type Options struct {
	Region string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	IdentityPoolID string
}

// LoadConfig returns an aws.Config for opts.Region with cached credentials.
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}

	var provider aws.CredentialsProvider
	switch {
	case opts.AccessKeyID != "":
		provider = credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)
	case opts.IdentityPoolID != "":
		provider = NewCognitoProvider(cfg, opts.IdentityPoolID)
	default:
		return cfg, nil
	}

	cfg.Credentials = aws.NewCredentialsCache(provider)
	return cfg, nil
}
