package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
)

// identityAPI is the subset of the Cognito Identity client used here.
type identityAPI interface {
	GetId(ctx context.Context, in *cognitoidentity.GetIdInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error)
	GetCredentialsForIdentity(ctx context.Context, in *cognitoidentity.GetCredentialsForIdentityInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error)
}

// CognitoProvider implements aws.CredentialsProvider for unauthenticated
// identities of a Cognito identity pool.
type CognitoProvider struct {
	client         identityAPI
	identityPoolID string

	mu         sync.Mutex
	identityID string
}

// NewCognitoProvider creates a provider that exchanges the pool id for
// temporary credentials.
func NewCognitoProvider(cfg aws.Config, poolID string) *CognitoProvider {
	return &CognitoProvider{
		client:         cognitoidentity.NewFromConfig(cfg),
		identityPoolID: poolID,
	}
}

// Retrieve returns temporary credentials for the pool's identity. The
// identity id is fetched once and reused.
func (p *CognitoProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	id, err := p.identity(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}

	out, err := p.client.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: aws.String(id),
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("get credentials for identity: %w", err)
	}
	if out.Credentials == nil {
		return aws.Credentials{}, errors.New("empty credentials from cognito")
	}

	creds := aws.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Source:          "CognitoIdentity",
	}
	if out.Credentials.Expiration != nil {
		creds.CanExpire = true
		creds.Expires = *out.Credentials.Expiration
	}
	return creds, nil
}

func (p *CognitoProvider) identity(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.identityID != "" {
		return p.identityID, nil
	}
	out, err := p.client.GetId(ctx, &cognitoidentity.GetIdInput{
		IdentityPoolId: aws.String(p.identityPoolID),
	})
	if err != nil {
		return "", fmt.Errorf("get cognito identity id: %w", err)
	}
	if aws.ToString(out.IdentityId) == "" {
		return "", errors.New("empty cognito identity id")
	}
	p.identityID = aws.ToString(out.IdentityId)
	return p.identityID, nil
}
