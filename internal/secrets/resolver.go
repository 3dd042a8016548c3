// Package secrets resolves named credentials from AWS Secrets Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrSecretInaccessible indicates a secret could not be fetched. The wrapped
// error always names the secret.
var ErrSecretInaccessible = errors.New("secret inaccessible")

// Resolver fetches the latest value of a named secret. Implementations must
// not cache: every call observes the current value or fails loudly.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Manager resolves secrets from AWS Secrets Manager.
type Manager struct {
	client *secretsmanager.Client
}

// NewManager creates a resolver backed by AWS Secrets Manager using the
// default credential chain for the given region.
func NewManager(ctx context.Context, region string) (*Manager, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Manager{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// Resolve fetches the current value of the named secret. A missing or denied
// secret is reported as ErrSecretInaccessible; an empty value is treated the
// same way rather than returned as a placeholder.
func (m *Manager) Resolve(ctx context.Context, name string) (string, error) {
	out, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSecretInaccessible, name, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("%w: %s: empty value", ErrSecretInaccessible, name)
	}
	return *out.SecretString, nil
}
