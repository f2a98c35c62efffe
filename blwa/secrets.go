package blwa

import (
	"context"
	"time"

	"github.com/advdv/broute"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-secretsmanager-caching-go/v2/secretcache"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

// SecretReader abstracts secret retrieval for testability and flexibility.
type SecretReader interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
}

// AWSSecretReader implements SecretReader using AWS Secrets Manager caching client.
type AWSSecretReader struct {
	cache *secretcache.Cache
}

// NewAWSSecretReader creates a new AWSSecretReader using the provided AWS config.
func NewAWSSecretReader(cfg aws.Config) (*AWSSecretReader, error) {
	client := secretsmanager.NewFromConfig(cfg)
	cache, err := secretcache.New(
		func(c *secretcache.Cache) {
			c.Client = client
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create secret cache")
	}
	return &AWSSecretReader{cache: cache}, nil
}

// GetSecretString retrieves a secret value from AWS Secrets Manager with caching.
func (r *AWSSecretReader) GetSecretString(ctx context.Context, secretID string) (string, error) {
	secret, err := r.cache.GetSecretStringWithContext(ctx, secretID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get secret %q", secretID)
	}
	return secret, nil
}

// ParameterReader reads SSM parameters.
type ParameterReader interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// SSMAPI is the part of the SSM client used by [AWSParameterReader].
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// AWSParameterReader reads parameters from SSM Parameter Store, decrypting SecureString values.
type AWSParameterReader struct {
	client SSMAPI
}

// NewAWSParameterReader creates a reader that uses client.
func NewAWSParameterReader(client SSMAPI) *AWSParameterReader {
	return &AWSParameterReader{client: client}
}

// GetParameter returns the value of the named parameter.
func (r *AWSParameterReader) GetParameter(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get parameter %q", name)
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.Errorf("parameter %q has no value", name)
	}

	return *out.Parameter.Value, nil
}

// secretFromReader retrieves a secret value, optionally extracting a JSON path.
// If jsonPath is provided, the secret is parsed as JSON and the path is extracted.
// If jsonPath is empty, the raw secret string is returned.
func secretFromReader(ctx context.Context, reader SecretReader, secretID string, jsonPath ...string) (string, error) {
	if len(jsonPath) > 1 {
		return "", errors.New("blwa: Secret accepts at most one jsonPath argument")
	}

	secret, err := reader.GetSecretString(ctx, secretID)
	if err != nil {
		return "", err
	}

	if len(jsonPath) == 0 || jsonPath[0] == "" {
		return secret, nil
	}

	path := jsonPath[0]
	result := gjson.Get(secret, path)
	if !result.Exists() {
		return "", errors.Errorf("secret path %q not found in secret %q", path, secretID)
	}

	return result.String(), nil
}

const errorSecretTimeout = 10 * time.Second

// errorSecret resolves the error detail secret from, in order: BW_ERROR_SECRET, the Secrets Manager secret
// BW_ERROR_SECRET_ID (at BW_ERROR_SECRET_PATH, if set) and the SSM parameter BW_ERROR_SECRET_PARAMETER. An empty
// secret disables encryption.
func errorSecret(ctx context.Context, env BaseEnvironment, secrets SecretReader, params ParameterReader) (string, error) {
	switch {
	case env.ErrorSecret != "":
		return env.ErrorSecret, nil
	case env.ErrorSecretID != "":
		return secretFromReader(ctx, secrets, env.ErrorSecretID, env.ErrorSecretPath)
	case env.ErrorSecretParameter != "":
		return params.GetParameter(ctx, env.ErrorSecretParameter)
	default:
		return "", nil
	}
}

// NewErrorFormatter creates the formatter that renders errors no exception handler resolved, encrypting their detail
// with the configured error secret.
func NewErrorFormatter(env Environment, secrets SecretReader, params ParameterReader) (*broute.ErrorFormatter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), errorSecretTimeout)
	defer cancel()

	secret, err := errorSecret(ctx, env.base(), secrets, params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve error secret")
	}

	return broute.NewErrorFormatter(secret)
}
