package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used here
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Secret keys understood by LoadSecrets
const (
	SecretAPIKey  = "DBT_API_KEY"
	SecretAccount = "DBT_ACCOUNT"
	SecretProject = "DBT_PROJECT"
	SecretBucket  = "BUCKET"
	SecretRegion  = "AWS_REGION"
	SecretDebug   = "DEBUG"
)

// LoadSecrets reads a JSON object secret and merges its known keys into
// the config. Keys that are absent or empty leave the config unchanged.
func (c *Config) LoadSecrets(ctx context.Context, api SecretsAPI, secretID string) error {
	out, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return fmt.Errorf("failed to get secret %s: %w", secretID, err)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		raw = out.SecretBinary
	default:
		return fmt.Errorf("secret %s has no value", secretID)
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("secret %s is not a JSON object: %w", secretID, err)
	}

	return c.applySecrets(values)
}

func (c *Config) applySecrets(values map[string]any) error {
	get := func(key string) string {
		switch v := values[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		default:
			return ""
		}
	}

	if v := get(SecretAPIKey); v != "" {
		c.Upstream.APIKey = v
		c.Metadata.APIKey = v
	}
	if v := get(SecretAccount); v != "" {
		c.Upstream.AccountID = v
	}
	if v := get(SecretProject); v != "" {
		c.Upstream.ProjectID = v
	}
	if v := get(SecretBucket); v != "" {
		c.Store.Bucket = v
	}
	if v := get(SecretRegion); v != "" {
		c.AWS.Region = v
	}
	if v := get(SecretDebug); v != "" {
		if err := setBool(&c.Invoker.Debug, v); err != nil {
			return fmt.Errorf("invalid %s secret: %w", SecretDebug, err)
		}
	}
	return nil
}
