package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Store.Bucket = "dbt-bucket"
	return cfg
}

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// =============================================================================
// Defaults and File Loading
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://cloud.getdbt.com/api/v2", cfg.Upstream.BaseURL)
	assert.Equal(t, "0", cfg.Upstream.EnvironmentID)
	assert.Equal(t, "https://metadata.cloud.getdbt.com/graphql", cfg.Metadata.URL)
	assert.Equal(t, "s3", cfg.Store.Backend)
	assert.Equal(t, "dbt_api/", cfg.Store.Prefix)
	assert.Equal(t, "runsync.db", cfg.Database.DSN)
	assert.Equal(t, "local", cfg.Invoker.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Invoker.Timeout)
	assert.Equal(t, 1, cfg.Orchestrator.Concurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Invoker.Debug)
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "runsync.toml")
	content := `
[upstream]
account_id = "1234"
project_id = "99"
timeout = "30s"

[store]
backend = "sqlite"
prefix = "archive/"

[database]
dsn = "/tmp/runsync.db"

[invoker]
backend = "lambda"
function = "dbt-worker"
timeout = "5m"

[driver]
max_steps_per_drain = 50

[orchestrator]
concurrency = 4

[schedule]
cron = "0 2 * * *"

[logging]
level = "debug"
format = "text"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "1234", cfg.Upstream.AccountID)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "archive/", cfg.Store.Prefix)
	assert.Equal(t, "lambda", cfg.Invoker.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Invoker.Timeout)
	assert.Equal(t, 50, cfg.Driver.MaxStepsPerDrain)
	assert.Equal(t, 4, cfg.Orchestrator.Concurrency)
	assert.Equal(t, "0 2 * * *", cfg.Schedule.Cron)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Untouched sections keep their defaults
	assert.Equal(t, "https://cloud.getdbt.com/api/v2", cfg.Upstream.BaseURL)
	assert.Equal(t, 3, cfg.Syncer.SnapshotKeyAttempts)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[store\nbackend ="), 0644))

	_, err := LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("RUNSYNC_ACCOUNT_ID=4321\nRUNSYNC_BUCKET=from-dotenv\n"), 0644))

	// The real environment wins over .env
	t.Setenv("RUNSYNC_BUCKET", "from-env")
	t.Cleanup(func() { os.Unsetenv("RUNSYNC_ACCOUNT_ID") })

	cfg, err := LoadConfig("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "4321", cfg.Upstream.AccountID)
	assert.Equal(t, "from-env", cfg.Store.Bucket)
}

func TestLoadConfig_MissingEnvFileIgnored(t *testing.T) {
	cfg, err := LoadConfig("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.Store.Backend)
}

// =============================================================================
// Environment Overrides
// =============================================================================

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"RUNSYNC_API_KEY":         "secret-token",
		"RUNSYNC_ACCOUNT_ID":      "1",
		"RUNSYNC_STORE_BACKEND":   "memory",
		"RUNSYNC_DATABASE_DSN":    "",
		"RUNSYNC_INVOKE_TIMEOUT":  "2m",
		"RUNSYNC_DEBUG":           "True",
		"RUNSYNC_CONCURRENCY":     "3",
		"RUNSYNC_LOG_FORMAT":      "text",
		"RUNSYNC_UNRELATED_THING": "x",
	}))
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.Upstream.APIKey)
	assert.Equal(t, "secret-token", cfg.Metadata.APIKey)
	assert.Equal(t, "1", cfg.Upstream.AccountID)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.False(t, cfg.Database.Enabled(), "empty value still overrides")
	assert.Equal(t, 2*time.Minute, cfg.Invoker.Timeout)
	assert.True(t, cfg.Invoker.Debug)
	assert.Equal(t, 3, cfg.Orchestrator.Concurrency)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	for name, value := range map[string]string{
		"RUNSYNC_DEBUG":          "maybe",
		"RUNSYNC_CONCURRENCY":    "many",
		"RUNSYNC_INVOKE_TIMEOUT": "soon",
	} {
		t.Run(name, func(t *testing.T) {
			err := DefaultConfig().ApplyEnv(envMap(map[string]string{name: value}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"memory backend needs no bucket", func(c *Config) { c.Store.Backend = "memory"; c.Store.Bucket = "" }, false},
		{"s3 without bucket", func(c *Config) { c.Store.Bucket = "" }, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "gcs" }, true},
		{"sqlite without database", func(c *Config) { c.Store.Backend = "sqlite"; c.Database.DSN = "" }, true},
		{"empty base url", func(c *Config) { c.Upstream.BaseURL = "" }, true},
		{"negative retries", func(c *Config) { c.Upstream.RetryMax = -1 }, true},
		{"empty metadata url", func(c *Config) { c.Metadata.URL = "" }, true},
		{"bad invoker backend", func(c *Config) { c.Invoker.Backend = "k8s" }, true},
		{"negative max steps", func(c *Config) { c.Driver.MaxStepsPerDrain = -1 }, true},
		{"zero concurrency", func(c *Config) { c.Orchestrator.Concurrency = 0 }, true},
		{"bad stats buffer", func(c *Config) { c.Stats.InboxBufferSize = 0 }, true},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "whenever" }, true},
		{"zero snapshot attempts", func(c *Config) { c.Syncer.SnapshotKeyAttempts = 0 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// =============================================================================
// Secrets
// =============================================================================

type fakeSecrets struct {
	out *secretsmanager.GetSecretValueOutput
	err error
	id  string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.id = aws.ToString(in.SecretId)
	return f.out, f.err
}

func TestLoadSecrets(t *testing.T) {
	api := &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{
			"DBT_API_KEY": "tok",
			"DBT_ACCOUNT": 1234,
			"DBT_PROJECT": "99",
			"BUCKET": "dbt-bucket",
			"AWS_REGION": "eu-west-1",
			"DEBUG": "False",
			"OTHER": "ignored"
		}`),
	}}

	cfg := DefaultConfig()
	cfg.Invoker.Debug = true
	require.NoError(t, cfg.LoadSecrets(context.Background(), api, "runsync/dbt"))

	assert.Equal(t, "runsync/dbt", api.id)
	assert.Equal(t, "tok", cfg.Upstream.APIKey)
	assert.Equal(t, "tok", cfg.Metadata.APIKey)
	assert.Equal(t, "1234", cfg.Upstream.AccountID)
	assert.Equal(t, "99", cfg.Upstream.ProjectID)
	assert.Equal(t, "dbt-bucket", cfg.Store.Bucket)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.False(t, cfg.Invoker.Debug)
}

func TestLoadSecrets_PartialSecretKeepsConfig(t *testing.T) {
	api := &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{
		SecretBinary: []byte(`{"DBT_API_KEY": "tok", "BUCKET": ""}`),
	}}

	cfg := DefaultConfig()
	cfg.Store.Bucket = "configured"
	require.NoError(t, cfg.LoadSecrets(context.Background(), api, "id"))

	assert.Equal(t, "tok", cfg.Upstream.APIKey)
	assert.Equal(t, "configured", cfg.Store.Bucket)
}

func TestLoadSecrets_Errors(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeSecrets
	}{
		{"api error", &fakeSecrets{err: errors.New("access denied")}},
		{"no value", &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{}}},
		{"not json", &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("plain")}}},
		{"bad debug", &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"DEBUG":"sometimes"}`)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, DefaultConfig().LoadSecrets(context.Background(), tt.api, "id"))
		})
	}
}
