package config

import (
	"fmt"
	"strconv"
	"time"
)

// LookupFunc reads one environment variable
type LookupFunc func(key string) (string, bool)

type envVar struct {
	name  string
	apply func(c *Config, value string) error
}

var envVars = []envVar{
	{"RUNSYNC_API_KEY", func(c *Config, v string) error {
		c.Upstream.APIKey = v
		c.Metadata.APIKey = v
		return nil
	}},
	{"RUNSYNC_ACCOUNT_ID", func(c *Config, v string) error { c.Upstream.AccountID = v; return nil }},
	{"RUNSYNC_PROJECT_ID", func(c *Config, v string) error { c.Upstream.ProjectID = v; return nil }},
	{"RUNSYNC_ENVIRONMENT_ID", func(c *Config, v string) error { c.Upstream.EnvironmentID = v; return nil }},
	{"RUNSYNC_BASE_URL", func(c *Config, v string) error { c.Upstream.BaseURL = v; return nil }},
	{"RUNSYNC_METADATA_URL", func(c *Config, v string) error { c.Metadata.URL = v; return nil }},
	{"RUNSYNC_STORE_BACKEND", func(c *Config, v string) error { c.Store.Backend = v; return nil }},
	{"RUNSYNC_BUCKET", func(c *Config, v string) error { c.Store.Bucket = v; return nil }},
	{"RUNSYNC_STORE_PREFIX", func(c *Config, v string) error { c.Store.Prefix = v; return nil }},
	{"RUNSYNC_DATABASE_DSN", func(c *Config, v string) error { c.Database.DSN = v; return nil }},
	{"RUNSYNC_INVOKER_BACKEND", func(c *Config, v string) error { c.Invoker.Backend = v; return nil }},
	{"RUNSYNC_WORKER_FUNCTION", func(c *Config, v string) error { c.Invoker.Function = v; return nil }},
	{"RUNSYNC_INVOKE_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Invoker.Timeout, v) }},
	{"RUNSYNC_DEBUG", func(c *Config, v string) error { return setBool(&c.Invoker.Debug, v) }},
	{"RUNSYNC_CONCURRENCY", func(c *Config, v string) error { return setInt(&c.Orchestrator.Concurrency, v) }},
	{"RUNSYNC_SCHEDULE", func(c *Config, v string) error { c.Schedule.Cron = v; return nil }},
	{"RUNSYNC_SECRET_ID", func(c *Config, v string) error { c.Secrets.SecretID = v; return nil }},
	{"RUNSYNC_AWS_REGION", func(c *Config, v string) error { c.AWS.Region = v; return nil }},
	{"RUNSYNC_AWS_ENDPOINT", func(c *Config, v string) error { c.AWS.Endpoint = v; return nil }},
	{"RUNSYNC_LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"RUNSYNC_LOG_FORMAT", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
}

// ApplyEnv overrides settings from RUNSYNC_* variables. A variable that is
// set but empty still overrides.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok {
			continue
		}
		if err := ev.apply(c, v); err != nil {
			return fmt.Errorf("invalid %s: %w", ev.name, err)
		}
	}
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}
