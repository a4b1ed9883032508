package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Config holds the REST API connection settings
type Config struct {
	BaseURL       string        `toml:"base_url"`
	APIKey        string        `toml:"api_key"`
	AccountID     string        `toml:"account_id"`
	ProjectID     string        `toml:"project_id"`
	EnvironmentID string        `toml:"environment_id"`
	Timeout       time.Duration `toml:"timeout"`
	RetryMax      int           `toml:"retry_max"`

	// CompatEmptyOnError reports upstream failures as empty results
	// instead of *APIError.
	CompatEmptyOnError bool `toml:"compat_empty_on_error"`
}

// DefaultConfig returns the default REST API configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://cloud.getdbt.com/api/v2",
		EnvironmentID: "0",
		Timeout:       60 * time.Second,
		RetryMax:      0,
	}
}

func validateConfig(cfg Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if cfg.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if cfg.RetryMax < 0 {
		return fmt.Errorf("retry_max must be non-negative, got %d", cfg.RetryMax)
	}
	return nil
}

// Client talks to the upstream REST API
type Client struct {
	config Config
	http   *retryablehttp.Client
	logger *slog.Logger
}

// NewClient creates a REST client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid upstream config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: cfg,
		http:   newHTTPClient(cfg.Timeout, cfg.RetryMax, logger),
		logger: logger,
	}, nil
}

func newHTTPClient(timeout time.Duration, retryMax int, logger *slog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.Logger = nil
	if logger != nil {
		c.Logger = logger
	}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if timeout > 0 {
		c.HTTPClient.Timeout = timeout
	}
	return c
}

type envelope struct {
	Status struct {
		Code             int    `json:"code"`
		IsSuccess        bool   `json:"is_success"`
		UserMessage      string `json:"user_message"`
		DeveloperMessage string `json:"developer_message"`
	} `json:"status"`
	Data  json.RawMessage `json:"data"`
	Extra struct {
		Pagination struct {
			Count      int `json:"count"`
			TotalCount int `json:"total_count"`
		} `json:"pagination"`
	} `json:"extra"`
}

type jobFields struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State int    `json:"state"`
}

// ListJobs returns every job in the configured project and environment
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	query := url.Values{}
	query.Set("project_id", c.config.ProjectID)
	query.Set("environment_id", c.config.EnvironmentID)

	env, err := c.get(ctx, "list jobs", "/accounts/"+c.config.AccountID+"/jobs", query)
	if err != nil {
		if c.compat(err) {
			return []Job{}, nil
		}
		return nil, err
	}

	var raws []json.RawMessage
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &raws); err != nil {
			return nil, fmt.Errorf("failed to decode job list: %w", err)
		}
	}

	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJob fetches a single job definition. ErrJobNotFound is returned when
// the upstream answers with no data.
func (c *Client) GetJob(ctx context.Context, id int) (Job, error) {
	env, err := c.get(ctx, "get job", "/accounts/"+c.config.AccountID+"/jobs/"+strconv.Itoa(id), nil)
	if err != nil {
		if c.compat(err) {
			return Job{}, fmt.Errorf("job %d: %w", id, ErrJobNotFound)
		}
		return Job{}, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" || string(env.Data) == "{}" {
		return Job{}, fmt.Errorf("job %d: %w", id, ErrJobNotFound)
	}
	return decodeJob(env.Data)
}

// GetRunsPage fetches up to PageSize runs of one partition starting at offset
func (c *Client) GetRunsPage(ctx context.Context, jobID, offset int, partition Partition) (*RunPage, error) {
	if partition.Code() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPartition, partition)
	}

	query := url.Values{}
	query.Set("job_definition_id", strconv.Itoa(jobID))
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(PageSize))
	query.Set("status", strconv.Itoa(partition.Code()))
	query.Set("include_related", "run_steps")

	env, err := c.get(ctx, "list runs", "/accounts/"+c.config.AccountID+"/runs", query)
	if err != nil {
		if c.compat(err) {
			c.logger.Warn("treating failed runs request as empty page",
				"job_id", jobID, "partition", partition, "offset", offset, "error", err)
			return NewRunPage(offset, 0, nil), nil
		}
		return nil, err
	}

	var runs []json.RawMessage
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &runs); err != nil {
			return nil, fmt.Errorf("failed to decode runs: %w", err)
		}
	}

	return NewRunPage(offset, env.Extra.Pagination.TotalCount, runs), nil
}

// compat reports whether err should be downgraded to an empty result
func (c *Client) compat(err error) bool {
	return c.config.CompatEmptyOnError && IsAPIError(err)
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values) (*envelope, error) {
	endpoint := c.config.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: failed to read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("upstream %s: failed to decode response: %w", op, err)
	}
	if env.Status.Code != http.StatusOK {
		msg := env.Status.UserMessage
		if msg == "" {
			msg = env.Status.DeveloperMessage
		}
		return nil, &APIError{Op: op, StatusCode: env.Status.Code, Message: msg}
	}
	return &env, nil
}

// errorMessage extracts the user message from an error body if there is one
func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Status.UserMessage != "" {
		return env.Status.UserMessage
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

func decodeJob(raw json.RawMessage) (Job, error) {
	var f jobFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return Job{
		ID:     f.ID,
		Name:   f.Name,
		Status: jobStateName(f.State),
		Raw:    raw,
	}, nil
}
