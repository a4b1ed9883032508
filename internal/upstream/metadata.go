package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ResourceKind names a metadata resource pulled per job
type ResourceKind string

const (
	KindModels    ResourceKind = "models"
	KindSources   ResourceKind = "sources"
	KindExposures ResourceKind = "exposures"
)

// ResourceKinds lists every metadata kind in pull order
var ResourceKinds = []ResourceKind{KindModels, KindSources, KindExposures}

var ErrUnknownResourceKind = errors.New("upstream: unknown metadata resource kind")

// ParseResourceKind validates a metadata kind name
func ParseResourceKind(s string) (ResourceKind, error) {
	k := ResourceKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := metadataQueries[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResourceKind, s)
	}
	return k, nil
}

const testFields = `
			uniqueId
			runId
			accountId
			projectId
			environmentId
			jobId
			name
			state
			status
			error
			fail
			warn`

var metadataQueries = map[ResourceKind]string{
	KindModels: `query Models($jobId: Int!) {
	models(jobId: $jobId) {
		uniqueId
		runId
		jobId
		environmentId
		projectId
		accountId
		name
		error
		schema
		status
		skip
		executionTime
		executeStartedAt
		executeCompletedAt
		tests {` + testFields + `
		}
	}
}`,
	KindSources: `query Sources($jobId: Int!) {
	sources(jobId: $jobId) {
		uniqueId
		runId
		jobId
		environmentId
		projectId
		accountId
		name
		sourceName
		sourceDescription
		state
		maxLoadedAt
		snapshottedAt
		runGeneratedAt
		runElapsedTime
		criteria {
			warnAfter { period count }
			errorAfter { period count }
		}
		tests {` + testFields + `
		}
	}
}`,
	KindExposures: `query Exposures($jobId: Int!) {
	exposures(jobId: $jobId) {
		uniqueId
		runId
		jobId
		environmentId
		projectId
		accountId
		name
		description
		resourceType
		ownerName
		ownerEmail
		url
		parentsSources { uniqueId }
		parentsModels { uniqueId }
	}
}`,
}

// MetadataConfig holds the GraphQL metadata endpoint settings
type MetadataConfig struct {
	URL      string        `toml:"url"`
	APIKey   string        `toml:"api_key"`
	Timeout  time.Duration `toml:"timeout"`
	RetryMax int           `toml:"retry_max"`
}

// DefaultMetadataConfig returns the default metadata endpoint configuration
func DefaultMetadataConfig() MetadataConfig {
	return MetadataConfig{
		URL:     "https://metadata.cloud.getdbt.com/graphql",
		Timeout: 60 * time.Second,
	}
}

// GraphQLError carries the errors array of a GraphQL response
type GraphQLError struct {
	Kind     ResourceKind
	Messages []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("metadata %s query failed: %s", e.Kind, strings.Join(e.Messages, "; "))
}

// MetadataClient runs metadata queries against the GraphQL endpoint
type MetadataClient struct {
	config MetadataConfig
	http   *retryablehttp.Client
	logger *slog.Logger
}

// NewMetadataClient creates a metadata client
func NewMetadataClient(cfg MetadataConfig, logger *slog.Logger) (*MetadataClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("invalid metadata config: url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataClient{
		config: cfg,
		http:   newHTTPClient(cfg.Timeout, cfg.RetryMax, logger),
		logger: logger,
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   map[string][]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GetMetadata returns every record of kind for the job's latest run.
// Records are returned undecoded so field order survives flattening.
func (c *MetadataClient) GetMetadata(ctx context.Context, kind ResourceKind, jobID int) ([]json.RawMessage, error) {
	query, ok := metadataQueries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResourceKind, kind)
	}

	payload, err := json.Marshal(graphQLRequest{
		Query:     query,
		Variables: map[string]any{"jobId": jobID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s query: %w", kind, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	c.logger.Debug("querying metadata", "job_id", jobID, "kind", kind)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("metadata %s: failed to read body: %w", kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: "metadata " + string(kind), StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var out graphQLResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("metadata %s: failed to decode response: %w", kind, err)
	}

	if len(out.Errors) > 0 {
		gqlErr := &GraphQLError{Kind: kind}
		for _, e := range out.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		return nil, gqlErr
	}

	records := out.Data[string(kind)]
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}
