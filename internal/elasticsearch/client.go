// Package elasticsearch provides a client for the cluster calls the tier
// migrator needs: index statistics, cluster allocation settings, per-index
// routing settings and segment merging.
package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// AllocationMode selects the cluster setting used to pause shard reallocation
type AllocationMode string

const (
	// AllocationDisableFlag uses cluster.routing.allocation.disable_allocation (pre 1.0 clusters)
	AllocationDisableFlag AllocationMode = "disable_allocation"
	// AllocationEnableSetting uses cluster.routing.allocation.enable: none|all
	AllocationEnableSetting AllocationMode = "enable"
)

// OptimizeMode selects the segment merge endpoint
type OptimizeMode string

const (
	// OptimizeLegacy calls POST /<index>/_optimize
	OptimizeLegacy OptimizeMode = "optimize"
	// OptimizeForcemerge calls POST /<index>/_forcemerge
	OptimizeForcemerge OptimizeMode = "forcemerge"
)

const defaultRequestTimeout = 30 * time.Second

// Options tunes the wire format of the client
type Options struct {
	// RequestTimeout bounds every single call, defaults to 30s
	RequestTimeout time.Duration
	AllocationMode AllocationMode
	OptimizeMode   OptimizeMode
	// MaxNumSegments is only sent with OptimizeForcemerge, 0 leaves it to the server
	MaxNumSegments int
	// LegacyCluster accepts responses without the X-Elastic-Product header,
	// which clusters before 7.14 never send
	LegacyCluster bool
}

// Client represents an Elasticsearch client
type Client struct {
	es   *elasticsearch.Client
	opts Options
}

// IndexTier is the current tier assignment of an index
type IndexTier struct {
	Index    string `json:"index"`
	Tier     string `json:"tier"`
	Replicas string `json:"replicas"`
}

// statsResponse is the part of GET /_stats the migrator reads
type statsResponse struct {
	Indices map[string]json.RawMessage `json:"indices"`
}

// NewClient creates a new Elasticsearch client
func NewClient(baseURL string, opts Options) (*Client, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.AllocationMode == "" {
		opts.AllocationMode = AllocationDisableFlag
	}
	if opts.OptimizeMode == "" {
		opts.OptimizeMode = OptimizeLegacy
	}

	switch opts.AllocationMode {
	case AllocationDisableFlag, AllocationEnableSetting:
	default:
		return nil, fmt.Errorf("unknown allocation mode %q", opts.AllocationMode)
	}
	switch opts.OptimizeMode {
	case OptimizeLegacy, OptimizeForcemerge:
	default:
		return nil, fmt.Errorf("unknown optimize mode %q", opts.OptimizeMode)
	}

	esCfg := elasticsearch.Config{
		Addresses: []string{baseURL},
		// a failed call is reported, never repeated within a run
		DisableRetry: true,
	}
	if opts.LegacyCluster {
		esCfg.Transport = &productHeaderTransport{next: http.DefaultTransport}
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	return &Client{
		es:   es,
		opts: opts,
	}, nil
}

// ListIndices returns the sorted names of all indices in GET /_stats
func (c *Client) ListIndices(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	res, err := c.es.Indices.Stats(
		c.es.Indices.Stats.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get index stats: %w", err)
	}
	defer res.Body.Close()

	body, err := readBody("stats", res.StatusCode, res.Body)
	if err != nil {
		return nil, err
	}

	var stats statsResponse
	if err := json.Unmarshal([]byte(body), &stats); err != nil {
		return nil, &DecodeError{Op: "stats", Err: err}
	}
	if stats.Indices == nil {
		return nil, &DecodeError{Op: "stats", Err: fmt.Errorf("response has no 'indices' object")}
	}

	names := make([]string, 0, len(stats.Indices))
	for name := range stats.Indices {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// SetAllocation pauses (enabled=false) or resumes cluster-wide shard
// reallocation with a transient setting. It returns the response body.
func (c *Client) SetAllocation(ctx context.Context, enabled bool) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"transient": c.allocationSettings(enabled),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	return c.perform(ctx, "allocation", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Cluster.PutSettings(
			strings.NewReader(string(body)),
			c.es.Cluster.PutSettings.WithContext(ctx),
		)
	})
}

func (c *Client) allocationSettings(enabled bool) map[string]string {
	if c.opts.AllocationMode == AllocationEnableSetting {
		value := "none"
		if enabled {
			value = "all"
		}
		return map[string]string{"cluster.routing.allocation.enable": value}
	}
	return map[string]string{"cluster.routing.allocation.disable_allocation": strconv.FormatBool(!enabled)}
}

// SetIndexTier requires the routing attribute of index to equal tag and sets
// its replica count. Re-applying the same values is a no-op on the cluster.
func (c *Client) SetIndexTier(ctx context.Context, index, attribute, tag string, replicas int) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"index.routing.allocation.require." + attribute: tag,
		"index": map[string]interface{}{
			"number_of_replicas": replicas,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	return c.perform(ctx, "settings", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.PutSettings(
			strings.NewReader(string(body)),
			c.es.Indices.PutSettings.WithIndex(index),
			c.es.Indices.PutSettings.WithContext(ctx),
		)
	})
}

// OptimizeIndex merges the segments of index
func (c *Client) OptimizeIndex(ctx context.Context, index string) (string, error) {
	if c.opts.OptimizeMode == OptimizeForcemerge {
		return c.perform(ctx, "optimize", func(ctx context.Context) (*esapi.Response, error) {
			opts := []func(*esapi.IndicesForcemergeRequest){
				c.es.Indices.Forcemerge.WithIndex(index),
				c.es.Indices.Forcemerge.WithContext(ctx),
			}
			if c.opts.MaxNumSegments > 0 {
				opts = append(opts, c.es.Indices.Forcemerge.WithMaxNumSegments(c.opts.MaxNumSegments))
			}
			return c.es.Indices.Forcemerge(opts...)
		})
	}

	// _optimize predates the typed API, so it goes through the transport directly
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/"+url.PathEscape(index)+"/_optimize", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build optimize request: %w", err)
	}

	res, err := c.es.Perform(req)
	if err != nil {
		return "", fmt.Errorf("failed to optimize index %s: %w", index, err)
	}
	defer res.Body.Close()

	return readBody("optimize", res.StatusCode, res.Body)
}

// ListIndexTiers returns the routing tag and replica count of every index
// matching pattern, sorted by index name
func (c *Client) ListIndexTiers(ctx context.Context, pattern, attribute string) ([]IndexTier, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	res, err := c.es.Indices.GetSettings(
		c.es.Indices.GetSettings.WithIndex(pattern),
		c.es.Indices.GetSettings.WithFlatSettings(true),
		c.es.Indices.GetSettings.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get index settings: %w", err)
	}
	defer res.Body.Close()

	body, err := readBody("get-settings", res.StatusCode, res.Body)
	if err != nil {
		return nil, err
	}

	var settings map[string]struct {
		Settings map[string]interface{} `json:"settings"`
	}
	if err := json.Unmarshal([]byte(body), &settings); err != nil {
		return nil, &DecodeError{Op: "get-settings", Err: err}
	}

	tagKey := "index.routing.allocation.require." + attribute
	result := make([]IndexTier, 0, len(settings))
	for index, s := range settings {
		result = append(result, IndexTier{
			Index:    index,
			Tier:     stringSetting(s.Settings, tagKey),
			Replicas: stringSetting(s.Settings, "index.number_of_replicas"),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Index < result[j].Index })

	return result, nil
}

// perform runs a call bounded by the request timeout and returns the response body
func (c *Client) perform(ctx context.Context, op string, call func(ctx context.Context) (*esapi.Response, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	res, err := call(ctx)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", op, err)
	}
	defer res.Body.Close()

	return readBody(op, res.StatusCode, res.Body)
}

// readBody reads the whole body and turns non-2xx statuses into an *APIError
func readBody(op string, status int, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("%s: failed to read response: %w", op, err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", &APIError{Op: op, StatusCode: status, Body: string(data)}
	}
	return string(data), nil
}

func stringSetting(settings map[string]interface{}, key string) string {
	v, ok := settings[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
