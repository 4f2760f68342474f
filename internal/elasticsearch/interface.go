package elasticsearch

import "context"

// Interface defines the contract for Elasticsearch client operations
// This interface allows for easy mocking in tests
type Interface interface {
	// Index discovery
	ListIndices(ctx context.Context) ([]string, error)
	ListIndexTiers(ctx context.Context, pattern, attribute string) ([]IndexTier, error)

	// Mutations, each returning the raw response body
	SetAllocation(ctx context.Context, enabled bool) (string, error)
	SetIndexTier(ctx context.Context, index, attribute, tag string, replicas int) (string, error)
	OptimizeIndex(ctx context.Context, index string) (string, error)
}

// Ensure *Client implements Interface
var _ Interface = (*Client)(nil)
