// Package tiering decides which indices belong to which storage tier and
// moves them there while shard reallocation is paused.
package tiering

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Tier names as reported in plans and results. The routing tag values sent
// to the cluster are configured separately.
const (
	TierHot     = "hot"
	TierMid     = "mid"
	TierArchive = "archive"
)

// ErrNotEnoughIndices is returned when too few indices exist to move any of them
var ErrNotEnoughIndices = errors.New("not enough indices to move to the mid tier")

// Plan is the tier assignment of one run, every slice ordered oldest first
type Plan struct {
	Indices []string `json:"indices"`
	Archive []string `json:"archive"`
	Mid     []string `json:"mid"`
	Hot     []string `json:"hot"`
}

// Assignment is one index with its planned tier
type Assignment struct {
	Index string `json:"index"`
	Tier  string `json:"tier"`
}

// Select returns the names starting with prefix, oldest first
func Select(names []string, prefix string) []string {
	selected := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			selected = append(selected, name)
		}
	}
	// Index names carry their date, so name order is age order
	sort.Strings(selected)
	return selected
}

// BuildPlan selects the indices starting with prefix and partitions them by
// position from the newest index. With n selected indices:
//
//	archive = [0, max(0, n-archiveAge+1))
//	mid     = [max(0, n-archiveAge+1), n-midAge+1)
//	hot     = the rest
//
// When n <= midAge nothing qualifies and ErrNotEnoughIndices is returned
// together with a plan that keeps every index hot.
func BuildPlan(names []string, prefix string, midAge, archiveAge int) (*Plan, error) {
	if midAge < 1 || archiveAge <= midAge {
		return nil, fmt.Errorf("invalid tier ages: mid %d, archive %d", midAge, archiveAge)
	}

	indices := Select(names, prefix)
	n := len(indices)

	if n <= midAge {
		return &Plan{
			Indices: indices,
			Archive: []string{},
			Mid:     []string{},
			Hot:     indices,
		}, ErrNotEnoughIndices
	}

	archiveEnd := max(0, n-archiveAge+1)
	midEnd := n - midAge + 1

	return &Plan{
		Indices: indices,
		Archive: indices[:archiveEnd],
		Mid:     indices[archiveEnd:midEnd],
		Hot:     indices[midEnd:],
	}, nil
}

// Assignments lists every planned index with its tier, oldest first
func (p *Plan) Assignments() []Assignment {
	result := make([]Assignment, 0, len(p.Indices))
	for _, index := range p.Archive {
		result = append(result, Assignment{Index: index, Tier: TierArchive})
	}
	for _, index := range p.Mid {
		result = append(result, Assignment{Index: index, Tier: TierMid})
	}
	for _, index := range p.Hot {
		result = append(result, Assignment{Index: index, Tier: TierHot})
	}
	return result
}

// Empty reports whether the plan moves nothing
func (p *Plan) Empty() bool {
	return len(p.Mid) == 0 && len(p.Archive) == 0
}
