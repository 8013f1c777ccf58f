// Package query validates audit queries and fills in their defaults.
package query

import (
	"fmt"

	"mercator-hq/filegate/pkg/audit"
	"mercator-hq/filegate/pkg/config"
)

// ValidSortFields are the fields a query may sort by.
var ValidSortFields = map[string]bool{
	"recorded_at": true,
	"decided_at":  true,
	"confidence":  true,
	"duration":    true,
}

// ValidSortOrders are the accepted sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate checks q against the configured limits.
func Validate(q *audit.Query, limits config.QueryConfig) error {
	if q.Limit < 0 {
		return audit.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if limits.MaxLimit > 0 && q.Limit > limits.MaxLimit {
		return audit.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", limits.MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return audit.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return audit.NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return audit.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return audit.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}
	if q.MinConfidence != nil && q.MaxConfidence != nil && *q.MinConfidence > *q.MaxConfidence {
		return audit.NewQueryError(q, fmt.Errorf("min_confidence must be <= max_confidence"))
	}
	if q.Source != "" && q.Source != audit.SourceComputed && q.Source != audit.SourceCache {
		return audit.NewQueryError(q, fmt.Errorf("invalid source: %s (must be 'computed' or 'cache')", q.Source))
	}
	return nil
}

// ApplyDefaults fills the limit and sort order.
func ApplyDefaults(q *audit.Query, limits config.QueryConfig) {
	if q.Limit == 0 {
		q.Limit = limits.DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = "recorded_at"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
