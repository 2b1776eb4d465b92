// Package flow turns aggregated network connection records into graph nodes
// and relationships, and fetches those records from OpenSearch.
package flow

import (
	"context"
)

// DefaultNoName is the sentinel reported when a connection has no resolved
// DNS name.
const DefaultNoName = "NO_DNS"

// DefaultWindow is the lower bound of the aggregation time range.
const DefaultWindow = "now-30m"

// Record is one aggregated connection: which host talked to which address,
// under which resolved name and protocol.
type Record struct {
	Source      string `json:"source" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	DNS         string `json:"dns" validate:"required"`
	Protocol    string `json:"protocol" validate:"required"`
}

// HasName reports whether the record carries a resolved name other than noName.
func (r Record) HasName(noName string) bool {
	return r.DNS != noName
}

// Source fetches aggregated connection records for an index over a time
// window such as "now-30m".
type Source interface {
	Fetch(ctx context.Context, index, window string) ([]Record, error)
}
