// Package export writes audit records as JSON or CSV.
package export

import (
	"fmt"
	"strings"

	"mercator-hq/filegate/pkg/audit"
)

// New returns the exporter for format ("json" or "csv").
func New(format string, pretty bool) (audit.Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONExporter(pretty), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (must be json or csv)", format)
	}
}
