// Package overpass implements the extraction ports against an Overpass API interpreter.
package overpass

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jobrunner/osmclip/internal/domain"
)

// DefaultQueryTimeout is the server-side time budget of a query.
const DefaultQueryTimeout = 60 * time.Second

// QueryBuilder renders Overpass QL queries. It implements output.QueryBuilder.
type QueryBuilder struct {
	timeout int // seconds
}

// NewQueryBuilder creates a query builder with the given server-side timeout.
func NewQueryBuilder(timeout time.Duration) *QueryBuilder {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &QueryBuilder{timeout: secs}
}

// Build returns the union of one polygon clause per category, or a single
// unrestricted clause when the filter is empty. Member ways and nodes of every
// match are pulled in by recursion so geometries can be resolved.
func (b *QueryBuilder) Build(region domain.Region, filters domain.CategoryFilter) domain.ExtractionQuery {
	poly := PolygonFilter(region)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[out:json][timeout:%d];\n", b.timeout)
	sb.WriteString("(\n")
	if filters.IsEmpty() {
		fmt.Fprintf(&sb, "  nwr(poly:\"%s\");\n", poly)
	} else {
		for _, key := range filters.Keys() {
			fmt.Fprintf(&sb, "  nwr[\"%s\"](poly:\"%s\");\n", escapeString(key), poly)
		}
	}
	sb.WriteString(");\n")
	sb.WriteString("out body;\n")
	sb.WriteString(">;\n")
	sb.WriteString("out skel qt;\n")

	return domain.ExtractionQuery(sb.String())
}

// PolygonFilter serializes the region as the "lat lon lat lon ..." list
// expected by the poly: filter.
func PolygonFilter(region domain.Region) string {
	parts := make([]string, 0, 2*len(region.Points))
	for _, c := range region.Points {
		parts = append(parts,
			strconv.FormatFloat(c.Lat, 'f', -1, 64),
			strconv.FormatFloat(c.Lon, 'f', -1, 64),
		)
	}
	return strings.Join(parts, " ")
}

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\t", `\t`,
)

// escapeString escapes a value for use inside a double-quoted Overpass literal.
func escapeString(s string) string {
	return stringEscaper.Replace(s)
}
