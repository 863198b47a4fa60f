package overpass

import (
	"strings"
	"testing"
	"time"

	"github.com/jobrunner/osmclip/internal/domain"
)

func testRegion(t *testing.T) domain.Region {
	t.Helper()
	r, err := domain.NewRegion("r1", []domain.Coordinate{
		{Lat: 24.7, Lon: 46.6},
		{Lat: 24.7, Lon: 46.7},
		{Lat: 24.8, Lon: 46.7},
		{Lat: 24.8, Lon: 46.6},
	})
	if err != nil {
		t.Fatalf("NewRegion() error = %v", err)
	}
	return r
}

// clauses returns the statements inside the union block.
func clauses(q domain.ExtractionQuery) []string {
	var out []string
	for _, line := range strings.Split(q.String(), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "nwr") {
			out = append(out, line)
		}
	}
	return out
}

func TestPolygonFilter(t *testing.T) {
	got := PolygonFilter(testRegion(t))
	want := "24.7 46.6 24.7 46.7 24.8 46.7 24.8 46.6"
	if got != want {
		t.Errorf("PolygonFilter() = %q, want %q", got, want)
	}
}

func TestBuildUnrestricted(t *testing.T) {
	b := NewQueryBuilder(0)
	q := b.Build(testRegion(t), domain.NewCategoryFilter())

	got := clauses(q)
	if len(got) != 1 {
		t.Fatalf("len(clauses) = %d, want 1: %v", len(got), got)
	}
	want := `nwr(poly:"24.7 46.6 24.7 46.7 24.8 46.7 24.8 46.6");`
	if got[0] != want {
		t.Errorf("clause = %q, want %q", got[0], want)
	}
	if strings.Contains(q.String(), "nwr[") {
		t.Error("unrestricted query must not filter by tag")
	}
	if !strings.HasPrefix(q.String(), "[out:json][timeout:60];") {
		t.Errorf("query should start with settings, got %q", q.String())
	}
	for _, part := range []string{"out body;", ">;", "out skel qt;"} {
		if !strings.Contains(q.String(), part) {
			t.Errorf("query should contain %q", part)
		}
	}
}

func TestBuildClausePerCategory(t *testing.T) {
	b := NewQueryBuilder(25 * time.Second)

	tests := []struct {
		name    string
		filters domain.CategoryFilter
	}{
		{"one", domain.NewCategoryFilter("building")},
		{"two", domain.NewCategoryFilter("building", "highway")},
		{"five", domain.NewCategoryFilter("building", "highway", "amenity", "shop", "leisure")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := b.Build(testRegion(t), tt.filters)
			got := clauses(q)
			if len(got) != tt.filters.Len() {
				t.Fatalf("len(clauses) = %d, want %d", len(got), tt.filters.Len())
			}
			for i, key := range tt.filters.Keys() {
				if !strings.HasPrefix(got[i], `nwr["`+key+`"](poly:"`) {
					t.Errorf("clause %d = %q, want key %q", i, got[i], key)
				}
			}
			if !strings.Contains(q.String(), "[timeout:25]") {
				t.Error("query should carry the configured timeout")
			}
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewQueryBuilder(0)
	region := testRegion(t)

	first := b.Build(region, domain.NewCategoryFilter("highway", "building"))
	second := b.Build(region, domain.NewCategoryFilter("building", "highway", "building"))

	if first != second {
		t.Errorf("Build() not deterministic:\n%s\n---\n%s", first, second)
	}
}

func TestBuildEscapesKeys(t *testing.T) {
	q := NewQueryBuilder(0).Build(testRegion(t), domain.NewCategoryFilter(`we"ird\key`))

	if !strings.Contains(q.String(), `nwr["we\"ird\\key"]`) {
		t.Errorf("key not escaped: %s", q)
	}
}
