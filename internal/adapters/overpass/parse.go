package overpass

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/osm"
)

// response is the top-level Overpass JSON document. Elements are decoded one
// by one so a malformed entry does not fail the whole response.
type response struct {
	Version   float64           `json:"version"`
	Generator string            `json:"generator"`
	Remark    string            `json:"remark"`
	Elements  []json.RawMessage `json:"elements"`
}

// element is one node, way or relation as emitted by "out body" / "out skel".
type element struct {
	Type    osm.Type          `json:"type"`
	ID      int64             `json:"id"`
	Lat     *float64          `json:"lat"`
	Lon     *float64          `json:"lon"`
	Tags    map[string]string `json:"tags"`
	Nodes   []int64           `json:"nodes"`
	Members []member          `json:"members"`
}

type member struct {
	Type osm.Type `json:"type"`
	Ref  int64    `json:"ref"`
	Role string   `json:"role"`
}

// parsed holds the usable elements of a response.
type parsed struct {
	Remark   string
	Elements []element
	Dropped  int
}

var errUnknownElement = errors.New("unknown element kind")

// parseResponse decodes an Overpass JSON body, dropping elements that fail to
// decode or carry an unknown kind or identity.
func parseResponse(data []byte) (*parsed, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding overpass response: %w", err)
	}

	out := &parsed{
		Remark:   resp.Remark,
		Elements: make([]element, 0, len(resp.Elements)),
	}

	for _, raw := range resp.Elements {
		var el element
		if err := json.Unmarshal(raw, &el); err != nil {
			out.Dropped++
			continue
		}
		if _, err := el.featureID(); err != nil {
			out.Dropped++
			continue
		}
		out.Elements = append(out.Elements, el)
	}

	return out, nil
}

// featureID returns the element identity.
func (e *element) featureID() (osm.FeatureID, error) {
	if e.ID <= 0 {
		return 0, fmt.Errorf("invalid id %d: %w", e.ID, errUnknownElement)
	}
	switch e.Type {
	case osm.TypeNode:
		return osm.NodeID(e.ID).FeatureID(), nil
	case osm.TypeWay:
		return osm.WayID(e.ID).FeatureID(), nil
	case osm.TypeRelation:
		return osm.RelationID(e.ID).FeatureID(), nil
	default:
		return 0, fmt.Errorf("%q: %w", e.Type, errUnknownElement)
	}
}

// isRuntimeError reports whether an Overpass remark signals an aborted query.
func isRuntimeError(remark string) bool {
	r := strings.ToLower(remark)
	return strings.Contains(r, "runtime error") || strings.Contains(r, "runtime remark: timeout")
}
