package overpass

import (
	"fmt"
	"sort"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmgeojson"

	"github.com/jobrunner/osmclip/internal/domain"
)

// normalize converts parsed elements into features. Each identity is emitted
// once, at its first position, with the tags of all its occurrences merged.
// Untagged elements and elements without a resolvable geometry are dropped.
func normalize(elements []element) (*domain.FeatureCollection, error) {
	order := make(map[string]int, len(elements))
	merged := make(map[osm.FeatureID]*element, len(elements))
	ids := make([]osm.FeatureID, 0, len(elements))

	for i := range elements {
		el := &elements[i]
		fid, err := el.featureID()
		if err != nil {
			continue
		}

		existing, ok := merged[fid]
		if !ok {
			c := *el
			c.Tags = copyTags(el.Tags)
			merged[fid] = &c
			order[fid.String()] = len(ids)
			ids = append(ids, fid)
			continue
		}
		mergeElement(existing, el)
	}

	o := &osm.OSM{}
	for _, fid := range ids {
		el := merged[fid]
		switch el.Type {
		case osm.TypeNode:
			if n := toNode(el); n != nil {
				o.Nodes = append(o.Nodes, n)
			}
		case osm.TypeWay:
			o.Ways = append(o.Ways, toWay(el))
		case osm.TypeRelation:
			o.Relations = append(o.Relations, toRelation(el))
		}
	}

	converted, err := osmgeojson.Convert(o,
		osmgeojson.NoMeta(true),
		osmgeojson.NoRelationMembership(true),
	)
	if err != nil {
		return nil, fmt.Errorf("converting elements: %w", err)
	}

	features := make([]domain.Feature, 0, len(converted.Features))
	for _, f := range converted.Features {
		// Partial geometry: a member way or node was missing.
		if tainted, _ := f.Properties["tainted"].(bool); tainted {
			continue
		}
		id, _ := f.ID.(string)
		pos, ok := order[id]
		if !ok {
			continue
		}
		tags := merged[ids[pos]].Tags
		if len(tags) == 0 {
			continue
		}
		features = append(features, domain.Feature{
			ID:       id,
			Geometry: f.Geometry,
			Tags:     tags,
		})
	}

	sort.SliceStable(features, func(i, j int) bool {
		return order[features[i].ID] < order[features[j].ID]
	})

	return domain.NewFeatureCollection(features), nil
}

// mergeElement folds a duplicate occurrence into the first one.
func mergeElement(dst, src *element) {
	for k, v := range src.Tags {
		if _, ok := dst.Tags[k]; !ok {
			if dst.Tags == nil {
				dst.Tags = make(map[string]string, len(src.Tags))
			}
			dst.Tags[k] = v
		}
	}
	if dst.Lat == nil || dst.Lon == nil {
		dst.Lat, dst.Lon = src.Lat, src.Lon
	}
	if len(dst.Nodes) == 0 {
		dst.Nodes = src.Nodes
	}
	if len(dst.Members) == 0 {
		dst.Members = src.Members
	}
}

// toNode returns nil for nodes without a valid position so that ways
// referencing them are reported as tainted.
func toNode(el *element) *osm.Node {
	if el.Lat == nil || el.Lon == nil {
		return nil
	}
	if domain.NewCoordinate(*el.Lat, *el.Lon).Validate() != nil {
		return nil
	}
	return &osm.Node{
		ID:      osm.NodeID(el.ID),
		Lat:     *el.Lat,
		Lon:     *el.Lon,
		Visible: true,
		Tags:    toTags(el.Tags),
	}
}

func toWay(el *element) *osm.Way {
	nodes := make(osm.WayNodes, len(el.Nodes))
	for i, ref := range el.Nodes {
		nodes[i] = osm.WayNode{ID: osm.NodeID(ref)}
	}
	return &osm.Way{
		ID:      osm.WayID(el.ID),
		Visible: true,
		Nodes:   nodes,
		Tags:    toTags(el.Tags),
	}
}

// toRelation keeps multipolygon, boundary and route relations as they are.
// Any other relation is presented as a route so its member ways are joined
// into lines; the emitted feature still carries the original tags.
func toRelation(el *element) *osm.Relation {
	members := make(osm.Members, len(el.Members))
	for i, m := range el.Members {
		members[i] = osm.Member{Type: m.Type, Ref: m.Ref, Role: m.Role}
	}

	tags := toTags(el.Tags)
	switch tags.Find("type") {
	case "multipolygon", "boundary", "route":
	default:
		tags = asRoute(tags)
	}

	return &osm.Relation{
		ID:      osm.RelationID(el.ID),
		Visible: true,
		Members: members,
		Tags:    tags,
	}
}

func asRoute(tags osm.Tags) osm.Tags {
	out := make(osm.Tags, 0, len(tags)+1)
	for _, t := range tags {
		if t.Key != "type" {
			out = append(out, t)
		}
	}
	return append(out, osm.Tag{Key: "type", Value: "route"})
}

// toTags orders tags by key so conversion is deterministic.
func toTags(m map[string]string) osm.Tags {
	if len(m) == 0 {
		return nil
	}
	tags := make(osm.Tags, 0, len(m))
	for k, v := range m {
		tags = append(tags, osm.Tag{Key: k, Value: v})
	}
	tags.SortByKeyValue()
	return tags
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
