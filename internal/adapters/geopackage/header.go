package geopackage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GeoPackage binary header constants (OGC 12-128r18, 2.1.3).
const (
	headerMagic       = "GP"
	headerVersion     = 0
	flagLittleEndian  = 0x01
	flagEnvelopeXY    = 0x01 << 1
	flagEmpty         = 0x01 << 4
	envelopeMask      = 0x07 << 1
	headerFixedLength = 8
)

var errBadHeader = errors.New("invalid geopackage geometry header")

// encodeGeometry returns a GeoPackage geometry blob: header, XY envelope and
// little-endian WKB.
func encodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("marshaling wkb: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(headerFixedLength + 32 + len(body))
	buf.WriteString(headerMagic)
	buf.WriteByte(headerVersion)

	b := g.Bound()
	empty := isEmpty(g)
	flags := byte(flagLittleEndian)
	if empty {
		flags |= flagEmpty
	} else {
		flags |= flagEnvelopeXY
	}
	buf.WriteByte(flags)

	_ = binary.Write(&buf, binary.LittleEndian, srsID)
	if !empty {
		for _, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
		}
	}
	buf.Write(body)

	return buf.Bytes(), nil
}

// decodeGeometry parses a GeoPackage geometry blob.
func decodeGeometry(data []byte) (orb.Geometry, int32, error) {
	if len(data) < headerFixedLength || string(data[:2]) != headerMagic {
		return nil, 0, errBadHeader
	}
	flags := data[3]

	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(data[4:8]))

	var envelope int
	switch (flags & envelopeMask) >> 1 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, 0, errBadHeader
	}
	if len(data) < headerFixedLength+envelope {
		return nil, 0, errBadHeader
	}

	g, err := wkb.Unmarshal(data[headerFixedLength+envelope:])
	if err != nil {
		return nil, 0, fmt.Errorf("unmarshaling wkb: %w", err)
	}
	return g, srsID, nil
}

func isEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	}
	return false
}
