package countrykey

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
	jsoniter "github.com/json-iterator/go"
)

// json is the codec for persisted models and feature files. It matches the
// standard library's output (sorted map keys, HTML escaping) but matches
// object keys case-sensitively, which the feature property probes rely on.
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	CaseSensitive:          true,
}.Froze()

// s2CellLevel is the granularity of the cell token reported for feature
// centroids. Level 10 cells are roughly 10km across.
const s2CellLevel = 10

// geohashPrecision is the length of the geohash reported for feature centroids.
const geohashPrecision = 6

// PropValue is a leniently decoded scalar property. Strings are kept as-is,
// numbers are rendered in their shortest integer or decimal form, and anything
// else (null, objects, arrays, booleans) decodes to "".
type PropValue string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PropValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*p = ""
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*p = PropValue(s)
		}
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		*p = PropValue(strconv.FormatInt(int64(f), 10))
	} else {
		*p = PropValue(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return nil
}

// String returns the value as text.
func (p PropValue) String() string {
	return string(p)
}

// FeatureProperties enumerates the identifying properties the resolver
// understands. Every field is optional.
type FeatureProperties struct {
	ISOA2      PropValue `json:"ISO_A2,omitempty"`
	ISOA2Lower PropValue `json:"iso_a2,omitempty"`
	ISO2       PropValue `json:"ISO2,omitempty"`
	ISO2Lower  PropValue `json:"iso2,omitempty"`
	ISOA3      PropValue `json:"ISO_A3,omitempty"`
	ISOA3Lower PropValue `json:"iso_a3,omitempty"`
	ISO3       PropValue `json:"ISO3,omitempty"`
	ISO3Lower  PropValue `json:"iso3,omitempty"`

	Name        PropValue `json:"name,omitempty"`
	NameUpper   PropValue `json:"NAME,omitempty"`
	AdminUpper  PropValue `json:"ADMIN,omitempty"`
	Admin       PropValue `json:"admin,omitempty"`
	NameEN      PropValue `json:"NAME_EN,omitempty"`
	NameENLower PropValue `json:"name_en,omitempty"`

	IDLower PropValue `json:"id,omitempty"`
	IDUpper PropValue `json:"ID,omitempty"`
}

// isoCandidates returns the non-blank ISO code properties in priority order.
func (p *FeatureProperties) isoCandidates() []PropValue {
	return nonBlank(p.ISOA2, p.ISOA2Lower, p.ISO2, p.ISO2Lower, p.ISOA3, p.ISOA3Lower, p.ISO3, p.ISO3Lower)
}

// nameCandidates returns the non-blank name properties in priority order.
func (p *FeatureProperties) nameCandidates() []PropValue {
	return nonBlank(p.Name, p.NameUpper, p.AdminUpper, p.Admin, p.NameEN, p.NameENLower)
}

// displayName returns the first non-blank name property.
func (p *FeatureProperties) displayName() string {
	if p == nil {
		return ""
	}
	if names := p.nameCandidates(); len(names) > 0 {
		return strings.TrimSpace(names[0].String())
	}
	return ""
}

func nonBlank(values ...PropValue) []PropValue {
	out := make([]PropValue, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(string(v)) != "" {
			out = append(out, v)
		}
	}
	return out
}

// Geometry is a GeoJSON geometry. Only Point, Polygon and MultiPolygon
// coordinates are interpreted; other types are carried but have no centroid.
type Geometry struct {
	Type        string              `json:"type"`
	Coordinates jsoniter.RawMessage `json:"coordinates,omitempty"`
}

// Feature is a record from an external geographic dataset.
type Feature struct {
	ID         PropValue          `json:"id,omitempty"`
	Properties *FeatureProperties `json:"properties,omitempty"`
	Geometry   *Geometry          `json:"geometry,omitempty"`
}

// LatLng is a point in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Centroid returns the normalized vector sum of the feature's exterior ring
// vertices, which is a stable label point for country-sized polygons.
func (f *Feature) Centroid() (LatLng, bool) {
	if f == nil || f.Geometry == nil || len(f.Geometry.Coordinates) == 0 {
		return LatLng{}, false
	}
	var rings [][][]float64
	switch f.Geometry.Type {
	case "Point":
		var pos []float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &pos); err != nil {
			return LatLng{}, false
		}
		rings = [][][]float64{{pos}}
	case "Polygon":
		var poly [][][]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &poly); err != nil || len(poly) == 0 {
			return LatLng{}, false
		}
		rings = poly[:1]
	case "MultiPolygon":
		var multi [][][][]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &multi); err != nil {
			return LatLng{}, false
		}
		for _, poly := range multi {
			if len(poly) > 0 {
				rings = append(rings, poly[0])
			}
		}
	default:
		return LatLng{}, false
	}

	var sum r3.Vector
	n := 0
	for _, ring := range rings {
		// A closed ring repeats its first vertex; count it once.
		if len(ring) > 1 && samePosition(ring[0], ring[len(ring)-1]) {
			ring = ring[:len(ring)-1]
		}
		for _, pos := range ring {
			if len(pos) < 2 {
				continue
			}
			p := s2.PointFromLatLng(s2.LatLngFromDegrees(pos[1], pos[0]))
			sum = sum.Add(p.Vector)
			n++
		}
	}
	if n == 0 || sum.Norm() < 1e-12 {
		return LatLng{}, false
	}
	ll := s2.LatLngFromPoint(s2.Point{Vector: sum.Normalize()})
	return LatLng{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}, true
}

func samePosition(a, b []float64) bool {
	return len(a) >= 2 && len(b) >= 2 && a[0] == b[0] && a[1] == b[1]
}

// cellToken returns the s2 cell token containing ll at s2CellLevel.
func cellToken(ll LatLng) string {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(ll.Lat, ll.Lng)).Parent(s2CellLevel).ToToken()
}

// geohashOf returns the geohash of ll truncated to geohashPrecision.
func geohashOf(ll LatLng) string {
	h := geohash.Encode(ll.Lat, ll.Lng)
	if len(h) > geohashPrecision {
		h = h[:geohashPrecision]
	}
	return h
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// ParseFeatureCollection decodes a GeoJSON FeatureCollection, a single
// Feature, or a bare JSON array of features.
func ParseFeatureCollection(data []byte) ([]Feature, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("decoding features: empty input")
	}
	if data[0] == '[' {
		var features []Feature
		if err := json.Unmarshal(data, &features); err != nil {
			return nil, fmt.Errorf("decoding feature array: %w", err)
		}
		return features, nil
	}

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decoding feature collection: %w", err)
	}
	if fc.Type == "Feature" {
		var f Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding feature: %w", err)
		}
		return []Feature{f}, nil
	}
	return fc.Features, nil
}
