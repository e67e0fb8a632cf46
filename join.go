package countrykey

import (
	"sort"

	"github.com/samber/lo"
)

// Resolver is the registry surface needed to join records against features.
type Resolver interface {
	CountryResolver
	ResolveFeatureToIso2(f *Feature) string
}

// ResolveRecord resolves one record's raw country text: an alias bound in the
// mapping wins, otherwise the text itself is resolved. The alias layer value
// is re-resolved, so a stale code in a hand-edited model still lands on the
// canonical country.
func ResolveRecord(rawCountry string, m *MappingModel, r CountryResolver) string {
	if res := m.ResolveAlias(rawCountry); res.Status == AliasResolved {
		if iso2 := r.ResolveToIso2(res.ISO2); iso2 != "" {
			return iso2
		}
	}
	return r.ResolveToIso2(rawCountry)
}

// Group is the set of records that resolved to one country.
type Group struct {
	ISO2         string   `json:"iso2"`
	DisplayName  string   `json:"displayName"`
	Count        int      `json:"count"`
	RawCountries []string `json:"rawCountries"` // distinct normalized keys, first seen first
}

// Aggregation is the result of Aggregate.
type Aggregation struct {
	Groups     map[string]*Group `json:"groups"`
	Unresolved map[string]int    `json:"unresolved"`
}

// Keys returns the ISO2 codes of all groups, sorted.
func (a *Aggregation) Keys() []string {
	keys := lo.Keys(a.Groups)
	sort.Strings(keys)
	return keys
}

// Count returns the number of records grouped under iso2.
func (a *Aggregation) Count(iso2 string) int {
	if g, ok := a.Groups[iso2]; ok {
		return g.Count
	}
	return 0
}

// Aggregate groups raw country values by canonical ISO2. Values that
// normalize to nothing are ignored; values that do not resolve are counted
// under their normalized key in Unresolved.
func Aggregate(rawCountries []string, m *MappingModel, r CountryResolver) *Aggregation {
	agg := &Aggregation{Groups: map[string]*Group{}, Unresolved: map[string]int{}}
	for _, raw := range rawCountries {
		key := NormalizeKey(raw)
		if key == "" {
			continue
		}
		iso2 := ResolveRecord(key, m, r)
		if iso2 == "" {
			agg.Unresolved[key]++
			continue
		}
		g, ok := agg.Groups[iso2]
		if !ok {
			g = &Group{ISO2: iso2, DisplayName: displayLabel(iso2, m, r)}
			agg.Groups[iso2] = g
		}
		g.Count++
		if !lo.Contains(g.RawCountries, key) {
			g.RawCountries = append(g.RawCountries, key)
		}
	}
	return agg
}

// displayLabel prefers the mapping's label for the code's canonical token.
func displayLabel(iso2 string, m *MappingModel, r CountryResolver) string {
	if m != nil {
		if label := m.DisplayLayer[TokenFromIso2(iso2)]; label != "" {
			return label
		}
	}
	return r.DisplayName(iso2)
}

// FeatureJoin is one feature matched against an Aggregation.
type FeatureJoin struct {
	FeatureID string  `json:"featureId,omitempty"`
	Name      string  `json:"name,omitempty"`
	ISO2      string  `json:"iso2,omitempty"`
	Count     int     `json:"count"`
	Hit       bool    `json:"hit"`
	Centroid  *LatLng `json:"centroid,omitempty"`
	Geohash   string  `json:"geohash,omitempty"`
	CellToken string  `json:"cellToken,omitempty"`
}

// JoinReport is the result of JoinFeatures.
type JoinReport struct {
	Rows []FeatureJoin `json:"rows"`
	// Unmatched lists aggregated ISO2 codes that no feature resolved to.
	Unmatched []string `json:"unmatched"`
}

// JoinFeatures resolves every feature and attaches the aggregated count for
// its country. Each row also carries a label point for the feature.
func JoinFeatures(agg *Aggregation, features []Feature, r Resolver) JoinReport {
	report := JoinReport{Rows: make([]FeatureJoin, 0, len(features))}
	seen := make(map[string]bool)
	for i := range features {
		f := &features[i]
		row := FeatureJoin{
			FeatureID: featureID(f),
			Name:      f.Properties.displayName(),
			ISO2:      r.ResolveFeatureToIso2(f),
		}
		if row.ISO2 != "" {
			row.Count = agg.Count(row.ISO2)
			row.Hit = row.Count > 0
			seen[row.ISO2] = true
		}
		if ll, ok := f.Centroid(); ok {
			row.Centroid = &ll
			row.Geohash = geohashOf(ll)
			row.CellToken = cellToken(ll)
		}
		report.Rows = append(report.Rows, row)
	}
	report.Unmatched = lo.Filter(agg.Keys(), func(iso2 string, _ int) bool {
		return !seen[iso2]
	})
	return report
}

func featureID(f *Feature) string {
	if id := f.ID.String(); id != "" {
		return id
	}
	if f.Properties == nil {
		return ""
	}
	if id := f.Properties.IDLower.String(); id != "" {
		return id
	}
	return f.Properties.IDUpper.String()
}

// ChainTrace exposes every link of the resolution of one raw value, from the
// raw text to the join against a feature.
type ChainTrace struct {
	Raw              KeyInspection `json:"raw"`
	NormalizedKey    string        `json:"normalizedKey"`
	AliasToken       string        `json:"aliasToken,omitempty"`
	AliasStatus      AliasStatus   `json:"aliasStatus"`
	CountryLayerISO2 string        `json:"countryLayerIso2,omitempty"`
	RecordISO2       string        `json:"recordIso2,omitempty"`
	FeatureISO2      string        `json:"featureIso2,omitempty"`
	JoinHit          bool          `json:"joinHit"`
}

// Trace resolves rawCountry through m and r and, when f is non-nil, joins the
// result against f.
func Trace(rawCountry string, m *MappingModel, r Resolver, f *Feature) ChainTrace {
	alias := m.ResolveAlias(rawCountry)
	t := ChainTrace{
		Raw:              Inspect(rawCountry),
		NormalizedKey:    NormalizeKey(rawCountry),
		AliasToken:       alias.Token,
		AliasStatus:      alias.Status,
		CountryLayerISO2: alias.ISO2,
		RecordISO2:       ResolveRecord(rawCountry, m, r),
	}
	if f != nil {
		t.FeatureISO2 = r.ResolveFeatureToIso2(f)
		t.JoinHit = t.RecordISO2 != "" && t.RecordISO2 == t.FeatureISO2
	}
	return t
}

// LegacyDiagnosis checks one legacy code from both sides of the join: as a
// mapped value and as a feature identifier.
type LegacyDiagnosis struct {
	Legacy           string   `json:"legacy"`
	Canonical        string   `json:"canonical"`
	ResolveLegacy    string   `json:"resolveLegacy"`
	ResolveCanonical string   `json:"resolveCanonical"`
	FeatureLegacy    string   `json:"featureLegacy"`
	FeatureCanonical string   `json:"featureCanonical"`
	JoinLegacy       bool     `json:"joinLegacy"`
	JoinCanonical    bool     `json:"joinCanonical"`
	FeatureIDs       []string `json:"featureIds,omitempty"`
	FeatureIDsOK     bool     `json:"featureIdsOk"`
	OK               bool     `json:"ok"`
}

// DiagnoseLegacyCodes runs every legacy code through the resolver and through
// a synthetic feature, and checks that the numeric feature ids of each
// canonical code resolve back to it. Rows are sorted by legacy code.
func DiagnoseLegacyCodes(r Resolver) []LegacyDiagnosis {
	out := make([]LegacyDiagnosis, 0, len(legacyISO2))
	for _, legacy := range sortedKeys(legacyISO2) {
		canon := legacyISO2[legacy]
		d := LegacyDiagnosis{
			Legacy:           legacy,
			Canonical:        canon,
			ResolveLegacy:    r.ResolveToIso2(legacy),
			ResolveCanonical: r.ResolveToIso2(canon),
			FeatureLegacy:    r.ResolveFeatureToIso2(syntheticFeature("", legacy, r.DisplayName(canon))),
			FeatureCanonical: r.ResolveFeatureToIso2(syntheticFeature("", canon, r.DisplayName(canon))),
			FeatureIDsOK:     true,
		}
		d.JoinLegacy = d.ResolveLegacy != "" && d.ResolveLegacy == d.FeatureLegacy
		d.JoinCanonical = d.ResolveCanonical != "" && d.ResolveCanonical == d.FeatureCanonical

		for _, id := range sortedKeys(featureIDISO2) {
			if Canonical(featureIDISO2[id]) != canon {
				continue
			}
			d.FeatureIDs = append(d.FeatureIDs, id)
			if r.ResolveFeatureToIso2(syntheticFeature(id, "", "")) != canon {
				d.FeatureIDsOK = false
			}
		}

		d.OK = d.ResolveLegacy == canon && d.ResolveCanonical == canon &&
			d.FeatureLegacy == canon && d.FeatureCanonical == canon &&
			d.JoinLegacy && d.JoinCanonical && d.FeatureIDsOK
		out = append(out, d)
	}
	return out
}

func syntheticFeature(id, iso2, name string) *Feature {
	return &Feature{
		ID: PropValue(id),
		Properties: &FeatureProperties{
			ISOA2:      PropValue(iso2),
			ISOA2Lower: PropValue(toLower(iso2)),
			Name:       PropValue(name),
		},
	}
}
