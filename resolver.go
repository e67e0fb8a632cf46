package countrykey

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance caps the edit distance accepted by Suggest. Larger
// distances turn every short alias into a candidate.
const maxSuggestDistance = 3

// maxResolveInputLen limits the input considered by Suggest, since edit
// distance is quadratic in input length.
const maxResolveInputLen = 256

// ResolveToIso2 resolves arbitrary text (a code, an ISO3, an English or
// Japanese name, or any registered alias) to a canonical ISO2. It returns ""
// when nothing matches and never panics.
//
// Resolution order:
//  1. empty after NormalizeKey -> ""
//  2. bare two-letter legacy code -> its canonical code
//  3. bare two-letter registered code, or the target of a legacy code -> itself
//  4. bare three-letter registered ISO3 -> its ISO2
//  5. loose alias lookup
//
// Legacy codes are checked before anything else so that a coincidental alias
// can never shadow them. Every result is passed through Canonical.
func (r *Registry) ResolveToIso2(value string) string {
	raw := NormalizeKey(value)
	if raw == "" {
		return ""
	}
	upper := toUpper(raw)
	if isAlpha(upper, 2) {
		if canon, ok := legacyISO2[upper]; ok {
			return canon
		}
		if _, ok := r.byISO2[upper]; ok || legacyTargets[upper] {
			return Canonical(upper)
		}
	}
	if isAlpha(upper, 3) {
		if iso2, ok := r.byISO3[upper]; ok {
			return Canonical(iso2)
		}
	}
	if iso2, ok := r.byAlias[looseNormalize(raw)]; ok {
		return Canonical(iso2)
	}
	return ""
}

// ResolveFeatureToIso2 resolves a feature from an external geometry dataset.
// It probes ISO alpha-2 properties, then ISO alpha-3, then names, then the
// feature identifiers (first as text, then as numeric dataset ids). A nil
// feature or missing properties yield "".
func (r *Registry) ResolveFeatureToIso2(f *Feature) string {
	if f == nil {
		return ""
	}
	props := f.Properties
	if props == nil {
		props = &FeatureProperties{}
	}

	for _, probe := range [][]PropValue{props.isoCandidates(), props.nameCandidates()} {
		for _, c := range probe {
			if iso2 := r.ResolveToIso2(c.String()); iso2 != "" {
				return iso2
			}
		}
	}

	for _, c := range []PropValue{f.ID, props.IDLower, props.IDUpper} {
		id := strings.TrimSpace(c.String())
		if id == "" {
			continue
		}
		if iso2 := r.ResolveToIso2(id); iso2 != "" {
			return iso2
		}
		if iso2 := r.resolveFeatureID(id); iso2 != "" {
			return iso2
		}
	}
	return ""
}

// resolveFeatureID looks a numeric dataset id up in the static feature table,
// then in the numeric codes learned from locale data. Zero-padded ids ("076")
// are tried unpadded as well.
func (r *Registry) resolveFeatureID(id string) string {
	keys := []string{id}
	if t := strings.TrimLeft(id, "0"); t != "" && t != id {
		keys = append(keys, t)
	}
	for _, k := range keys {
		if iso2, ok := featureIDISO2[k]; ok {
			return Canonical(iso2)
		}
	}
	for _, k := range keys {
		if iso2, ok := r.byNumeric[k]; ok {
			return iso2
		}
	}
	return ""
}

// Suggestion is a candidate alias for input that did not resolve.
type Suggestion struct {
	Alias    string `json:"alias"`
	ISO2     string `json:"iso2"`
	Distance int    `json:"distance"`
}

// Suggest returns up to limit registered aliases within maxDist edits of
// value, closest first, at most one per country. Distances are measured on
// loose keys, so case, width and punctuation never count as edits.
func (r *Registry) Suggest(value string, maxDist, limit int) []Suggestion {
	if runes := []rune(value); len(runes) > maxResolveInputLen {
		value = string(runes[:maxResolveInputLen])
	}
	query := looseNormalize(value)
	if query == "" || limit <= 0 {
		return nil
	}
	if maxDist > maxSuggestDistance {
		maxDist = maxSuggestDistance
	}

	best := make(map[string]Suggestion)
	for _, rec := range r.records {
		iso2 := Canonical(rec.ISO2)
		for _, alias := range rec.Aliases {
			key := looseNormalize(alias)
			if key == "" {
				continue
			}
			dist := levenshtein.ComputeDistance(query, key)
			if dist > maxDist {
				continue
			}
			if cur, ok := best[iso2]; !ok || dist < cur.Distance {
				best[iso2] = Suggestion{Alias: alias, ISO2: iso2, Distance: dist}
			}
		}
	}

	out := make([]Suggestion, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ISO2 < out[j].ISO2
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
