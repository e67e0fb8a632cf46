package countrykey

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// MappingVersion is the schema version written by this package. Version 1 was
// a flat {rawCountry: value} object and is only ever read.
const MappingVersion = 2

// timeLayout is ISO-8601 with millisecond precision in UTC.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// nowFunc is replaced in tests.
var nowFunc = time.Now

func timestamp() string {
	return nowFunc().UTC().Format(timeLayout)
}

func validTimestamp(s string) bool {
	if s == "" {
		return false
	}
	_, err := time.Parse(time.RFC3339Nano, s)
	return err == nil
}

// CountryResolver is what the mapping model needs from a registry.
type CountryResolver interface {
	ResolveToIso2(value string) string
	DisplayName(iso2 string) string
}

// AliasMeta is per-alias bookkeeping.
type AliasMeta struct {
	UpdatedAt string `json:"updatedAt"`
}

// MappingModel is the persisted, user-editable mapping from raw country text
// to canonical codes. Aliases point at tokens and tokens point at a country
// and a display label, so many spellings can share one token and a label can
// be edited without touching alias bindings.
//
// The model is a plain value: it is not safe for concurrent mutation, and each
// Upsert or DeleteAlias call is the unit of change. The storage collaborator
// always reads and writes it whole.
type MappingModel struct {
	Version      int                  `json:"version"`
	UpdatedAt    string               `json:"updatedAt"`
	AliasLayer   map[string]string    `json:"aliasLayer"`   // normalized raw country -> token
	CountryLayer map[string]string    `json:"countryLayer"` // token -> iso2
	DisplayLayer map[string]string    `json:"displayLayer"` // token -> display label
	AliasMeta    map[string]AliasMeta `json:"aliasMeta"`    // normalized raw country -> meta
}

// NewMappingModel returns an empty version 2 model stamped with the current time.
func NewMappingModel() *MappingModel {
	return &MappingModel{
		Version:      MappingVersion,
		UpdatedAt:    timestamp(),
		AliasLayer:   map[string]string{},
		CountryLayer: map[string]string{},
		DisplayLayer: map[string]string{},
		AliasMeta:    map[string]AliasMeta{},
	}
}

// Clone returns a deep copy. Cloning nil yields an empty model.
func (m *MappingModel) Clone() *MappingModel {
	if m == nil {
		return NewMappingModel()
	}
	c := &MappingModel{
		Version:      m.Version,
		UpdatedAt:    m.UpdatedAt,
		AliasLayer:   make(map[string]string, len(m.AliasLayer)),
		CountryLayer: make(map[string]string, len(m.CountryLayer)),
		DisplayLayer: make(map[string]string, len(m.DisplayLayer)),
		AliasMeta:    make(map[string]AliasMeta, len(m.AliasMeta)),
	}
	for k, v := range m.AliasLayer {
		c.AliasLayer[k] = v
	}
	for k, v := range m.CountryLayer {
		c.CountryLayer[k] = v
	}
	for k, v := range m.DisplayLayer {
		c.DisplayLayer[k] = v
	}
	for k, v := range m.AliasMeta {
		c.AliasMeta[k] = v
	}
	return c
}

// TokenFromIso2 derives the canonical token for a country code ("YE" -> "iso2_ye").
func TokenFromIso2(iso2 string) string {
	code := toUpper(NormalizeKey(iso2))
	if code == "" {
		return ""
	}
	return "iso2_" + toLower(code)
}

// NewToken returns a fresh opaque token for an alias group that should not be
// tied to a country code.
func NewToken() string {
	return "u_" + uuid.NewString()
}

// Normalize returns a sanitized copy of m. Alias keys and display labels are
// re-normalized, tokens are folded to [a-z0-9_-], and every country layer
// value is re-resolved through r; entries that end up empty or unresolvable
// are dropped. Normalize is safe on nil and idempotent.
func (m *MappingModel) Normalize(r CountryResolver) *MappingModel {
	now := timestamp()
	next := NewMappingModel()
	if m == nil {
		next.UpdatedAt = now
		return next
	}

	// Keys are visited in sorted order so that colliding spellings merge the
	// same way every time.
	for _, raw := range sortedKeys(m.AliasLayer) {
		key, tok := NormalizeKey(raw), normalizeToken(m.AliasLayer[raw])
		if key == "" || tok == "" {
			continue
		}
		next.AliasLayer[key] = tok
	}
	for _, token := range sortedKeys(m.CountryLayer) {
		tok, iso2 := normalizeToken(token), r.ResolveToIso2(m.CountryLayer[token])
		if tok == "" || iso2 == "" {
			continue
		}
		next.CountryLayer[tok] = iso2
	}
	for _, token := range sortedKeys(m.DisplayLayer) {
		tok, text := normalizeToken(token), NormalizeKey(m.DisplayLayer[token])
		if tok == "" || text == "" {
			continue
		}
		next.DisplayLayer[tok] = text
	}

	fallback := now
	if validTimestamp(m.UpdatedAt) {
		fallback = m.UpdatedAt
	}
	for _, raw := range sortedKeys(m.AliasMeta) {
		meta, key := m.AliasMeta[raw], NormalizeKey(raw)
		if key == "" {
			continue
		}
		if !validTimestamp(meta.UpdatedAt) {
			meta.UpdatedAt = fallback
		}
		next.AliasMeta[key] = meta
	}
	next.UpdatedAt = fallback
	return next
}

// ApplyLegacyMigration merges a flat version 1 mapping into a copy of m. Each
// entry whose value resolves is bound to the token derived from its code, with
// the country's English name as display label. Entries that do not resolve
// are skipped entirely. Replaying the same legacy mapping is harmless.
func (m *MappingModel) ApplyLegacyMigration(legacy map[string]string, r CountryResolver) *MappingModel {
	next := m.Clone()
	now := timestamp()
	// Sorted so that two raw keys normalizing to the same alias merge the
	// same way on every load.
	for _, raw := range sortedKeys(legacy) {
		key := NormalizeKey(raw)
		iso2 := r.ResolveToIso2(legacy[raw])
		if key == "" || iso2 == "" {
			continue
		}
		token := TokenFromIso2(iso2)
		next.AliasLayer[key] = token
		next.CountryLayer[token] = iso2
		if label := NormalizeKey(r.DisplayName(iso2)); label != "" {
			next.DisplayLayer[token] = label
		} else {
			next.DisplayLayer[token] = iso2
		}
		next.AliasMeta[key] = AliasMeta{UpdatedAt: now}
	}
	next.UpdatedAt = now
	return next
}

// AliasStatus says how far an alias lookup got.
type AliasStatus string

const (
	AliasEmpty    AliasStatus = "empty"    // raw text normalizes to nothing
	AliasUnmapped AliasStatus = "unmapped" // no alias registered
	AliasBroken   AliasStatus = "broken"   // alias registered, token has no country
	AliasResolved AliasStatus = "resolved"
)

// AliasResolution is the result of ResolveAlias.
type AliasResolution struct {
	RawCountry string      `json:"rawCountry"`
	Token      string      `json:"token,omitempty"`
	ISO2       string      `json:"iso2,omitempty"`
	Status     AliasStatus `json:"status"`
}

// ResolveAlias looks raw country text up in the alias and country layers.
func (m *MappingModel) ResolveAlias(rawCountry string) AliasResolution {
	key := NormalizeKey(rawCountry)
	if key == "" {
		return AliasResolution{Status: AliasEmpty}
	}
	res := AliasResolution{RawCountry: key, Status: AliasUnmapped}
	if m == nil {
		return res
	}
	token, ok := m.AliasLayer[key]
	if !ok || token == "" {
		return res
	}
	res.Token = token
	res.Status = AliasBroken
	if iso2 := m.CountryLayer[token]; iso2 != "" {
		res.ISO2 = iso2
		res.Status = AliasResolved
	}
	return res
}

// MappingEntry is one user edit.
type MappingEntry struct {
	RawCountry  string `json:"rawCountry"`
	Token       string `json:"token"`
	ISO2        string `json:"iso2"`
	DisplayName string `json:"displayName,omitempty"`
}

// Upsert binds RawCountry to Token and Token to the canonical form of ISO2,
// and sets the display label when one is given. It changes nothing and
// returns false if the raw text, token or code is empty after normalization
// or the code does not resolve.
func (m *MappingModel) Upsert(e MappingEntry, r CountryResolver) bool {
	key := NormalizeKey(e.RawCountry)
	token := normalizeToken(e.Token)
	label := NormalizeKey(e.DisplayName)
	iso2 := r.ResolveToIso2(e.ISO2)
	if key == "" || token == "" || iso2 == "" {
		return false
	}
	m.ensureLayers()

	now := timestamp()
	m.AliasLayer[key] = token
	m.CountryLayer[token] = iso2
	if label != "" {
		m.DisplayLayer[token] = label
	}
	m.AliasMeta[key] = AliasMeta{UpdatedAt: now}
	m.UpdatedAt = now
	return true
}

// DeleteAlias removes one alias and its metadata. The token's country and
// display entries stay, so other aliases sharing the token keep resolving.
// It reports whether an alias was removed.
func (m *MappingModel) DeleteAlias(rawCountry string) bool {
	key := NormalizeKey(rawCountry)
	if key == "" || m == nil {
		return false
	}
	_, existed := m.AliasLayer[key]
	delete(m.AliasLayer, key)
	delete(m.AliasMeta, key)
	m.UpdatedAt = timestamp()
	return existed
}

func (m *MappingModel) ensureLayers() {
	if m.Version == 0 {
		m.Version = MappingVersion
	}
	if m.AliasLayer == nil {
		m.AliasLayer = map[string]string{}
	}
	if m.CountryLayer == nil {
		m.CountryLayer = map[string]string{}
	}
	if m.DisplayLayer == nil {
		m.DisplayLayer = map[string]string{}
	}
	if m.AliasMeta == nil {
		m.AliasMeta = map[string]AliasMeta{}
	}
}

// MappingRow is a flattened alias binding, for listings.
type MappingRow struct {
	RawCountry  string `json:"rawCountry"`
	Token       string `json:"token"`
	ISO2        string `json:"iso2,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// Rows lists every alias binding sorted by raw country.
func (m *MappingModel) Rows() []MappingRow {
	if m == nil {
		return nil
	}
	rows := make([]MappingRow, 0, len(m.AliasLayer))
	for _, raw := range sortedKeys(m.AliasLayer) {
		token := m.AliasLayer[raw]
		rows = append(rows, MappingRow{
			RawCountry:  raw,
			Token:       token,
			ISO2:        m.CountryLayer[token],
			DisplayName: m.DisplayLayer[token],
			UpdatedAt:   m.AliasMeta[raw].UpdatedAt,
		})
	}
	return rows
}

// Encode renders the model in its persisted JSON form. Layers are always
// written as objects, never null.
func (m *MappingModel) Encode() ([]byte, error) {
	c := m.Clone()
	c.Version = MappingVersion
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding mapping model: %w", err)
	}
	return data, nil
}

// ParseMappingModel decodes a persisted model leniently. It fails only when
// data is not a JSON object; malformed layers, non-string values and broken
// metadata are dropped or left for Normalize to repair. The result is not
// normalized.
func ParseMappingModel(data []byte) (*MappingModel, error) {
	var top map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decoding mapping model: %w", err)
	}
	m := &MappingModel{
		Version:      MappingVersion,
		UpdatedAt:    decodeString(top["updatedAt"]),
		AliasLayer:   decodeStringMap(top["aliasLayer"]),
		CountryLayer: decodeStringMap(top["countryLayer"]),
		DisplayLayer: decodeStringMap(top["displayLayer"]),
		AliasMeta:    map[string]AliasMeta{},
	}
	var metas map[string]jsoniter.RawMessage
	if raw := top["aliasMeta"]; len(raw) > 0 && json.Unmarshal(raw, &metas) == nil {
		for key, raw := range metas {
			var meta map[string]jsoniter.RawMessage
			if json.Unmarshal(raw, &meta) != nil {
				m.AliasMeta[key] = AliasMeta{}
				continue
			}
			m.AliasMeta[key] = AliasMeta{UpdatedAt: decodeString(meta["updatedAt"])}
		}
	}
	return m, nil
}

// ParseLegacyMapping decodes a flat version 1 mapping, keeping only string values.
func ParseLegacyMapping(data []byte) (map[string]string, error) {
	var top map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decoding legacy mapping: %w", err)
	}
	out := make(map[string]string, len(top))
	for k, raw := range top {
		if s, ok := stringValue(raw); ok {
			out[k] = s
		}
	}
	return out, nil
}

// stringValue decodes raw only if it is a JSON string; null, numbers and
// containers are rejected.
func stringValue(raw jsoniter.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

func decodeString(raw jsoniter.RawMessage) string {
	s, _ := stringValue(raw)
	return s
}

func decodeStringMap(raw jsoniter.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	var values map[string]jsoniter.RawMessage
	if json.Unmarshal(raw, &values) != nil {
		return out
	}
	for k, v := range values {
		if s, ok := stringValue(v); ok {
			out[k] = s
		}
	}
	return out
}
