package countrykey

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// CountryRecord is the canonical identity of one country slot.
type CountryRecord struct {
	ISO2    string   `json:"iso2"`
	ISO3    string   `json:"iso3,omitempty"`
	EnName  string   `json:"enName"`
	JaName  string   `json:"jaName,omitempty"`
	Aliases []string `json:"aliases"`
}

// RegionName is one entry produced by a LocaleProvider.
type RegionName struct {
	Code     string // ISO 3166-1 alpha-2
	ISO3     string // ISO 3166-1 alpha-3, may be empty
	Numeric  int    // ISO 3166-1 numeric / UN M.49, 0 if unknown
	English  string
	Japanese string
}

// LocaleProvider supplies localized region names. It is consulted once, when a
// Registry is built.
type LocaleProvider interface {
	RegionNames() ([]RegionName, error)
}

// RegistryConfig contains configuration options for Registry construction.
type RegistryConfig struct {
	ExtraAliases map[string][]string // ISO2 -> additional aliases
	Locale       LocaleProvider      // nil disables locale names
}

// Option is a functional option for configuring a Registry.
type Option func(*RegistryConfig)

// WithExtraAliases adds caller-supplied aliases keyed by ISO2. Aliases for codes
// that end up unregistered are ignored.
func WithExtraAliases(aliases map[string][]string) Option {
	return func(c *RegistryConfig) {
		if c.ExtraAliases == nil {
			c.ExtraAliases = make(map[string][]string, len(aliases))
		}
		for code, list := range aliases {
			key := toUpper(strings.TrimSpace(code))
			c.ExtraAliases[key] = append(c.ExtraAliases[key], list...)
		}
	}
}

// WithLocaleProvider replaces the locale name source. Passing nil builds the
// registry from the static fallback table.
func WithLocaleProvider(p LocaleProvider) Option {
	return func(c *RegistryConfig) {
		c.Locale = p
	}
}

// defaultConfig returns the default configuration.
func defaultConfig() *RegistryConfig {
	return &RegistryConfig{
		ExtraAliases: map[string][]string{},
		Locale:       DisplayNames{},
	}
}

// Registry is the immutable set of country records plus reverse indices.
// Build it once with NewRegistry and share it by reference; it is safe for
// concurrent reads.
type Registry struct {
	records   []CountryRecord   // sorted by English name
	byISO2    map[string]int    // iso2 -> index into records
	byISO3    map[string]string // iso3 -> canonical iso2
	byAlias   map[string]string // loose alias key -> canonical iso2
	byNumeric map[string]string // numeric code -> canonical iso2
	fallback  bool
	warnings  []string
}

var errNoLocaleProvider = errors.New("no locale provider configured")

// NewRegistry builds the registry. It never fails: when locale names are
// unavailable it degrades to the static fallback table and records a warning.
func NewRegistry(opts ...Option) *Registry {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	r := &Registry{
		byISO2:    make(map[string]int),
		byISO3:    make(map[string]string),
		byAlias:   make(map[string]string),
		byNumeric: make(map[string]string),
	}
	b := &registryBuilder{cfg: cfg, byISO2: make(map[string]*CountryRecord)}

	names, err := regionNames(cfg.Locale)
	if err != nil {
		r.warn("failed to load locale region names: %v", err)
	}
	for _, n := range names {
		if b.push(n.Code, n.English, n.Japanese, n.ISO3) && n.Numeric > 0 {
			b.numeric = append(b.numeric, numericCode{id: strconv.Itoa(n.Numeric), iso2: toUpper(n.Code)})
		}
	}

	if len(b.order) == 0 {
		for _, code := range sortedKeys(fallbackISO3) {
			b.push(code, code, code, fallbackISO3[code])
		}
		r.fallback = true
		r.warn("country normalization fallback is active; names may be limited")
	}

	for _, code := range sortedKeys(shadowRecords) {
		b.shadow(code, shadowRecords[code])
	}

	r.index(b)
	return r
}

// regionNames calls the provider, turning a panic into an error so that a
// broken locale source degrades instead of aborting construction.
func regionNames(p LocaleProvider) (names []RegionName, err error) {
	if p == nil {
		return nil, errNoLocaleProvider
	}
	defer func() {
		if rec := recover(); rec != nil {
			names, err = nil, fmt.Errorf("locale provider panicked: %v", rec)
		}
	}()
	return p.RegionNames()
}

func (r *Registry) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	log.Printf("warning: %s", msg)
}

type numericCode struct {
	id   string
	iso2 string
}

// registryBuilder accumulates records in insertion order. The first record
// pushed for a code wins.
type registryBuilder struct {
	cfg     *RegistryConfig
	byISO2  map[string]*CountryRecord
	order   []*CountryRecord
	numeric []numericCode
}

func (b *registryBuilder) push(code, enName, jaName, iso3 string) bool {
	code = toUpper(strings.TrimSpace(code))
	if !isAlpha(code, 2) {
		return false
	}
	if _, ok := b.byISO2[code]; ok {
		return false
	}
	if enName == "" {
		enName = code
	}
	aliases := []string{code, enName}
	if jaName != "" && jaName != code {
		aliases = append(aliases, jaName)
	}
	aliases = append(aliases, extraAliases[code]...)
	aliases = append(aliases, b.cfg.ExtraAliases[code]...)

	iso3 = toUpper(strings.TrimSpace(iso3))
	if !isAlpha(iso3, 3) || iso3 == "ZZZ" {
		iso3 = fallbackISO3[code]
	}
	rec := &CountryRecord{
		ISO2:    code,
		ISO3:    iso3,
		EnName:  enName,
		Aliases: lo.Uniq(lo.Compact(aliases)),
	}
	if jaName != code {
		rec.JaName = jaName
	}
	b.byISO2[code] = rec
	b.order = append(b.order, rec)
	return true
}

// shadow registers code as a copy of another record's identity, keeping every
// alias of the source. It does nothing if code is already registered or the
// source is missing.
func (b *registryBuilder) shadow(code string, s shadowRecord) {
	if _, ok := b.byISO2[code]; ok {
		return
	}
	src, ok := b.byISO2[s.Source]
	if !ok {
		return
	}
	aliases := append([]string{}, src.Aliases...)
	aliases = append(aliases, code)
	aliases = append(aliases, extraAliases[code]...)
	aliases = append(aliases, b.cfg.ExtraAliases[code]...)
	rec := &CountryRecord{
		ISO2:    code,
		ISO3:    s.ISO3,
		EnName:  src.EnName,
		JaName:  src.JaName,
		Aliases: lo.Uniq(lo.Compact(aliases)),
	}
	b.byISO2[code] = rec
	b.order = append(b.order, rec)
}

// index builds the reverse indices in insertion order (first writer wins) and
// sorts the public record list.
func (r *Registry) index(b *registryBuilder) {
	for _, rec := range b.order {
		canon := Canonical(rec.ISO2)
		if rec.ISO3 != "" {
			if _, ok := r.byISO3[rec.ISO3]; !ok {
				r.byISO3[rec.ISO3] = canon
			}
		}
		for _, alias := range rec.Aliases {
			key := looseNormalize(alias)
			if key == "" {
				continue
			}
			if _, ok := r.byAlias[key]; !ok {
				r.byAlias[key] = canon
			}
		}
	}
	// Bare legacy codes always point at their canonical record, whatever
	// alias happened to claim the key first.
	for legacy, canon := range legacyISO2 {
		if _, ok := b.byISO2[canon]; ok {
			r.byAlias[looseNormalize(legacy)] = canon
		}
	}
	for _, n := range b.numeric {
		if _, ok := r.byNumeric[n.id]; !ok {
			r.byNumeric[n.id] = Canonical(n.iso2)
		}
	}

	r.records = make([]CountryRecord, 0, len(b.order))
	for _, rec := range b.order {
		r.records = append(r.records, *rec)
	}
	col := collate.New(language.English)
	sort.SliceStable(r.records, func(i, j int) bool {
		if c := col.CompareString(r.records[i].EnName, r.records[j].EnName); c != 0 {
			return c < 0
		}
		return r.records[i].ISO2 < r.records[j].ISO2
	})
	for i, rec := range r.records {
		r.byISO2[rec.ISO2] = i
	}
}

// Records returns a copy of all records, sorted by English name.
func (r *Registry) Records() []CountryRecord {
	out := make([]CountryRecord, len(r.records))
	for i, rec := range r.records {
		rec.Aliases = append([]string(nil), rec.Aliases...)
		out[i] = rec
	}
	return out
}

// Record returns the record registered under iso2. Legacy codes are looked up
// as-is, not canonicalized.
func (r *Registry) Record(iso2 string) (CountryRecord, bool) {
	i, ok := r.byISO2[toUpper(strings.TrimSpace(iso2))]
	if !ok {
		return CountryRecord{}, false
	}
	rec := r.records[i]
	rec.Aliases = append([]string(nil), rec.Aliases...)
	return rec, true
}

// DisplayName returns the English name for iso2, or iso2 itself when the code
// is not registered.
func (r *Registry) DisplayName(iso2 string) string {
	if rec, ok := r.Record(iso2); ok {
		return rec.EnName
	}
	return iso2
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}

// Fallback reports whether the registry was built from the static fallback
// table because locale names were unavailable.
func (r *Registry) Fallback() bool {
	return r.fallback
}

// Warnings returns the degradation warnings emitted during construction.
func (r *Registry) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

// DisplayNames is the default LocaleProvider, backed by the CLDR data compiled
// into golang.org/x/text.
type DisplayNames struct{}

// RegionNames enumerates every two-letter code that x/text knows as a country
// and names it in English and Japanese.
func (DisplayNames) RegionNames() ([]RegionName, error) {
	en := display.Regions(language.English)
	if en == nil {
		return nil, errors.New("no English region names in locale data")
	}
	ja := display.Regions(language.Japanese)

	var out []RegionName
	for i := 'A'; i <= 'Z'; i++ {
		for j := 'A'; j <= 'Z'; j++ {
			code := string([]rune{i, j})
			region, err := language.ParseRegion(code)
			if err != nil || region.String() != code || !region.IsCountry() {
				continue
			}
			// Deprecated codes are left to the legacy table.
			if region.Canonicalize().String() != code {
				continue
			}
			name := en.Name(region)
			if name == "" || name == code || strings.Contains(toLower(name), "unknown region") {
				continue
			}
			rn := RegionName{
				Code:    code,
				ISO3:    region.ISO3(),
				Numeric: region.M49(),
				English: name,
			}
			if ja != nil {
				rn.Japanese = ja.Name(region)
			}
			out = append(out, rn)
		}
	}
	return out, nil
}

// StaticNames is a LocaleProvider over a fixed list, used for pre-generated
// name tables and tests.
type StaticNames []RegionName

// RegionNames returns the list unchanged.
func (s StaticNames) RegionNames() ([]RegionName, error) {
	return s, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
