package countrykey

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// freezeTime pins timestamps for the duration of a test.
func freezeTime(t *testing.T, at time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = prev })
}

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func TestNewMappingModel(t *testing.T) {
	freezeTime(t, testNow)
	m := NewMappingModel()
	if m.Version != 2 {
		t.Errorf("Version = %d, want 2", m.Version)
	}
	if m.UpdatedAt != "2024-05-01T09:30:00.000Z" {
		t.Errorf("UpdatedAt = %q", m.UpdatedAt)
	}
	if m.AliasLayer == nil || m.CountryLayer == nil || m.DisplayLayer == nil || m.AliasMeta == nil {
		t.Error("layers must be non-nil")
	}
}

func TestTokenFromIso2(t *testing.T) {
	for in, want := range map[string]string{"YE": "iso2_ye", " jp ": "iso2_jp", "": ""} {
		if got := TokenFromIso2(in); got != want {
			t.Errorf("TokenFromIso2(%q) = %q, want %q", in, got, want)
		}
	}
	tok := NewToken()
	if !strings.HasPrefix(tok, "u_") || normalizeToken(tok) != tok {
		t.Errorf("NewToken() = %q is not a normalized token", tok)
	}
	if NewToken() == tok {
		t.Error("NewToken returned the same token twice")
	}
}

func TestUpsertAndResolveAlias(t *testing.T) {
	r := testRegistry(t)
	m := NewMappingModel()
	if !m.Upsert(MappingEntry{RawCountry: "X", Token: "t", ISO2: "CN", DisplayName: "China"}, r) {
		t.Fatal("Upsert rejected a valid entry")
	}
	got := m.ResolveAlias("X")
	want := AliasResolution{RawCountry: "X", Token: "t", ISO2: "CN", Status: AliasResolved}
	if got != want {
		t.Errorf("ResolveAlias(X) = %+v, want %+v", got, want)
	}
	if m.DisplayLayer["t"] != "China" {
		t.Errorf("display label = %q", m.DisplayLayer["t"])
	}
	if m.AliasMeta["X"].UpdatedAt == "" {
		t.Error("alias metadata not stamped")
	}
}

func TestUpsertCanonicalizes(t *testing.T) {
	r := testRegistry(t)
	m := NewMappingModel()
	ok := m.Upsert(MappingEntry{RawCountry: "  Y\u200bemen ", Token: "My Token!", ISO2: "yd"}, r)
	if !ok {
		t.Fatal("Upsert rejected a valid entry")
	}
	if got := m.AliasLayer["Yemen"]; got != "my_token" {
		t.Errorf("alias token = %q, want my_token", got)
	}
	if got := m.CountryLayer["my_token"]; got != "YE" {
		t.Errorf("country = %q, want YE", got)
	}
	if _, ok := m.DisplayLayer["my_token"]; ok {
		t.Error("empty display name must not be written")
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	r := testRegistry(t)
	tests := []struct {
		name  string
		entry MappingEntry
	}{
		{name: "empty raw", entry: MappingEntry{RawCountry: " ", Token: "t", ISO2: "CN"}},
		{name: "empty token", entry: MappingEntry{RawCountry: "X", Token: "!!", ISO2: "CN"}},
		{name: "empty iso2", entry: MappingEntry{RawCountry: "X", Token: "t", ISO2: ""}},
		{name: "unknown iso2", entry: MappingEntry{RawCountry: "X", Token: "t", ISO2: "QQ"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMappingModel()
			before := m.Clone()
			if m.Upsert(tt.entry, r) {
				t.Fatal("Upsert accepted an invalid entry")
			}
			if !reflect.DeepEqual(m, before) {
				t.Errorf("rejected Upsert modified the model: %+v", m)
			}
		})
	}
}

func TestResolveAliasStatus(t *testing.T) {
	m := NewMappingModel()
	m.AliasLayer["Broken"] = "orphan"
	m.AliasLayer["Yemen"] = "iso2_ye"
	m.CountryLayer["iso2_ye"] = "YE"

	tests := []struct {
		raw  string
		want AliasResolution
	}{
		{"", AliasResolution{Status: AliasEmpty}},
		{"Nowhere", AliasResolution{RawCountry: "Nowhere", Status: AliasUnmapped}},
		{"Broken", AliasResolution{RawCountry: "Broken", Token: "orphan", Status: AliasBroken}},
		{" Yemen", AliasResolution{RawCountry: "Yemen", Token: "iso2_ye", ISO2: "YE", Status: AliasResolved}},
	}
	for _, tt := range tests {
		if got := m.ResolveAlias(tt.raw); got != tt.want {
			t.Errorf("ResolveAlias(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}

	var nilModel *MappingModel
	if got := nilModel.ResolveAlias("Yemen"); got.Status != AliasUnmapped {
		t.Errorf("nil model status = %q", got.Status)
	}
}

func TestDeleteAliasKeepsSharedToken(t *testing.T) {
	r := testRegistry(t)
	m := NewMappingModel()
	m.Upsert(MappingEntry{RawCountry: "Yemen", Token: "iso2_ye", ISO2: "YE", DisplayName: "Yemen"}, r)
	m.Upsert(MappingEntry{RawCountry: "イエメン", Token: "iso2_ye", ISO2: "YE"}, r)

	if !m.DeleteAlias("Yemen") {
		t.Fatal("DeleteAlias reported nothing removed")
	}
	if got := m.ResolveAlias("Yemen").Status; got != AliasUnmapped {
		t.Errorf("deleted alias status = %q, want unmapped", got)
	}
	if _, ok := m.AliasMeta["Yemen"]; ok {
		t.Error("alias metadata survived deletion")
	}
	if got := m.ResolveAlias("イエメン"); got.ISO2 != "YE" {
		t.Errorf("sibling alias = %+v, want it still resolved", got)
	}
	if m.DisplayLayer["iso2_ye"] != "Yemen" {
		t.Error("display label of shared token was removed")
	}
	if m.DeleteAlias("Yemen") {
		t.Error("deleting a missing alias reported success")
	}
}

func malformedModel() *MappingModel {
	return &MappingModel{
		Version:   7,
		UpdatedAt: "yesterday",
		AliasLayer: map[string]string{
			" Y\u200bemen ": "ISO2 YE!!",
			"Yemen":         "iso2_ye",
			"   ":           "iso2_jp",
			"Japan":         "***",
			"ＹＥ":            "iso2__ye",
		},
		CountryLayer: map[string]string{
			"ISO2_YE":   "yd",
			"iso2_jp":   "Japan",
			"bad":       "zz-top",
			"":          "YE",
			"iso2_vn":   "VNM",
			"iso2_tp__": " tp ",
		},
		DisplayLayer: map[string]string{
			"iso2_ye": "  Yemen\u200b ",
			"iso2_jp": "\u200b",
			"!!":      "Nothing",
		},
		AliasMeta: map[string]AliasMeta{
			"Yemen":      {UpdatedAt: "garbage"},
			"ＹＥ":         {UpdatedAt: "2023-01-02T03:04:05.000Z"},
			"\u200b\u200b": {UpdatedAt: "2023-01-02T03:04:05.000Z"},
		},
	}
}

func TestNormalizeRepairsModel(t *testing.T) {
	freezeTime(t, testNow)
	r := testRegistry(t)
	n := malformedModel().Normalize(r)

	if n.Version != 2 {
		t.Errorf("Version = %d, want 2", n.Version)
	}
	if n.UpdatedAt != "2024-05-01T09:30:00.000Z" {
		t.Errorf("UpdatedAt = %q, want the current time", n.UpdatedAt)
	}
	wantAlias := map[string]string{"Yemen": "iso2_ye", "YE": "iso2_ye"}
	if !reflect.DeepEqual(n.AliasLayer, wantAlias) {
		t.Errorf("AliasLayer = %v, want %v", n.AliasLayer, wantAlias)
	}
	wantCountry := map[string]string{"iso2_ye": "YE", "iso2_jp": "JP", "iso2_vn": "VD", "iso2_tp": "TL"}
	if !reflect.DeepEqual(n.CountryLayer, wantCountry) {
		t.Errorf("CountryLayer = %v, want %v", n.CountryLayer, wantCountry)
	}
	wantDisplay := map[string]string{"iso2_ye": "Yemen"}
	if !reflect.DeepEqual(n.DisplayLayer, wantDisplay) {
		t.Errorf("DisplayLayer = %v, want %v", n.DisplayLayer, wantDisplay)
	}
	if got := n.AliasMeta["Yemen"].UpdatedAt; got != "2024-05-01T09:30:00.000Z" {
		t.Errorf("invalid meta timestamp repaired to %q", got)
	}
	if got := n.AliasMeta["YE"].UpdatedAt; got != "2023-01-02T03:04:05.000Z" {
		t.Errorf("valid meta timestamp changed to %q", got)
	}
	if len(n.AliasMeta) != 2 {
		t.Errorf("AliasMeta = %v, want 2 entries", n.AliasMeta)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	freezeTime(t, testNow)
	r := testRegistry(t)
	models := []*MappingModel{
		nil,
		{},
		malformedModel(),
		NewMappingModel().ApplyLegacyMigration(DefaultSeedMapping, r),
	}
	for i, m := range models {
		once := m.Normalize(r)
		twice := once.Normalize(r)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("model %d: Normalize not idempotent:\n once: %+v\ntwice: %+v", i, once, twice)
		}
	}
}

func TestNormalizeKeepsValidTimestamp(t *testing.T) {
	freezeTime(t, testNow)
	m := NewMappingModel()
	m.UpdatedAt = "2020-02-02T02:02:02.000Z"
	m.AliasLayer["Yemen"] = "iso2_ye"
	m.AliasMeta["Yemen"] = AliasMeta{}
	n := m.Normalize(testRegistry(t))
	if n.UpdatedAt != "2020-02-02T02:02:02.000Z" {
		t.Errorf("UpdatedAt = %q, want the stored value", n.UpdatedAt)
	}
	if got := n.AliasMeta["Yemen"].UpdatedAt; got != "2020-02-02T02:02:02.000Z" {
		t.Errorf("missing meta timestamp = %q, want the model timestamp", got)
	}
}

func TestApplyLegacyMigration(t *testing.T) {
	r := testRegistry(t)
	legacy := map[string]string{
		"Yemen":     "YD",
		"ベトナム":      "Vietnam",
		"Atlantis":  "ZZ",
		"   ":       "JP",
		"Brazil\u200b": "BRA",
	}
	base := NewMappingModel()
	m := base.ApplyLegacyMigration(legacy, r)

	if len(base.AliasLayer) != 0 {
		t.Error("ApplyLegacyMigration modified its receiver")
	}
	want := map[string]string{"Yemen": "iso2_ye", "ベトナム": "iso2_vd", "Brazil": "iso2_br"}
	if !reflect.DeepEqual(m.AliasLayer, want) {
		t.Errorf("AliasLayer = %v, want %v", m.AliasLayer, want)
	}
	if m.CountryLayer["iso2_ye"] != "YE" || m.CountryLayer["iso2_vd"] != "VD" {
		t.Errorf("CountryLayer = %v", m.CountryLayer)
	}
	if m.DisplayLayer["iso2_ye"] != "Yemen" {
		t.Errorf("display label = %q, want Yemen", m.DisplayLayer["iso2_ye"])
	}
	if _, ok := m.AliasMeta["Atlantis"]; ok {
		t.Error("unresolvable entry left metadata behind")
	}

	again := m.ApplyLegacyMigration(legacy, r)
	if !reflect.DeepEqual(again.AliasLayer, m.AliasLayer) || !reflect.DeepEqual(again.CountryLayer, m.CountryLayer) {
		t.Error("replaying the migration changed the layers")
	}
}

func TestLegacyMigrationConverges(t *testing.T) {
	r := testRegistry(t)
	inputs := []string{"Yemen", "Yemen", "イエメン"}

	a := NewMappingModel().ApplyLegacyMigration(map[string]string{"Yemen": "YD"}, r)
	b := NewMappingModel().ApplyLegacyMigration(map[string]string{"Yemen": "YE"}, r)

	if !reflect.DeepEqual(a.AliasLayer, b.AliasLayer) || !reflect.DeepEqual(a.CountryLayer, b.CountryLayer) {
		t.Errorf("layers diverge:\n a: %v %v\n b: %v %v", a.AliasLayer, a.CountryLayer, b.AliasLayer, b.CountryLayer)
	}
	aggA, aggB := Aggregate(inputs, a, r), Aggregate(inputs, b, r)
	if !reflect.DeepEqual(aggA, aggB) {
		t.Errorf("aggregations diverge: %+v vs %+v", aggA, aggB)
	}
	if aggA.Count("YE") != 3 || len(aggA.Groups) != 1 {
		t.Errorf("aggregation = %+v, want one YE group of 3", aggA.Groups)
	}
}

func TestRows(t *testing.T) {
	r := testRegistry(t)
	m := NewMappingModel().ApplyLegacyMigration(map[string]string{"b": "JP", "a": "YE"}, r)
	rows := m.Rows()
	if len(rows) != 2 || rows[0].RawCountry != "a" || rows[1].RawCountry != "b" {
		t.Fatalf("Rows() = %+v", rows)
	}
	if rows[0].ISO2 != "YE" || rows[0].Token != "iso2_ye" || rows[0].DisplayName != "Yemen" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
}

func TestEncodeAndParse(t *testing.T) {
	freezeTime(t, testNow)
	r := testRegistry(t)

	data, err := (&MappingModel{}).Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"version":2`, `"aliasLayer":{}`, `"countryLayer":{}`, `"displayLayer":{}`, `"aliasMeta":{}`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("encoded empty model %s lacks %s", data, key)
		}
	}

	m := NewMappingModel().ApplyLegacyMigration(DefaultSeedMapping, r).Normalize(r)
	data, err = m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseMappingModel(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(parsed.Normalize(r), m) {
		t.Error("model did not survive an encode/parse round trip")
	}
}

func TestParseMappingModelLenient(t *testing.T) {
	if _, err := ParseMappingModel([]byte(`[1,2]`)); err == nil {
		t.Error("a JSON array was accepted as a model")
	}
	if _, err := ParseMappingModel([]byte(`not json`)); err == nil {
		t.Error("garbage was accepted as a model")
	}

	m, err := ParseMappingModel([]byte(`{
		"version": "two",
		"updatedAt": 5,
		"aliasLayer": 17,
		"countryLayer": {"t": 3, "u": "YE", "v": null},
		"displayLayer": null,
		"aliasMeta": {"x": "nope", "y": {"updatedAt": 9}, "z": {"updatedAt": "2023-01-02T03:04:05.000Z"}}
	}`))
	if err != nil {
		t.Fatalf("ParseMappingModel: %v", err)
	}
	if m.UpdatedAt != "" || len(m.AliasLayer) != 0 || len(m.DisplayLayer) != 0 {
		t.Errorf("malformed fields kept: %+v", m)
	}
	if !reflect.DeepEqual(m.CountryLayer, map[string]string{"u": "YE"}) {
		t.Errorf("CountryLayer = %v", m.CountryLayer)
	}
	if m.AliasMeta["x"].UpdatedAt != "" || m.AliasMeta["y"].UpdatedAt != "" {
		t.Errorf("broken metadata kept a timestamp: %v", m.AliasMeta)
	}
	if m.AliasMeta["z"].UpdatedAt != "2023-01-02T03:04:05.000Z" {
		t.Errorf("valid metadata lost: %v", m.AliasMeta)
	}
}

func TestParseLegacyMapping(t *testing.T) {
	got, err := ParseLegacyMapping([]byte(`{"Yemen": "YD", "Brazil": 76, "Peru": null}`))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, map[string]string{"Yemen": "YD"}) {
		t.Errorf("ParseLegacyMapping = %v", got)
	}
	if _, err := ParseLegacyMapping([]byte(`"flat"`)); err == nil {
		t.Error("a JSON string was accepted as a legacy mapping")
	}
}
