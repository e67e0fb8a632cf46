package countrykey

import (
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "only spaces", input: "   ", want: ""},
		{name: "trim and collapse", input: "  Costa   Rica ", want: "Costa Rica"},
		{name: "ideographic space", input: "Costa\u3000Rica", want: "Costa Rica"},
		{name: "zero width space", input: "Y\u200bemen", want: "Yemen"},
		{name: "zero width joiner", input: "Ye\u200dmen", want: "Yemen"},
		{name: "byte order mark", input: "\ufeffYemen", want: "Yemen"},
		{name: "bidi marks", input: "\u202aYemen\u202c", want: "Yemen"},
		{name: "word joiner", input: "Yem\u2060en", want: "Yemen"},
		{name: "C1 control", input: "Yem\u0085en", want: "Yemen"},
		{name: "fullwidth letters", input: "ＹＥ", want: "YE"},
		{name: "halfwidth katakana", input: "ｲｴﾒﾝ", want: "イエメン"},
		{name: "japanese unchanged", input: "イエメン", want: "イエメン"},
		{name: "case preserved", input: "yemen", want: "yemen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKey(tt.input); got != tt.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeKeyIdempotent(t *testing.T) {
	inputs := []string{
		"",
		" \t\n ",
		"Y\u200bemen",
		"ＹＥ",
		"e\u200b\u0301",
		"ﾍﾞﾄﾅﾑ",
		"Côte d’Ivoire",
		" Brazil  ",
		"\xff\xfeBrazil",
		"ｶﾞ\u200dﾅ",
		"ΩÅ",
	}
	for _, in := range inputs {
		once := NormalizeKey(in)
		if twice := NormalizeKey(once); twice != once {
			t.Errorf("NormalizeKey not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestInspect(t *testing.T) {
	in := Inspect(" Y\u200bE ")
	if in.Raw != " Y\u200bE " {
		t.Errorf("Raw = %q", in.Raw)
	}
	if in.Trimmed != "Y\u200bE" {
		t.Errorf("Trimmed = %q", in.Trimmed)
	}
	if in.NormalizedKey != "YE" {
		t.Errorf("NormalizedKey = %q, want YE", in.NormalizedKey)
	}
	if !in.HasInvisibleOrControl {
		t.Error("HasInvisibleOrControl = false, want true")
	}
	want := []string{"U+0020", "U+0059", "U+200B", "U+0045", "U+0020"}
	if len(in.CodePoints) != len(want) {
		t.Fatalf("CodePoints = %v, want %v", in.CodePoints, want)
	}
	for i := range want {
		if in.CodePoints[i] != want[i] {
			t.Errorf("CodePoints[%d] = %s, want %s", i, in.CodePoints[i], want[i])
		}
	}

	if Inspect("Yemen").HasInvisibleOrControl {
		t.Error("plain text flagged as containing invisible characters")
	}
}

func TestLooseNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Côte d'Ivoire", "cotedivoire"},
		{"ＣＯＴＥ\u3000Ｄ’ＩＶＯＩＲＥ", "cotedivoire"},
		{"São Tomé & Príncipe", "saotomeprincipe"},
		{"U.K.", "uk"},
		{"Guinea-Bissau", "guineabissau"},
		{"ベトナム", "ベトナム"},
		{"ﾍﾞﾄﾅﾑ", "ベトナム"},
		{"米国", "米国"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := looseNormalize(tt.input); got != tt.want {
				t.Errorf("looseNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLooseNormalizeKeepsVoicedMarks(t *testing.T) {
	if looseNormalize("ベ") == looseNormalize("ヘ") {
		t.Error("voiced and unvoiced katakana share a loose key")
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "canonical token", input: "iso2_ye", want: "iso2_ye"},
		{name: "upper case", input: "ISO2_YE", want: "iso2_ye"},
		{name: "spaces", input: "  my token  ", want: "my_token"},
		{name: "punctuation runs", input: "a!!b??c", want: "a_b_c"},
		{name: "hyphen kept", input: "u-123", want: "u-123"},
		{name: "leading underscores", input: "__x__", want: "x"},
		{name: "fullwidth", input: "ＴＯＫＥＮ", want: "token"},
		{name: "accented latin", input: "Café", want: "cafe"},
		{name: "only punctuation", input: "***", want: ""},
		{name: "empty", input: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeToken(tt.input); got != tt.want {
				t.Errorf("normalizeToken(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeTokenTransliterates(t *testing.T) {
	got := normalizeToken("中国")
	if got == "" {
		t.Fatal("normalizeToken dropped a non-Latin token entirely")
	}
	for _, r := range got {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			t.Fatalf("normalizeToken(%q) = %q contains %q", "中国", got, r)
		}
	}
}

func TestIsAlpha(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want bool
	}{
		{"YE", 2, true},
		{"YEM", 3, true},
		{"ye", 2, false},
		{"Y1", 2, false},
		{"YEM", 2, false},
		{"", 0, true},
	}
	for _, tt := range tests {
		if got := isAlpha(tt.s, tt.n); got != tt.want {
			t.Errorf("isAlpha(%q, %d) = %v, want %v", tt.s, tt.n, got, tt.want)
		}
	}
}
