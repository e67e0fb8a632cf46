package countrykey

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// KeyInspection is a diagnostic view of a raw country string. It is meant for
// logs and verification tooling and is never consulted during resolution.
type KeyInspection struct {
	Raw                   string   `json:"raw"`
	Trimmed               string   `json:"trimmed"`
	NFKC                  string   `json:"nfkc"`
	NormalizedKey         string   `json:"normalizedKey"`
	HasInvisibleOrControl bool     `json:"hasInvisibleOrControl"`
	CodePoints            []string `json:"codePoints"`
}

// isInvisible reports whether r is a control or invisible formatting character:
// C0/C1 controls, zero-width spaces and joiners, bidi embeddings and isolates,
// invisible operators and the byte-order mark.
func isInvisible(r rune) bool {
	switch {
	case r <= 0x1f, r >= 0x7f && r <= 0x9f:
		return true
	case r >= 0x200b && r <= 0x200f:
		return true
	case r >= 0x202a && r <= 0x202e:
		return true
	case r >= 0x2060 && r <= 0x2064, r >= 0x2066 && r <= 0x2069:
		return true
	case r == 0xfeff:
		return true
	}
	return false
}

func dropInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if isInvisible(r) {
			return -1
		}
		return r
	}, s)
}

// NormalizeKey canonicalizes a raw key: NFKC, control and invisible characters
// removed, whitespace runs collapsed to a single space, trimmed.
//
// NormalizeKey is total and idempotent. Invisible characters are removed both
// before and after NFKC so a zero-width character sitting between a base letter
// and a combining mark cannot block composition on the first pass.
func NormalizeKey(value string) string {
	if value == "" {
		return ""
	}
	s := dropInvisible(strings.ToValidUTF8(value, ""))
	s = dropInvisible(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// Inspect returns the diagnostic view of value.
func Inspect(value string) KeyInspection {
	in := KeyInspection{
		Raw:           value,
		Trimmed:       strings.TrimSpace(value),
		NFKC:          norm.NFKC.String(value),
		NormalizedKey: NormalizeKey(value),
		CodePoints:    make([]string, 0, utf8.RuneCountInString(value)),
	}
	for _, r := range value {
		if isInvisible(r) {
			in.HasInvisibleOrControl = true
		}
		in.CodePoints = append(in.CodePoints, fmt.Sprintf("U+%04X", r))
	}
	return in
}

// isStrippableMark matches nonspacing marks (accents) except the kana voiced
// sound marks, which must survive so that e.g. ベ and ヘ stay distinct.
func isStrippableMark(r rune) bool {
	return unicode.Is(unicode.Mn, r) && r != 0x3099 && r != 0x309a
}

// isLooseRune is the alphabet kept by looseNormalize: ASCII lowercase letters,
// digits, hiragana, katakana and CJK unified ideographs.
func isLooseRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r >= 0x3040 && r <= 0x30ff:
		return true
	case r >= 0x4e00 && r <= 0x9faf:
		return true
	}
	return false
}

// looseNormalize folds a string for alias-index matching. It is case, width
// and diacritic insensitive and drops punctuation and spaces entirely, so
// "Côte d'Ivoire", "cote divoire" and "ＣＯＴＥ Ｄ’ＩＶＯＩＲＥ" share one key.
func looseNormalize(value string) string {
	s := toLower(norm.NFKC.String(strings.ToValidUTF8(value, "")))
	// A fresh chain per call: transform chains carry state and are not safe
	// for concurrent use.
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isStrippableMark)), norm.NFC)
	if folded, _, err := transform.String(stripAccents, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isLooseRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	tokenUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	tokenRepeat = regexp.MustCompile(`_+`)
)

// normalizeToken maps a token onto the [a-z0-9_-] alphabet. Non-Latin input is
// transliterated first so that a token typed as "中国" becomes "zhong_guo"
// instead of vanishing.
func normalizeToken(value string) string {
	s := norm.NFKC.String(strings.ToValidUTF8(value, ""))
	if !isASCII(s) {
		s = unidecode.Unidecode(s)
	}
	s = tokenUnsafe.ReplaceAllString(s, "_")
	s = tokenRepeat.ReplaceAllString(s, "_")
	return toLower(strings.Trim(s, "_"))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// toLower converts a string to lowercase using the standard library.
func toLower(s string) string {
	return strings.ToLower(s)
}

// toUpper converts a string to uppercase using the standard library.
func toUpper(s string) string {
	return strings.ToUpper(s)
}

// isAlpha reports whether s is exactly n ASCII uppercase letters.
func isAlpha(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < n; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
