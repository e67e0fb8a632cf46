package countrykey

// fallbackISO3 maps ISO2 to ISO3 for the countries the registry must always
// know about. When no locale data is available the registry is built from this
// table alone, with codes standing in for names.
var fallbackISO3 = map[string]string{
	"BR": "BRA", "CO": "COL", "ET": "ETH", "GT": "GTM", "HN": "HND",
	"ID": "IDN", "KE": "KEN", "PE": "PER", "RW": "RWA", "TZ": "TZA",
	"VD": "VNM", "YE": "YEM", "CR": "CRI", "PA": "PAN", "BO": "BOL",
	"BI": "BDI", "EC": "ECU", "SV": "SLV", "IN": "IND", "JM": "JAM",
	"NI": "NIC", "PG": "PNG", "UG": "UGA", "US": "USA", "JP": "JPN",
	"TH": "THA",
}

// legacyISO2 canonicalizes superseded codes. VN maps to VD because the world
// map dataset identifies Vietnam as VD; every resolved value must agree with it.
var legacyISO2 = map[string]string{
	"BU": "MM",
	"DD": "DE",
	"FX": "FR",
	"TP": "TL",
	"VN": "VD",
	"YD": "YE",
	"YU": "RS",
	"ZR": "CD",
}

// legacyTargets holds every canonical code of legacyISO2, so that a resolved
// value always resolves to itself again even on a degraded registry.
var legacyTargets = func() map[string]bool {
	out := make(map[string]bool, len(legacyISO2))
	for _, canon := range legacyISO2 {
		out[canon] = true
	}
	return out
}()

// featureIDISO2 maps numeric feature identifiers of the world atlas dataset
// (ISO 3166 numeric) to ISO2. Entries here take precedence over numeric codes
// derived from locale data.
var featureIDISO2 = map[string]string{
	"76": "BR", "170": "CO", "231": "ET", "320": "GT", "340": "HN",
	"360": "ID", "404": "KE", "604": "PE", "646": "RW", "834": "TZ",
	"704": "VD", "887": "YE", "188": "CR", "591": "PA", "68": "BO",
	"108": "BI", "218": "EC", "222": "SV", "356": "IN", "388": "JM",
	"558": "NI", "598": "PG", "800": "UG", "764": "TH", "156": "CN",
	"392": "JP", "104": "MM", "212": "DM", "214": "DO", "840": "US",
	"826": "GB",
}

// extraAliases are curated colloquial, historical and Japanese names. They only
// add aliases to records that are already registered.
var extraAliases = map[string][]string{
	"US": {"United States", "United States of America", "アメリカ", "米国"},
	"GB": {"UK", "U.K.", "United Kingdom", "イギリス"},
	"CZ": {"Czechia", "Czech Republic"},
	"KR": {"South Korea", "Korea, Republic of", "韓国"},
	"KP": {"North Korea"},
	"LA": {"Laos", "Lao People's Democratic Republic"},
	"MM": {"Myanmar", "Burma"},
	"VD": {"Vietnam", "Viet Nam", "ベトナム"},
	"TW": {"Taiwan", "台湾"},
	"RU": {"Russia", "Russian Federation"},
	"MD": {"Moldova", "Moldova, Republic of"},
	"VE": {"Venezuela", "Venezuela, Bolivarian Republic of"},
	"TZ": {"Tanzania", "Tanzania, United Republic of", "タンザニア"},
	"PS": {"Palestine", "State of Palestine"},
	"SY": {"Syria", "Syrian Arab Republic"},
	"IR": {"Iran", "Iran, Islamic Republic of"},
	"BN": {"Brunei", "Brunei Darussalam"},
	"FM": {"Micronesia", "Micronesia, Federated States of"},
	"TH": {"Thailand", "Kingdom of Thailand", "タイ"},
	"CD": {"DR Congo", "Democratic Republic of the Congo", "Zaire"},
	"TL": {"East Timor", "Timor-Leste"},
	"CI": {"Ivory Coast", "Côte d'Ivoire"},

	// Producer countries, so the seed mapping resolves even on the fallback table.
	"BR": {"Brazil", "ブラジル"},
	"CO": {"Colombia", "コロンビア"},
	"ET": {"Ethiopia", "エチオピア"},
	"GT": {"Guatemala", "グアテマラ"},
	"HN": {"Honduras", "ホンジュラス"},
	"ID": {"Indonesia", "インドネシア"},
	"KE": {"Kenya", "ケニア"},
	"PE": {"Peru", "ペルー"},
	"RW": {"Rwanda", "ルワンダ"},
	"YE": {"Yemen", "イエメン"},
	"CR": {"Costa Rica", "コスタリカ"},
	"PA": {"Panama", "パナマ"},
	"BO": {"Bolivia", "ボリビア"},
	"BI": {"Burundi", "ブルンジ"},
	"EC": {"Ecuador", "エクアドル"},
	"SV": {"El Salvador", "エルサルバドル"},
	"IN": {"India", "インド"},
	"JM": {"Jamaica", "ジャマイカ"},
	"NI": {"Nicaragua", "ニカラグア"},
	"PG": {"Papua New Guinea", "パプアニューギニア"},
	"UG": {"Uganda", "ウガンダ"},
	"JP": {"Japan", "日本"},
}

// shadowRecord describes a record registered under its own code that copies
// the identity of another record.
type shadowRecord struct {
	Source string
	ISO3   string
}

// shadowRecords lists identity slots required by the map dataset. VD carries
// Vietnam's names next to the modern VN record.
var shadowRecords = map[string]shadowRecord{
	"VD": {Source: "VN", ISO3: "VNM"},
}

// DefaultSeedMapping is the built-in flat mapping from Japanese producer
// country names to codes. It is merged into every loaded model.
var DefaultSeedMapping = map[string]string{
	"ブラジル": "BR", "コロンビア": "CO", "エチオピア": "ET", "グアテマラ": "GT",
	"ホンジュラス": "HN", "インドネシア": "ID", "ケニア": "KE", "ペルー": "PE",
	"ルワンダ": "RW", "タンザニア": "TZ", "ベトナム": "VD", "イエメン": "YE",
	"コスタリカ": "CR", "パナマ": "PA", "ボリビア": "BO", "ブルンジ": "BI",
	"エクアドル": "EC", "エルサルバドル": "SV", "インド": "IN", "ジャマイカ": "JM",
	"ニカラグア": "NI", "パプアニューギニア": "PG", "ウガンダ": "UG",
}

// LegacyCodes returns a copy of the legacy code canonicalization table.
func LegacyCodes() map[string]string {
	out := make(map[string]string, len(legacyISO2))
	for k, v := range legacyISO2 {
		out[k] = v
	}
	return out
}

// Canonical maps a legacy ISO2 to its present-day code and returns any other
// code unchanged.
func Canonical(iso2 string) string {
	if c, ok := legacyISO2[iso2]; ok {
		return c
	}
	return iso2
}
