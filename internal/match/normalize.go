package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// wordRule rewrites a whole word. Rules are applied in slice order.
type wordRule struct {
	re   *regexp.Regexp
	repl string
}

func wordRules(pairs [][2]string) []wordRule {
	rules := make([]wordRule, len(pairs))
	for i, p := range pairs {
		rules[i] = wordRule{re: regexp.MustCompile(`\b` + p[0] + `\b`), repl: p[1]}
	}
	return rules
}

// directionRules lists compound directions before single ones so that
// "northeast" becomes "ne" rather than "n" + "east".
var directionRules = wordRules([][2]string{
	{"northeast", "ne"},
	{"northwest", "nw"},
	{"southeast", "se"},
	{"southwest", "sw"},
	{"north", "n"},
	{"south", "s"},
	{"east", "e"},
	{"west", "w"},
})

var streetTypeRules = wordRules([][2]string{
	{"street", "st"},
	{"avenue", "ave"},
	{"boulevard", "blvd"},
	{"drive", "dr"},
	{"road", "rd"},
	{"lane", "ln"},
	{"plaza", "plz"},
	{"circle", "cir"},
	{"parkway", "pkwy"},
	{"court", "ct"},
})

var (
	multiSpaceRe       = regexp.MustCompile(`\s+`)
	leadingDigitsRe    = regexp.MustCompile(`^\d+`)
	leadingTheRe       = regexp.MustCompile(`(?i)^the\s+`)
	leadingArticleRe   = regexp.MustCompile(`^(the|a|an)\s+`)
	genericSuffixRe    = regexp.MustCompile(`\s+(apartments|apartment|residences|residence|homes|home|towers|tower|place|commons|common)$`)
	addressPunctuation = strings.NewReplacer(".", "", ",", "", ";", "", "#", "")
)

// foldMarks strips combining marks so "Résidences" compares equal to "Residences".
func foldMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

// NormalizeAddress canonicalizes a free-text street address: lower-case,
// punctuation stripped, street types and compass directions abbreviated,
// whitespace collapsed. Empty input yields "".
func NormalizeAddress(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.ToLower(foldMarks(s))
	s = addressPunctuation.Replace(s)
	for _, r := range streetTypeRules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	for _, r := range directionRules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return collapseSpaces(s)
}

// ExtractStreetNumber returns the run of digits at the very start of raw,
// or "" when raw does not begin with a digit.
func ExtractStreetNumber(raw string) string {
	return leadingDigitsRe.FindString(raw)
}

// ExtractStreetName returns the normalized street portion of an address:
// the text before the first comma with the leading house number removed.
//
// The comma split happens on the raw text because NormalizeAddress strips
// commas; splitting afterwards would drag city, state and zip into the name.
func ExtractStreetName(raw string) string {
	street, _, _ := strings.Cut(raw, ",")
	s := NormalizeAddress(street)
	s = leadingDigitsRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// NormalizePropertyName reduces a property name toward its core so that
// "The Duo" and "Duo Apartments" both become "duo".
func NormalizePropertyName(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.ToLower(foldMarks(s))
	s = collapseSpaces(s)
	s = leadingTheRe.ReplaceAllString(s, "")
	s = genericSuffixRe.ReplaceAllString(s, "")
	return collapseSpaces(s)
}

// coreName strips any leading article.
func coreName(s string) string {
	return strings.TrimSpace(leadingArticleRe.ReplaceAllString(s, ""))
}

// significantWords returns the distinct words longer than two characters.
func significantWords(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(s) {
		if len([]rune(w)) > 2 && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
