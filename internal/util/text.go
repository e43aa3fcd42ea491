package util

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	reNonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	reSpaces  = regexp.MustCompile(`\s+`)
)

var stopWords = map[string]struct{}{
	"at": {}, "and": {}, "the": {}, "for": {}, "of": {}, "in": {}, "to": {}, "with": {}, "or": {}, "a": {}, "an": {},
}

// MemberID lower-cases the trimmed name and maps every rune outside a-z0-9 to '-'.
func MemberID(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	out := strings.Builder{}
	out.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
			continue
		}
		out.WriteByte('-')
	}
	return out.String()
}

func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// componentUnescape turns query escaping into URI component escaping: spaces
// become %20 and the marks ! ' ( ) * stay literal.
var componentUnescape = strings.NewReplacer("+", "%20", "%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*")

func AvatarURL(name string) string {
	escaped := componentUnescape.Replace(url.QueryEscape(name))
	return "https://ui-avatars.com/api/?name=" + escaped + "&background=random&color=fff"
}

// NormalizeText prepares ask/give strings for fuzzy comparison.
func NormalizeText(input string) string {
	s := strings.ToLower(input)
	s = strings.NewReplacer("&", " and ", "/", " ", "-", " ").Replace(s)
	s = reNonWord.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func Tokenize(input string) []string {
	parts := strings.Split(NormalizeText(input), " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) < 2 {
			continue
		}
		if _, stop := stopWords[p]; stop {
			continue
		}
		out = append(out, p)
	}
	return out
}

// AppendUnique appends value unless it is empty or already present.
func AppendUnique(items []string, value string) []string {
	if value == "" {
		return items
	}
	for _, existing := range items {
		if existing == value {
			return items
		}
	}
	return append(items, value)
}

// UniqueTrimmed trims every entry and drops blanks and duplicates, keeping order.
func UniqueTrimmed(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}
