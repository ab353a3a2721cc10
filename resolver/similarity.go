package resolver

import (
	"math"
	"strings"
)

// Similarity returns normalized Levenshtein similarity between two raw
// strings, compared lowercase: (maxLen - editDistance) / maxLen.
// Identical strings score 1.0, either-empty scores 0.0.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	dist := levenshtein(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	return float64(maxLen-dist) / float64(maxLen)
}

// levenshtein computes single-character insert/delete/substitute edit
// distance using two rolling rows.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// genericWords are housing terms that carry no identity for matching.
var genericWords = map[string]bool{
	"apartment": true, "apartments": true,
	"building": true, "buildings": true,
	"residence": true, "residences": true,
	"lofts": true, "loft": true,
	"tower": true, "towers": true,
	"place": true, "plaza": true,
	"student": true, "housing": true,
	"complex": true, "home": true, "homes": true,
	"on": true, "at": true, "the": true, "of": true,
}

// streetWords are street-type and directional suffixes stripped from
// addresses before comparison.
var streetWords = map[string]bool{
	"street": true, "st": true,
	"avenue": true, "ave": true,
	"boulevard": true, "blvd": true,
	"road": true, "rd": true,
	"drive": true, "dr": true,
	"lane": true, "ln": true,
	"court": true, "ct": true,
	"circle": true, "cir": true,
	"parkway": true, "pkwy": true,
	"north": true, "n": true,
	"south": true, "s": true,
	"east": true, "e": true,
	"west": true, "w": true,
	"northeast": true, "ne": true,
	"northwest": true, "nw": true,
	"southeast": true, "se": true,
	"southwest": true, "sw": true,
}

// ordinalWords maps spelled-out ordinals to bare numbers.
var ordinalWords = map[string]string{
	"first": "1", "second": "2", "third": "3", "fourth": "4",
	"fifth": "5", "sixth": "6", "seventh": "7", "eighth": "8",
	"ninth": "9", "tenth": "10", "eleventh": "11", "twelfth": "12",
	"thirteenth": "13", "fourteenth": "14", "fifteenth": "15",
	"sixteenth": "16", "seventeenth": "17", "eighteenth": "18",
	"nineteenth": "19", "twentieth": "20",
}

// NormalizeName reduces an apartment name to its identity-bearing words:
// lowercase, punctuation stripped, generic housing words removed, ordinal
// words and suffixes converted to bare numbers, whitespace collapsed.
// Idempotent.
func NormalizeName(s string) string {
	return normalize(s, genericWords, nil)
}

// NormalizeAddress applies the name normalization plus street-type and
// directional suffix stripping. Idempotent.
func NormalizeAddress(s string) string {
	return normalize(s, genericWords, streetWords)
}

func normalize(s string, drop, dropAlso map[string]bool) string {
	s = strings.ToLower(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	var out []string
	for _, word := range strings.Fields(b.String()) {
		word = bareOrdinal(word)
		if drop[word] || (dropAlso != nil && dropAlso[word]) {
			continue
		}
		out = append(out, word)
	}
	return strings.Join(out, " ")
}

// bareOrdinal converts "fifth" and "5th" alike to "5".
func bareOrdinal(word string) string {
	if n, ok := ordinalWords[word]; ok {
		return n
	}
	if len(word) > 2 {
		suffix := word[len(word)-2:]
		if suffix == "st" || suffix == "nd" || suffix == "rd" || suffix == "th" {
			digits := word[:len(word)-2]
			if digits != "" && isDigits(digits) {
				return digits
			}
		}
	}
	return word
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// CombinedSimilarity scores a proposed name+address pair against an
// existing one over normalized forms: 0.7 name + 0.3 address plus a word
// overlap bonus of 0.1 * (shared / max) over words longer than 2 chars.
func CombinedSimilarity(name, address, otherName, otherAddress string) float64 {
	normName := NormalizeName(name)
	normOther := NormalizeName(otherName)

	score := 0.7 * Similarity(normName, normOther)
	score += 0.3 * Similarity(NormalizeAddress(address), NormalizeAddress(otherAddress))
	score += wordOverlapBonus(normName, normOther)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func wordOverlapBonus(a, b string) float64 {
	wordsA := longWords(a)
	wordsB := longWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	shared := 0
	for w := range wordsA {
		if wordsB[w] {
			shared++
		}
	}
	maxLen := len(wordsA)
	if len(wordsB) > maxLen {
		maxLen = len(wordsB)
	}
	return 0.1 * float64(shared) / float64(maxLen)
}

func longWords(s string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(s) {
		if len(w) > 2 {
			words[w] = true
		}
	}
	return words
}

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
