// Package text provides APOC text processing functions.
//
// This package implements the apoc.text.* functions exposed to Cypher
// queries, plus the text-normalization helpers (deaccent, HTML/emoji
// stripping) the evaluator's string library delegates to.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Join joins a list of strings with a delimiter.
//
// Example:
//
//	apoc.text.join(['Hello', 'World'], ' ') => 'Hello World'
func Join(strs []string, delimiter string) string {
	return strings.Join(strs, delimiter)
}

// Split splits a string by a delimiter.
func Split(text, delimiter string) []string {
	if delimiter == "" {
		return []string{text}
	}
	return strings.Split(text, delimiter)
}

// Replace replaces all occurrences of a substring.
func Replace(text, old, new string) string {
	return strings.ReplaceAll(text, old, new)
}

// RegexGroups extracts regex capture groups.
//
// Example:
//
//	apoc.text.regexGroups('abc123', '([a-z]+)([0-9]+)') => [['abc123', 'abc', '123']]
func RegexGroups(text, pattern string) ([][]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	out := re.FindAllStringSubmatch(text, -1)
	if out == nil {
		out = [][]string{}
	}
	return out, nil
}

// RegexReplace substitutes every match of pattern with replacement.
func RegexReplace(text, pattern, replacement string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", err
	}
	return re.ReplaceAllString(text, replacement), nil
}

// Capitalize upper-cases the first rune.
func Capitalize(text string) string {
	if text == "" {
		return text
	}
	r, size := utf8.DecodeRuneInString(text)
	return string(unicode.ToUpper(r)) + text[size:]
}

// Decapitalize lower-cases the first rune.
func Decapitalize(text string) string {
	if text == "" {
		return text
	}
	r, size := utf8.DecodeRuneInString(text)
	return string(unicode.ToLower(r)) + text[size:]
}

// CamelCase converts text to camelCase.
func CamelCase(text string) string {
	words := splitWords(text)
	if len(words) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(strings.ToLower(words[0]))
	for _, word := range words[1:] {
		sb.WriteString(Capitalize(strings.ToLower(word)))
	}
	return sb.String()
}

// UpperCamelCase converts text to PascalCase.
func UpperCamelCase(text string) string {
	var sb strings.Builder
	for _, word := range splitWords(text) {
		sb.WriteString(Capitalize(strings.ToLower(word)))
	}
	return sb.String()
}

// SnakeCase converts text to snake_case.
//
// Example:
//
//	apoc.text.snakeCase('HelloWorld') => 'hello_world'
func SnakeCase(text string) string {
	words := splitWords(text)
	for i := range words {
		words[i] = strings.ToLower(words[i])
	}
	return strings.Join(words, "_")
}

// Clean collapses runs of whitespace and trims.
func Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// splitWords breaks on whitespace, punctuation and camelCase humps.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || r == '_' || r == '-' || r == '.':
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
		prev = r
	}
	flush()
	return words
}

// Distance is the Levenshtein edit distance between two strings.
//
// Example:
//
//	apoc.text.distance('kitten', 'sitting') => 3
func Distance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}
	prev := make([]int, len(r2)+1)
	cur := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		cur[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(r2)]
}

// Jaccard is the Jaccard similarity of the two strings' character-bigram
// sets.
//
// Example:
//
//	apoc.text.jaccard('night', 'nacht') => 0.14285714285714285 (1/7)
func Jaccard(s1, s2 string) float64 {
	b1 := bigrams(s1)
	b2 := bigrams(s2)
	if len(b1) == 0 && len(b2) == 0 {
		return 1.0
	}
	intersection := 0
	for g := range b1 {
		if b2[g] {
			intersection++
		}
	}
	union := len(b1) + len(b2) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func bigrams(s string) map[string]bool {
	runes := []rune(strings.ToLower(s))
	out := map[string]bool{}
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])] = true
	}
	return out
}

// Deaccent strips diacritical marks: NFD decomposition followed by
// removal of combining marks.
//
// Example:
//
//	apoc.text.deaccent('café') => 'cafe'
func Deaccent(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

var htmlTagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// StripHTML removes markup tags, leaving the text content.
func StripHTML(text string) string {
	return Clean(htmlTagPattern.ReplaceAllString(text, " "))
}

// StripEmoji removes emoji and other symbol-plane runes.
func StripEmoji(text string) string {
	var sb strings.Builder
	for _, r := range text {
		if r >= 0x1F000 || unicode.Is(unicode.So, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
