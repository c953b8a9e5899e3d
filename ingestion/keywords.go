package ingestion

import (
	"html"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/poiesic/newsdesk/core"
)

var (
	urlRegex    = regexp.MustCompile(`https?://[^\s]+`)
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {}, "and": {},
	"of": {}, "on": {}, "at": {}, "by": {}, "with": {}, "from": {}, "is": {},
	"are": {}, "was": {}, "were": {}, "be": {}, "has": {}, "have": {}, "had": {},
	"that": {}, "this": {}, "its": {}, "it": {}, "as": {}, "but": {}, "not": {},
	"will": {}, "would": {}, "said": {}, "says": {}, "after": {}, "over": {},
	"into": {}, "than": {}, "more": {}, "new": {}, "their": {}, "they": {},
	"which": {}, "about": {}, "also": {}, "been": {}, "who": {}, "what": {},
}

// cleanText strips HTML entities, URLs and punctuation and squeezes whitespace.
func cleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = urlRegex.ReplaceAllString(decoded, " ")
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// ExtractKeywords returns up to limit of the most frequent words of at
// least minLen runes that are not stop words, ties broken alphabetically.
// A limit of 0 or less returns every candidate.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(cleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}

	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	n := limit
	if n <= 0 || n > len(pairs) {
		n = len(pairs)
	}

	keywords := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keywords = append(keywords, pairs[i].word)
	}
	return keywords
}

// mergeKeywords adds incoming to existing in recency order: a keyword
// mentioned again moves to the newest end. When the result exceeds
// maxKeywords the oldest-added keywords are dropped.
func mergeKeywords(existing, incoming []string, maxKeywords int) []string {
	merged := slices.Clone(existing)
	for _, k := range core.NormalizeKeywords(incoming) {
		if i := slices.Index(merged, k); i >= 0 {
			merged = slices.Delete(merged, i, i+1)
		}
		merged = append(merged, k)
	}
	if maxKeywords > 0 && len(merged) > maxKeywords {
		merged = slices.Clone(merged[len(merged)-maxKeywords:])
	}
	return merged
}
