package analytics

import (
	"sort"
	"strings"

	"github.com/juju/collections/set"
)

// WordCloudSize is the number of words returned by the dashboard.
const WordCloudSize = 80

const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~“”‘’…"

var stopWords = set.NewStrings(
	"a", "about", "am", "an", "and", "any", "are", "as", "at", "be", "been",
	"but", "by", "can", "could", "did", "do", "does", "for", "from", "had",
	"has", "have", "he", "her", "hi", "hello", "him", "his", "how", "i", "if",
	"im", "in", "into", "is", "it", "its", "me", "my", "no", "not", "of",
	"on", "or", "our", "please", "she", "so", "than", "thanks", "that", "the",
	"their", "them", "then", "there", "these", "they", "this", "to", "too",
	"us", "was", "we", "were", "what", "when", "where", "which", "who", "why",
	"will", "with", "would", "yes", "you", "your",
)

type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

func stripPunctuation(r rune) rune {
	if strings.ContainsRune(punctuation, r) {
		return -1
	}
	return r
}

// CountWords tokenizes texts on whitespace and returns the limit most
// frequent words, most frequent first and alphabetical among equals.
func CountWords(texts []string, limit int) []WordCount {
	counts := map[string]int{}
	for _, text := range texts {
		for _, token := range strings.Fields(text) {
			word := strings.Map(stripPunctuation, strings.ToLower(token))
			if word == "" || stopWords.Contains(word) {
				continue
			}
			counts[word]++
		}
	}

	words := make([]WordCount, 0, len(counts))
	for w, c := range counts {
		words = append(words, WordCount{Word: w, Count: c})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].Count != words[j].Count {
			return words[i].Count > words[j].Count
		}
		return words[i].Word < words[j].Word
	})
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	return words
}
