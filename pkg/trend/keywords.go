package trend

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/elonfeng/aipulse/pkg/source"
)

// minWordLen is exclusive: title words must be longer than this to count.
const minWordLen = 4

// stopWords only lists words longer than minWordLen; shorter ones never qualify.
var stopWords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "against": true,
	"among": true, "announces": true, "around": true, "because": true, "before": true,
	"being": true, "below": true, "between": true, "could": true, "during": true,
	"every": true, "first": true, "former": true, "further": true, "going": true,
	"great": true, "having": true, "their": true, "there": true, "these": true,
	"thing": true, "things": true, "think": true, "those": true, "through": true,
	"today": true, "under": true, "until": true, "using": true,
	"where": true, "which": true, "while": true, "whose": true, "within": true,
	"without": true, "would": true, "should": true, "might": true, "other": true,
	"others": true, "really": true, "still": true, "there's": true,
	"what's": true, "years": true, "yesterday": true, "latest": true, "report": true,
	"launches": true, "introduces": true, "update": true, "updates": true,
	"video": true, "watch": true, "here's": true, "everything": true, "something": true,
}

// titleKeywords returns lower-cased title words longer than minWordLen that are not stop words.
func titleKeywords(title string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if utf8.RuneCountInString(w) <= minWordLen || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// articleKeywords returns the distinct keywords of a: its tags plus qualifying title words.
func articleKeywords(a source.Article) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(k string) {
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
	}

	for _, tag := range a.Tags {
		add(strings.ToLower(strings.TrimSpace(tag)))
	}
	for _, w := range titleKeywords(a.Title) {
		add(w)
	}
	return out
}

// mentions reports whether a's tags or either title contain keyword.
func mentions(a source.Article, keyword string) bool {
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), keyword) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(a.Title), keyword) ||
		strings.Contains(strings.ToLower(a.TitleTranslated), keyword)
}
