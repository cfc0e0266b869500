// Package trend detects trending topics by comparing keyword frequency across
// two equal, adjacent time windows.
package trend

import (
	"sort"
	"time"

	"github.com/elonfeng/aipulse/pkg/source"
)

const (
	DefaultWindowHours = 24

	// MaxRelated caps both related articles and related keywords per topic.
	MaxRelated = 5

	// A keyword is kept when its growth exceeds minGrowth percent or its
	// current-window frequency exceeds minFrequency.
	minGrowth    = 50.0
	minFrequency = 5
)

// ArticleRef is the slice of an article attached to a topic.
type ArticleRef struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	TitleTranslated string    `json:"title_translated,omitempty"`
	URL             string    `json:"url"`
	PublishedAt     time.Time `json:"published_at"`
}

// Topic is one scored keyword. Growth is the percent change from the previous window.
type Topic struct {
	Topic           string       `json:"topic"`
	Frequency       int          `json:"frequency"`
	Growth          float64      `json:"growth"`
	RelatedArticles []ArticleRef `json:"related_articles"`
	RelatedKeywords []string     `json:"related_keywords"`
}

// Score ranks keywords from articles published in the window (now-hours, now]
// against the window (now-2*hours, now-hours]. Articles outside both windows
// are ignored. hours <= 0 uses DefaultWindowHours.
//
// Topics are ordered by growth, then frequency (both descending), then name.
func Score(articles []source.Article, hours int, now time.Time) []Topic {
	if hours <= 0 {
		hours = DefaultWindowHours
	}
	window := time.Duration(hours) * time.Hour
	currentStart := now.Add(-window)
	previousStart := now.Add(-2 * window)

	var current []source.Article
	var currentKeywords [][]string
	currentCount := make(map[string]int)
	previousCount := make(map[string]int)

	for _, a := range articles {
		t := a.PublishedAt
		switch {
		case t.After(currentStart) && !t.After(now):
			kws := articleKeywords(a)
			current = append(current, a)
			currentKeywords = append(currentKeywords, kws)
			for _, k := range kws {
				currentCount[k]++
			}
		case t.After(previousStart) && !t.After(currentStart):
			for _, k := range articleKeywords(a) {
				previousCount[k]++
			}
		}
	}

	topics := make([]Topic, 0)
	for kw, cur := range currentCount {
		g := growth(cur, previousCount[kw])
		if g > minGrowth || cur > minFrequency {
			topics = append(topics, Topic{Topic: kw, Frequency: cur, Growth: g})
		}
	}
	if len(topics) == 0 {
		return topics
	}
	sortTopics(topics)

	order := make([]int, len(current))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := current[order[i]], current[order[j]]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID < b.ID
	})

	for i := range topics {
		kw := topics[i].Topic
		topics[i].RelatedArticles = relatedArticles(current, order, kw)
		topics[i].RelatedKeywords = coKeywords(currentKeywords, kw)
	}
	return topics
}

// growth is the percent change from prev to cur; a keyword new to the current window scores 100.
func growth(cur, prev int) float64 {
	if prev > 0 {
		return float64(cur-prev) / float64(prev) * 100
	}
	return 100
}

func sortTopics(topics []Topic) {
	sort.Slice(topics, func(i, j int) bool {
		a, b := topics[i], topics[j]
		if a.Growth != b.Growth {
			return a.Growth > b.Growth
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.Topic < b.Topic
	})
}

func relatedArticles(current []source.Article, newestFirst []int, kw string) []ArticleRef {
	refs := make([]ArticleRef, 0, MaxRelated)
	for _, idx := range newestFirst {
		if len(refs) == MaxRelated {
			break
		}
		if a := current[idx]; mentions(a, kw) {
			refs = append(refs, refOf(a))
		}
	}
	return refs
}

func refOf(a source.Article) ArticleRef {
	return ArticleRef{
		ID:              a.ID,
		Title:           a.Title,
		TitleTranslated: a.TitleTranslated,
		URL:             a.URL,
		PublishedAt:     a.PublishedAt,
	}
}

// coKeywords returns the keywords most often seen in the same article as kw.
func coKeywords(perArticle [][]string, kw string) []string {
	counts := make(map[string]int)
	for _, kws := range perArticle {
		has := false
		for _, k := range kws {
			if k == kw {
				has = true
				break
			}
		}
		if !has {
			continue
		}
		for _, k := range kws {
			if k != kw {
				counts[k]++
			}
		}
	}

	out := make([]string, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > MaxRelated {
		out = out[:MaxRelated]
	}
	return out
}
