package source

import (
	"context"
	"time"
)

// SourceType identifies which platform an article came from.
type SourceType string

const (
	SourceHackerNews SourceType = "hackernews"
	SourceArXiv      SourceType = "arxiv"
	SourceRSS        SourceType = "rss"
)

// Article is the standardized record produced by every collector.
// Title holds the original-language title; TitleTranslated the second language.
type Article struct {
	ID              string     `json:"id" db:"id"`
	Source          SourceType `json:"source" db:"source"`
	ExternalID      string     `json:"external_id" db:"external_id"`
	Title           string     `json:"title" db:"title"`
	TitleTranslated string     `json:"title_translated" db:"title_translated"`
	URL             string     `json:"url" db:"url"`
	Summary         string     `json:"summary" db:"summary"`
	Author          string     `json:"author" db:"author"`
	Language        string     `json:"language" db:"language"`
	Tags            []string   `json:"tags" db:"-"`
	PublishedAt     time.Time  `json:"published_at" db:"published_at"`
	CollectedAt     time.Time  `json:"collected_at" db:"collected_at"`
	TagsJSON        string     `json:"-" db:"tags"`
}

// Source is the interface every collector must implement.
type Source interface {
	Name() SourceType
	Collect(ctx context.Context) ([]Article, error)
}

// ShortName returns the CLI alias of a source type.
func ShortName(st SourceType) string {
	switch st {
	case SourceHackerNews:
		return "hn"
	case SourceArXiv:
		return "arxiv"
	case SourceRSS:
		return "rss"
	}
	return string(st)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
