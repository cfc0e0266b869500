package source

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

// RSSFeed is a named RSS/Atom feed URL.
type RSSFeed struct {
	Name     string
	URL      string
	Language string
}

// RSS collects AI news from RSS/Atom feeds.
type RSS struct {
	client *http.Client
	parser *gofeed.Parser
	strip  *bluemonday.Policy
	feeds  []RSSFeed
	filter *Filter
	maxAge time.Duration
	now    func() time.Time
}

// NewRSS creates a new RSS collector. A nil filter keeps every entry.
func NewRSS(feeds []RSSFeed, filter *Filter) *RSS {
	return &RSS{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		strip:  bluemonday.StrictPolicy(),
		feeds:  feeds,
		filter: filter,
		maxAge: 48 * time.Hour,
		now:    time.Now,
	}
}

func (r *RSS) Name() SourceType { return SourceRSS }

func (r *RSS) Collect(ctx context.Context) ([]Article, error) {
	var all []Article

	for _, feed := range r.feeds {
		articles, err := r.collectFeed(ctx, feed)
		if err != nil {
			logging.Warn().Err(err).Str("feed", feed.Name).Msg("rss feed failed")
			continue
		}
		all = append(all, articles...)
	}

	return all, nil
}

func (r *RSS) collectFeed(ctx context.Context, feed RSSFeed) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "aipulse/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feed.Name, err)
	}

	now := r.now().UTC()
	cutoff := now.Add(-r.maxAge)
	var articles []Article

	for _, entry := range parsed.Items {
		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		if published.Before(cutoff) {
			continue
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}
		guid := entry.GUID
		if guid == "" {
			guid = link
		}
		if guid == "" {
			continue
		}

		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}

		// Feeds can share guids, so the external id is scoped to the feed.
		externalID := feed.Name + ":" + guid
		a := Article{
			ID:          "rss:" + externalID,
			Source:      SourceRSS,
			ExternalID:  externalID,
			Title:       strings.TrimSpace(entry.Title),
			URL:         link,
			Summary:     truncate(r.plainText(entry.Description), 500),
			Author:      author,
			Language:    feed.Language,
			Tags:        entry.Categories,
			PublishedAt: published,
			CollectedAt: now,
		}
		if !r.filter.MatchesArticle(&a) {
			continue
		}
		articles = append(articles, a)
	}

	return articles, nil
}

// plainText strips markup from feed descriptions.
func (r *RSS) plainText(s string) string {
	text := html.UnescapeString(r.strip.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}
