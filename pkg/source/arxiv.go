package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const arxivBaseURL = "https://export.arxiv.org/api/query"

// ArXiv collects recent AI papers from ArXiv.
type ArXiv struct {
	client     *http.Client
	parser     *gofeed.Parser
	baseURL    string
	categories []string
	maxResults int
	now        func() time.Time
}

// NewArXiv creates a new ArXiv collector.
func NewArXiv(categories []string, maxResults int) *ArXiv {
	if len(categories) == 0 {
		categories = []string{"cs.AI", "cs.CL", "cs.LG"}
	}
	if maxResults <= 0 {
		maxResults = 50
	}
	return &ArXiv{
		client:     &http.Client{Timeout: 30 * time.Second},
		parser:     gofeed.NewParser(),
		baseURL:    arxivBaseURL,
		categories: categories,
		maxResults: maxResults,
		now:        time.Now,
	}
}

func (a *ArXiv) Name() SourceType { return SourceArXiv }

func (a *ArXiv) Collect(ctx context.Context) ([]Article, error) {
	parts := make([]string, 0, len(a.categories))
	for _, cat := range a.categories {
		parts = append(parts, "cat:"+cat)
	}

	// The API expects a literal +OR+ in search_query, so the URL is built by hand.
	reqURL := fmt.Sprintf("%s?search_query=%s&sortBy=submittedDate&sortOrder=descending&max_results=%d",
		a.baseURL, strings.Join(parts, "+OR+"), a.maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create arxiv request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv status %d", resp.StatusCode)
	}

	feed, err := a.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse arxiv: %w", err)
	}

	now := a.now().UTC()
	articles := make([]Article, 0, len(feed.Items))
	for _, entry := range feed.Items {
		paperID := extractArXivID(entry.GUID)
		if paperID == "" {
			continue
		}

		authors := make([]string, 0, len(entry.Authors))
		for _, au := range entry.Authors {
			if au != nil && au.Name != "" {
				authors = append(authors, au.Name)
			}
		}

		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		link := entry.Link
		if link == "" {
			link = entry.GUID
		}

		articles = append(articles, Article{
			ID:          "arxiv:" + paperID,
			Source:      SourceArXiv,
			ExternalID:  paperID,
			Title:       strings.Join(strings.Fields(entry.Title), " "),
			URL:         link,
			Summary:     truncate(strings.Join(strings.Fields(entry.Description), " "), 500),
			Author:      strings.Join(authors, ", "),
			Language:    "en",
			Tags:        entry.Categories,
			PublishedAt: published,
			CollectedAt: now,
		})
	}

	return articles, nil
}

// extractArXivID turns "http://arxiv.org/abs/2402.12345v1" into "2402.12345".
func extractArXivID(uri string) string {
	_, id, ok := strings.Cut(uri, "/abs/")
	if !ok {
		return uri
	}
	if idx := strings.LastIndex(id, "v"); idx > 0 {
		id = id[:idx]
	}
	return id
}
