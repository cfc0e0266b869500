package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/elonfeng/aipulse/internal/logging"
	"golang.org/x/sync/errgroup"
)

const hnBaseURL = "https://hacker-news.firebaseio.com/v0"

// hnBatchSize bounds concurrent item fetches.
const hnBatchSize = 10

// HackerNews collects AI-related stories from Hacker News.
type HackerNews struct {
	client  *http.Client
	baseURL string
	limit   int
	filter  *Filter
}

// NewHackerNews creates a new HN collector.
func NewHackerNews(limit int, filter *Filter) *HackerNews {
	if limit <= 0 {
		limit = 100
	}
	return &HackerNews{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: hnBaseURL,
		limit:   limit,
		filter:  filter,
	}
}

func (h *HackerNews) Name() SourceType { return SourceHackerNews }

func (h *HackerNews) Collect(ctx context.Context) ([]Article, error) {
	ids, err := h.fetchTopStories(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > h.limit {
		ids = ids[:h.limit]
	}

	var (
		mu       sync.Mutex
		articles []Article
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hnBatchSize)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			story, err := h.fetchItem(gctx, id)
			if err != nil {
				logging.Debug().Err(err).Int("id", id).Msg("hn item skipped")
				return nil
			}
			if story == nil {
				return nil
			}

			a := Article{
				ID:          fmt.Sprintf("hackernews:%d", story.ID),
				Source:      SourceHackerNews,
				ExternalID:  strconv.Itoa(story.ID),
				Title:       story.Title,
				URL:         story.URL,
				Author:      story.By,
				Language:    "en",
				PublishedAt: time.Unix(story.Time, 0).UTC(),
				CollectedAt: time.Now().UTC(),
			}
			if a.URL == "" {
				a.URL = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", story.ID)
			}
			if !h.filter.MatchesArticle(&a) {
				return nil
			}

			mu.Lock()
			articles = append(articles, a)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return articles, nil
}

type hnStory struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	By    string `json:"by"`
	Time  int64  `json:"time"`
	Type  string `json:"type"`
}

func (h *HackerNews) fetchTopStories(ctx context.Context) ([]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/topstories.json", nil)
	if err != nil {
		return nil, fmt.Errorf("create hn request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hn top stories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hn top stories status %d", resp.StatusCode)
	}

	var ids []int
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("decode hn top stories: %w", err)
	}
	return ids, nil
}

func (h *HackerNews) fetchItem(ctx context.Context, id int) (*hnStory, error) {
	url := fmt.Sprintf("%s/item/%d.json", h.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create hn item request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hn item %d: %w", id, err)
	}
	defer resp.Body.Close()

	var story hnStory
	if err := json.NewDecoder(resp.Body).Decode(&story); err != nil {
		return nil, fmt.Errorf("decode hn item %d: %w", id, err)
	}

	if story.Type != "story" {
		return nil, nil
	}
	return &story, nil
}
