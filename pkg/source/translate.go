package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/pkg/llm"
)

const translatePrompt = `Translate each news headline below into %s. Keep product and model names unchanged.

Headlines:
%s

Respond with a JSON array of objects {"id": "...", "title": "..."} using the same ids. Return ONLY the JSON array.`

// Translator fills Article.TitleTranslated using an LLM. Best-effort: on any
// failure the articles are returned untouched.
type Translator struct {
	llm      llm.Completer
	target   string
	maxBatch int
}

// NewTranslator creates a translator into the target language (e.g. "ko").
func NewTranslator(c llm.Completer, target string) *Translator {
	if target == "" {
		target = "ko"
	}
	return &Translator{llm: c, target: target, maxBatch: 40}
}

type translatedTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Translate fills missing translated titles in place.
func (t *Translator) Translate(ctx context.Context, articles []Article) {
	var pending []int
	for i := range articles {
		if articles[i].TitleTranslated == "" && articles[i].Language != t.target {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += t.maxBatch {
		end := min(start+t.maxBatch, len(pending))
		if err := t.translateBatch(ctx, articles, pending[start:end]); err != nil {
			logging.Warn().Err(err).Int("articles", end-start).Msg("title translation skipped")
		}
	}
}

func (t *Translator) translateBatch(ctx context.Context, articles []Article, idx []int) error {
	lines := make([]string, 0, len(idx))
	for _, i := range idx {
		lines = append(lines, fmt.Sprintf("- id: %s | %s", articles[i].ID, articles[i].Title))
	}

	raw, err := t.llm.Complete(ctx, fmt.Sprintf(translatePrompt, t.target, strings.Join(lines, "\n")))
	if err != nil {
		return fmt.Errorf("translate titles: %w", err)
	}
	results, err := llm.ParseJSON[[]translatedTitle](raw)
	if err != nil {
		return err
	}

	byID := make(map[string]string, len(results))
	for _, r := range results {
		byID[r.ID] = strings.TrimSpace(r.Title)
	}
	for _, i := range idx {
		if title := byID[articles[i].ID]; title != "" {
			articles[i].TitleTranslated = title
		}
	}
	return nil
}
