package trend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/elonfeng/aipulse/pkg/llm"
)

const refinePrompt = `You are an AI news editor. Below is a list of trending keywords extracted from AI news headlines in the last %d hours, with their article counts.

Group keywords that refer to the same product, model, company or event, and give each group a short, clean topic label (e.g. "GPT-5 Release", "Llama 4"). Keywords that are not related to anything else form their own group. Drop nothing.

Keywords:
%s

Respond with a JSON array. Each element must have: "label" (string) and "keywords" (array of keywords copied exactly from the list).
Example: [{"label":"GPT-5 Release","keywords":["gpt-5","openai"]}]

Return ONLY the JSON array, no other text.`

// Refiner relabels or groups scored topics. Implementations may fail; callers
// keep the unrefined list when they do.
type Refiner interface {
	Refine(ctx context.Context, hours int, topics []Topic) ([]Topic, error)
}

// Group is one LLM-proposed topic grouping.
type Group struct {
	Label    string   `json:"label"`
	Keywords []string `json:"keywords"`
}

// LLMRefiner groups topics with a text-generation model.
type LLMRefiner struct {
	llm llm.Completer
}

// NewLLMRefiner creates a refiner backed by c.
func NewLLMRefiner(c llm.Completer) *LLMRefiner {
	return &LLMRefiner{llm: c}
}

func (r *LLMRefiner) Refine(ctx context.Context, hours int, topics []Topic) ([]Topic, error) {
	if len(topics) == 0 {
		return topics, nil
	}

	var sb strings.Builder
	for _, t := range topics {
		fmt.Fprintf(&sb, "- %s (%d articles, %+.0f%%)\n", t.Topic, t.Frequency, t.Growth)
	}

	raw, err := r.llm.Complete(ctx, fmt.Sprintf(refinePrompt, hours, sb.String()))
	if err != nil {
		return nil, fmt.Errorf("refine topics: %w", err)
	}
	groups, err := llm.ParseJSON[[]Group](raw)
	if err != nil {
		return nil, err
	}
	return Merge(topics, groups)
}

// Merge applies groups to topics. Members of a group collapse into one topic
// named by the group label: frequencies are summed, growth is the maximum and
// related lists are unioned and capped at MaxRelated. Topics no group names are
// kept unchanged; a topic named by several groups joins the first. The result
// is re-sorted. Merge fails when no group names a known topic.
func Merge(topics []Topic, groups []Group) ([]Topic, error) {
	byName := make(map[string]int, len(topics))
	for i, t := range topics {
		byName[strings.ToLower(t.Topic)] = i
	}

	used := make(map[int]bool, len(topics))
	var out []Topic
	for _, g := range groups {
		var members []int
		for _, kw := range g.Keywords {
			idx, ok := byName[strings.ToLower(strings.TrimSpace(kw))]
			if !ok || used[idx] {
				continue
			}
			used[idx] = true
			members = append(members, idx)
		}
		if len(members) == 0 {
			continue
		}
		out = append(out, mergeMembers(topics, members, strings.TrimSpace(g.Label)))
	}
	if len(out) == 0 {
		return nil, errors.New("refine topics: no usable grouping")
	}

	for i, t := range topics {
		if !used[i] {
			out = append(out, t)
		}
	}
	sortTopics(out)
	return out, nil
}

func mergeMembers(topics []Topic, members []int, label string) Topic {
	first := topics[members[0]]
	if label == "" {
		label = first.Topic
	}
	merged := Topic{Topic: label, Growth: first.Growth}

	memberNames := make(map[string]bool, len(members))
	for _, idx := range members {
		memberNames[topics[idx].Topic] = true
	}

	seenArticles := make(map[string]bool)
	seenKeywords := make(map[string]bool)
	var articles []ArticleRef
	keywords := make([]string, 0, MaxRelated)

	for _, idx := range members {
		t := topics[idx]
		merged.Frequency += t.Frequency
		merged.Growth = max(merged.Growth, t.Growth)

		for _, a := range t.RelatedArticles {
			if !seenArticles[a.ID] {
				seenArticles[a.ID] = true
				articles = append(articles, a)
			}
		}
		for _, k := range t.RelatedKeywords {
			if len(keywords) < MaxRelated && !seenKeywords[k] && !memberNames[k] {
				seenKeywords[k] = true
				keywords = append(keywords, k)
			}
		}
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if len(articles) > MaxRelated {
		articles = articles[:MaxRelated]
	}
	if articles == nil {
		articles = []ArticleRef{}
	}
	merged.RelatedArticles = articles
	merged.RelatedKeywords = keywords
	return merged
}
