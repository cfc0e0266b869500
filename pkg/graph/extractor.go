// Package graph merges LLM-extracted entities and relations into the weighted
// knowledge graph and answers browse queries over it.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/elonfeng/aipulse/pkg/llm"
	"github.com/elonfeng/aipulse/pkg/source"
)

const extractPrompt = `You are building a knowledge graph of the AI industry. Extract the important entities and the relations between them from the article below.

Entity types: person, organization, model, product, technique, dataset, concept.
Relation types (lower_snake_case): develops, releases, uses, competes_with, acquires, invests_in, part_of, based_on, related_to.

Rules:
- Use the most common full name for each entity (e.g. "OpenAI", "GPT-5", "Sam Altman").
- Every relation's "source" and "target" must exactly match a name in "entities".
- "evidence" is a short quote or paraphrase from the article supporting the relation.

Title: %s
Summary: %s

Respond with a JSON object:
{"entities":[{"name":"...","type":"..."}],"relations":[{"source":"...","target":"...","type":"...","evidence":"..."}]}

Return ONLY the JSON object, no other text.`

// maxSummary bounds the article text sent to the model, in runes.
const maxSummary = 2000

// ExtractedEntity is one entity named by the model.
type ExtractedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExtractedRelation is one relation named by the model. Source and Target are entity names.
type ExtractedRelation struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Type     string `json:"type"`
	Evidence string `json:"evidence"`
}

// Extraction is the model's answer for one article.
type Extraction struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

// Extractor asks an LLM for the entities and relations in an article.
type Extractor struct {
	llm llm.Completer
}

// NewExtractor creates an extractor backed by c.
func NewExtractor(c llm.Completer) *Extractor {
	return &Extractor{llm: c}
}

// Extract returns the entities and relations in a. A malformed answer is a *llm.ParseError.
func (e *Extractor) Extract(ctx context.Context, a source.Article) (Extraction, error) {
	summary := []rune(strings.TrimSpace(a.Summary))
	if len(summary) > maxSummary {
		summary = summary[:maxSummary]
	}

	raw, err := e.llm.Complete(ctx, fmt.Sprintf(extractPrompt, a.Title, string(summary)))
	if err != nil {
		return Extraction{}, fmt.Errorf("extract entities %s: %w", a.ID, err)
	}
	return llm.ParseJSON[Extraction](raw)
}
