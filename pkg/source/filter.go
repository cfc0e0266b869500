package source

import "strings"

// DefaultAIKeywords is the base set used to keep general feeds on topic.
var DefaultAIKeywords = []string{
	"artificial intelligence", "machine learning", "deep learning",
	"neural network", "llm", "large language model", "gpt",
	"transformer", "diffusion", "generative ai", "genai", "agi",
	"reinforcement learning", "fine-tuning", "rag", "embedding",
	"inference", "ai agent", "agentic", "copilot", "chatbot",
	"foundation model", "llama", "mistral", "gemini", "openai",
	"anthropic", "claude", "hugging face", "pytorch", "gpu",
	"text-to-image", "text-to-speech", "multimodal", "ai safety",
	"alignment", "prompt", "인공지능",
}

// Filter matches article text against include and exclude keyword lists.
type Filter struct {
	keywords []string
	exclude  []string
}

// NewFilter creates a filter with default AI keywords plus extras.
func NewFilter(extraKeywords, excludeKeywords []string) *Filter {
	keywords := make([]string, 0, len(DefaultAIKeywords)+len(extraKeywords))
	for _, kw := range append(append([]string{}, DefaultAIKeywords...), extraKeywords...) {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	exclude := make([]string, 0, len(excludeKeywords))
	for _, kw := range excludeKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			exclude = append(exclude, kw)
		}
	}

	return &Filter{keywords: keywords, exclude: exclude}
}

// Matches returns true if text contains an included keyword and no excluded one.
func (f *Filter) Matches(text string) bool {
	lower := strings.ToLower(text)

	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// MatchesArticle checks titles, summary and tags of an article.
func (f *Filter) MatchesArticle(a *Article) bool {
	if f == nil {
		return true
	}
	parts := []string{a.Title, a.TitleTranslated, a.Summary}
	parts = append(parts, a.Tags...)
	return f.Matches(strings.Join(parts, " "))
}
