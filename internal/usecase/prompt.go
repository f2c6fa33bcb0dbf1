package usecase

import (
	"fmt"
	"strings"

	"TrendsScanner/internal/domain"
)

// BuildPrompt asks for a category, summary, article and FAQ in the labeled
// layout ParseResponse reads back.
func BuildPrompt(title string, news []domain.NewsItem, categories []string) string {
	var headlines strings.Builder
	for _, n := range news {
		fmt.Fprintf(&headlines, "- %q from %s\n", n.Title, n.Source)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write an in-depth, search-friendly article (100-300 words) about the trending topic %q based on these news headlines:\n", title)
	b.WriteString(headlines.String())
	b.WriteString("\nInclude:\n")
	fmt.Fprintf(&b, "1. CATEGORY: classify the topic into exactly ONE of these categories: %s\n", strings.Join(categories, ", "))
	b.WriteString("2. SUMMARY: one or two sentences explaining what the topic is and why it is trending.\n")
	b.WriteString("3. ARTICLE: a short introduction followed by a bulleted list of 4-7 key developments, facts or implications.\n")
	b.WriteString("4. FAQ: 2-3 questions people also ask, each with a concise answer.\n")
	b.WriteString(`
Respond in exactly this format:
CATEGORY: [single category name]
SUMMARY: [1-2 sentence summary]
ARTICLE:
[Introduction]

- [Key point 1]
- [Key point 2]
- [Key point 3]

FAQ:
Q1: [Question 1]
A1: [Answer 1]
Q2: [Question 2]
A2: [Answer 2]
`)
	return b.String()
}
