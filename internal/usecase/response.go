package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"TrendsScanner/internal/domain"
)

// Section headers must open a line. Markdown emphasis or heading marks
// around the label are tolerated, e.g. "**ARTICLE:**" or "## FAQ:".
var (
	sectionHeader  = regexp.MustCompile(`(?im)^[ \t*#_]*(CATEGORY|SUMMARY|ARTICLE|FAQ)[ \t*_]*:[ \t*_]*`)
	questionMarker = regexp.MustCompile(`(?im)^[ \t*_]*Q\d+[ \t*_]*:[ \t*_]*`)
	answerMarker   = regexp.MustCompile(`(?im)^[ \t*_]*A\d+[ \t*_]*:[ \t*_]*`)
	decoration     = strings.NewReplacer("*", "", "[", "", "]", "")
)

// GeneratedContent is a parsed generation response.
type GeneratedContent struct {
	Category string
	Summary  string
	Article  string
	FAQ      []domain.FAQ
}

// ParseResponse reads the CATEGORY/SUMMARY/ARTICLE/FAQ sections. A missing
// summary or article is an error; a missing category or FAQ is not.
func ParseResponse(text string) (GeneratedContent, error) {
	sections := splitSections(text)

	var out GeneratedContent
	if s, ok := sections["CATEGORY"]; ok {
		line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
		out.Category = clean(line)
	}
	out.Summary = clean(sections["SUMMARY"])
	out.Article = strings.TrimSpace(sections["ARTICLE"])
	if s, ok := sections["FAQ"]; ok {
		out.FAQ = parseFAQ(s)
	}

	switch {
	case out.Summary == "":
		return out, fmt.Errorf("%w: no summary section", domain.ErrParseResponse)
	case out.Article == "":
		return out, fmt.Errorf("%w: no article section", domain.ErrParseResponse)
	}
	return out, nil
}

type headerMatch struct {
	name       string
	start, end int
}

// splitSections maps each header to the text up to the next header. Only the
// first occurrence of a header opens a section; repeats stay in the body.
func splitSections(text string) map[string]string {
	var headers []headerMatch
	seen := make(map[string]bool, 4)
	for _, m := range sectionHeader.FindAllStringSubmatchIndex(text, -1) {
		name := strings.ToUpper(text[m[2]:m[3]])
		if seen[name] {
			continue
		}
		seen[name] = true
		headers = append(headers, headerMatch{name: name, start: m[0], end: m[1]})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].start < headers[j].start })

	sections := make(map[string]string, len(headers))
	for i, h := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1].start
		}
		sections[h.name] = text[h.end:end]
	}
	return sections
}

// parseFAQ splits "Q<n>: ... A<n>: ..." blocks. Pairs missing either half are
// dropped.
func parseFAQ(text string) []domain.FAQ {
	marks := questionMarker.FindAllStringIndex(text, -1)
	var faq []domain.FAQ
	for i, m := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		block := text[m[1]:end]

		a := answerMarker.FindStringIndex(block)
		if a == nil {
			continue
		}
		q := clean(block[:a[0]])
		ans := clean(block[a[1]:])
		if q == "" || ans == "" {
			continue
		}
		faq = append(faq, domain.FAQ{Question: q, Answer: ans})
	}
	return faq
}

func clean(s string) string {
	return strings.TrimSpace(decoration.Replace(s))
}
