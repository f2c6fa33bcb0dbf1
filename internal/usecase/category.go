package usecase

import (
	"strings"
	"unicode"

	"TrendsScanner/internal/domain"
)

// categoryIndex resolves free-text classifications to seeded categories.
type categoryIndex struct {
	byKey map[string]domain.Category
	names []string
	other *domain.Category
}

func newCategoryIndex(categories []domain.Category) *categoryIndex {
	idx := &categoryIndex{byKey: make(map[string]domain.Category, len(categories)*2)}
	for _, c := range categories {
		idx.byKey[normalizeCategory(c.Name)] = c
		if c.Slug != "" {
			idx.byKey[normalizeCategory(c.Slug)] = c
		}
		idx.names = append(idx.names, c.Name)
		if strings.EqualFold(c.Name, domain.OtherCategory) {
			other := c
			idx.other = &other
		}
	}
	return idx
}

// resolve returns the matched category, or Other when nothing matches. The
// id is nil when no Other category is seeded either.
func (idx *categoryIndex) resolve(label string) (string, *int64) {
	if c, ok := idx.byKey[normalizeCategory(label)]; ok && label != "" {
		id := c.ID
		return c.Name, &id
	}
	if idx.other != nil {
		id := idx.other.ID
		return idx.other.Name, &id
	}
	return domain.OtherCategory, nil
}

// normalizeCategory folds case, spells out "&" and drops punctuation so that
// "Business & Finance", "business-finance" and "business and finance" agree.
func normalizeCategory(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "&", " and "))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	// slugs drop the conjunction, so it never takes part in a match
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if f != "and" {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}
