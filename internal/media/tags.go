package media

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var tagFolder = cases.Fold()

// NormalizeTag canonicalizes a tag label for comparison and storage: case
// folded, trimmed, internal whitespace collapsed to single hyphens.
func NormalizeTag(label string) string {
	folded := tagFolder.String(strings.TrimSpace(label))
	if folded == "" {
		return ""
	}
	return strings.Join(strings.Fields(folded), "-")
}

// DisplayTag renders a normalized tag for user-facing output.
func DisplayTag(tag string) string {
	words := strings.Split(tag, "-")
	titler := cases.Title(language.English)
	for i, word := range words {
		words[i] = titler.String(word)
	}
	return strings.Join(words, " ")
}

// RankTags normalizes, deduplicates, and sorts tag scores by descending
// confidence (ties broken by tag name for determinism), keeping the top k.
func RankTags(tags []TagScore, k int) []TagScore {
	if k < 1 {
		return nil
	}
	best := make(map[string]float64, len(tags))
	for _, t := range tags {
		name := NormalizeTag(t.Tag)
		if name == "" {
			continue
		}
		if conf, ok := best[name]; !ok || t.Confidence > conf {
			best[name] = t.Confidence
		}
	}
	ranked := make([]TagScore, 0, len(best))
	for name, conf := range best {
		ranked = append(ranked, TagScore{Tag: name, Confidence: conf})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].Tag < ranked[j].Tag
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
