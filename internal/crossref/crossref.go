package crossref

import (
	"regexp"
	"strings"
)

// tagPattern matches inline hashtags (e.g., #backend, #q3-planning).
var tagPattern = regexp.MustCompile(`#([A-Za-z0-9][A-Za-z0-9_-]*)`)

// ExtractTags extracts all hashtag references from text, without the
// leading #. Returns a deduplicated, lowercased list preserving the order
// of first occurrence.
func ExtractTags(text string) []string {
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var result []string
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if seen[tag] {
			continue
		}
		seen[tag] = true
		result = append(result, tag)
	}
	return result
}

// MatchLabels extracts hashtags from a card's title and description. If
// knownLabels is non-empty, only tags naming one of those labels (compared
// lowercased) are returned; otherwise all found tags are returned.
func MatchLabels(
	title string,
	description string,
	knownLabels map[string]bool,
) []string {
	combined := title + " " + description
	tags := ExtractTags(combined)

	if len(knownLabels) == 0 {
		return tags
	}

	var filtered []string
	for _, tag := range tags {
		if knownLabels[tag] {
			filtered = append(filtered, tag)
		}
	}
	return filtered
}
