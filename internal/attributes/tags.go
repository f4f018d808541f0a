package attributes

import "regexp"

var tagPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ValidTag reports whether a food-type or allergen tag can be used as a
// graph local name.
func ValidTag(tag string) bool {
	return tagPattern.MatchString(tag)
}

// InvalidTags returns the tags ValidTag rejects.
func InvalidTags(tags []string) []string {
	var bad []string
	for _, t := range tags {
		if !ValidTag(t) {
			bad = append(bad, t)
		}
	}
	return bad
}
