// Package strings normalises the free-text vocabulary tags (food types,
// allergens) shared by donations and search queries.
package strings

import (
	"strings"
	"unicode"
)

// CanonicalTags trims each tag, upper-cases its first letter, and drops
// empty tags and case-insensitive repeats, keeping the first spelling seen.
// The record store and the attribute store both hold the canonical form.
//
//	CanonicalTags([]string{" peanut", "Dairy", "PEANUT", "freshProduce"})
//	// []string{"Peanut", "Dairy", "FreshProduce"}
func CanonicalTags(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		tag := strings.TrimSpace(v)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		runes := []rune(tag)
		runes[0] = unicode.ToUpper(runes[0])
		out = append(out, string(runes))
	}
	return out
}

// SplitList accepts repeated query parameters as well as "a,b" values and
// returns the canonical tags.
func SplitList(values []string) []string {
	var parts []string
	for _, v := range values {
		parts = append(parts, strings.Split(v, ",")...)
	}
	return CanonicalTags(parts)
}
