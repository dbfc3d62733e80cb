package catalog

import "regexp"

var hashtagPattern = regexp.MustCompile(`#\w+`)

// ExtractHashtags scans a description for #word tokens, in order of
// appearance. Deterministic: the same description always yields the same
// list.
func ExtractHashtags(description string) []string {
	tags := hashtagPattern.FindAllString(description, -1)
	if tags == nil {
		return []string{}
	}
	return tags
}
