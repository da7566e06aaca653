// Package slice provides utility methods for common operations on slices.
package slice

// Contains checks if a given slice contains the provided value.
func Contains[T comparable](s []T, v T) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// UniqueStrings returns the non-empty strings of s in their original order
// with later repeats removed.
func UniqueStrings(s []string) []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, item := range s {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
