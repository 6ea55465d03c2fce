package nntp

import (
	"strings"
)

// IsWildmat reports whether s is a wildmat expression rather than a
// plain group name.
func IsWildmat(s string) bool {
	return strings.ContainsAny(s, "*?,!")
}

// SplitWildmat splits a comma separated wildmat list.
func SplitWildmat(s string) []string {
	var patterns []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// MatchWildmat evaluates a wildmat list against group as INN does: the
// last matching pattern decides, and a pattern prefixed with ! deselects.
func MatchWildmat(group string, patterns []string) bool {
	matched := false
	for _, pattern := range patterns {
		negate := strings.HasPrefix(pattern, "!")
		if negate {
			pattern = pattern[1:]
		}
		if pattern == "" {
			continue
		}
		if matchWildcard(group, pattern) {
			matched = !negate
		}
	}
	return matched
}

// matchWildcard supports * for any run of characters and ? for one.
func matchWildcard(text, pattern string) bool {
	return matchWildcardRecursive(text, pattern, 0, 0)
}

func matchWildcardRecursive(text, pattern string, textIdx, patternIdx int) bool {
	if patternIdx == len(pattern) {
		return textIdx == len(text)
	}

	if pattern[patternIdx] == '*' {
		// collapse runs of *
		for patternIdx+1 < len(pattern) && pattern[patternIdx+1] == '*' {
			patternIdx++
		}
		for i := textIdx; i <= len(text); i++ {
			if matchWildcardRecursive(text, pattern, i, patternIdx+1) {
				return true
			}
		}
		return false
	}

	if textIdx == len(text) {
		return false
	}
	if pattern[patternIdx] == '?' || pattern[patternIdx] == text[textIdx] {
		return matchWildcardRecursive(text, pattern, textIdx+1, patternIdx+1)
	}
	return false
}
