package parts

import (
	"log"
	"regexp"
	"sync"

	"github.com/go-while/go-pugbin/internal/models"
)

// compiled patterns; a nil *regexp.Regexp marks a pattern that failed to compile
var patternCache sync.Map // map[string]*regexp.Regexp

func compilePattern(pattern string) *regexp.Regexp {
	if v, ok := patternCache.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("[PARTS] ignoring invalid blacklist pattern %q: %v", pattern, err)
		re = nil
	}
	patternCache.Store(pattern, re)
	return re
}

// IsBlacklisted reports whether any rule's group pattern matches groupName
// and that rule's subject pattern matches subject. Patterns are unanchored.
func IsBlacklisted(subject, groupName string, rules []models.BlacklistRule) bool {
	for i := range rules {
		groupRe := compilePattern(rules[i].GroupName)
		if groupRe == nil || !groupRe.MatchString(groupName) {
			continue
		}
		subjectRe := compilePattern(rules[i].Regex)
		if subjectRe != nil && subjectRe.MatchString(subject) {
			return true
		}
	}
	return false
}
