package processor

import "regexp"

var (
	validGroupNameRegexStrict = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*(?:\.[a-z0-9][a-z0-9+-]*)+$`)
	validGroupNameRegexLazy   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+&-]*$`)
)

// IsValidGroupName validates a newsgroup name: dot separated components
// of lowercase letters, digits and hyphens. lazy also accepts upper-case,
// single-component and '&' names some servers carry.
func IsValidGroupName(name string, lazy bool) bool {
	if len(name) < 1 || len(name) > 255 {
		return false
	}
	if lazy {
		return validGroupNameRegexLazy.MatchString(name)
	}
	return validGroupNameRegexStrict.MatchString(name)
}
