package rules

import (
	"regexp"
	"strings"
)

// ValidationError marks caller-correctable input problems so handlers
// can map them to a 400 without inspecting message text.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// selectorDenylist blocks selectors that could hide or remove
// whole-document elements.
var selectorDenylist = []string{"script", "body", "html", "[src]"}

var domainPattern = regexp.MustCompile(`^(?i)(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9][a-z0-9-]{0,61}[a-z0-9]$`)

// ValidURLPattern reports whether the pattern is usable by the
// extension: a compilable regular expression, or a `*` wildcard pattern
// convertible to one.
func ValidURLPattern(pattern string) bool {
	if pattern == "" {
		return false
	}

	if _, err := regexp.Compile(pattern); err == nil {
		return true
	}

	if strings.Contains(pattern, "*") {
		converted := strings.NewReplacer(".", `\.`, "*", ".*").Replace(pattern)
		if _, err := regexp.Compile(converted); err == nil {
			return true
		}
	}

	return false
}

// ValidCSSSelector reports whether the selector is non-empty and free of
// denylisted fragments.
func ValidCSSSelector(selector string) bool {
	if selector == "" {
		return false
	}

	lower := strings.ToLower(selector)
	for _, banned := range selectorDenylist {
		if strings.Contains(lower, banned) {
			return false
		}
	}
	return true
}

// ValidDomain reports whether the value matches standard DNS hostname
// grammar.
func ValidDomain(domain string) bool {
	return domain != "" && domainPattern.MatchString(domain)
}

func validURLAction(action string) bool {
	return action == URLActionRedirect || action == URLActionBlock
}

func validCSSAction(action string) bool {
	return action == CSSActionHide || action == CSSActionModify || action == CSSActionRemove
}

func validCookieAction(action string) bool {
	return action == CookieActionPreserve || action == CookieActionDelete
}
