package rules

import "time"

// URL rule actions
const (
	URLActionRedirect = "redirect"
	URLActionBlock    = "block"
)

// CSS rule actions
const (
	CSSActionHide   = "hide"
	CSSActionModify = "modify"
	CSSActionRemove = "remove"
)

// Cookie rule actions
const (
	CookieActionPreserve = "preserve"
	CookieActionDelete   = "delete"
)

// URLRule redirects or blocks page loads whose URL matches the pattern.
type URLRule struct {
	ID          int64     `json:"id"`
	Pattern     string    `json:"pattern"`
	Action      string    `json:"action"`
	Target      string    `json:"target,omitempty"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CSSRule hides, modifies or removes elements matched by the selector on
// pages matching the URL pattern. Properties are stored as JSON and
// served to the extension as a structured object.
type CSSRule struct {
	ID            int64             `json:"id"`
	URLPattern    string            `json:"url_pattern"`
	Selector      string            `json:"selector"`
	Action        string            `json:"action"`
	CSSProperties map[string]string `json:"cssProperties,omitempty"`
	Description   string            `json:"description,omitempty"`
	IsActive      bool              `json:"is_active"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// CookieRule preserves or deletes a named cookie on a domain.
type CookieRule struct {
	ID          int64     `json:"id"`
	Domain      string    `json:"domain"`
	Name        string    `json:"name"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// URLRuleInput carries create/update fields for a URL rule. Nil fields
// are left untouched on update.
type URLRuleInput struct {
	Pattern     *string `json:"pattern"`
	Action      *string `json:"action"`
	Target      *string `json:"target"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// CSSRuleInput carries create/update fields for a CSS rule.
type CSSRuleInput struct {
	URLPattern    *string            `json:"url_pattern"`
	Selector      *string            `json:"selector"`
	Action        *string            `json:"action"`
	CSSProperties *map[string]string `json:"css_properties"`
	Description   *string            `json:"description"`
	IsActive      *bool              `json:"is_active"`
}

// CookieRuleInput carries create/update fields for a cookie rule.
type CookieRuleInput struct {
	Domain      *string `json:"domain"`
	Name        *string `json:"name"`
	Action      *string `json:"action"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// RuleSet is the combined payload served to extensions.
type RuleSet struct {
	URLRules    []URLRule    `json:"urlRules"`
	CSSRules    []CSSRule    `json:"cssRules"`
	CookieRules []CookieRule `json:"cookieRules"`
}
