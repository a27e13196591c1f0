package policies

import (
	"encoding/json"
	"time"
)

// Policy is a named JSON-valued configuration document consulted by
// extensions and the admin console. The store validates identity only;
// the value shape belongs to the consumer.
type Policy struct {
	ID         int64           `json:"id"`
	PolicyName string          `json:"policy_name"`
	Value      json.RawMessage `json:"policy_value"`
	IsActive   bool            `json:"is_active"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Recognized policy names. Unknown names are legal to store but have no
// consumer-defined meaning.
const (
	PolicyAutoDisableNewExtensions = "auto_disable_new_extensions"
	PolicyBlockExtensionsPage      = "block_extensions_page_access"
	PolicyExtensionWhitelist       = "extension_whitelist"
	PolicyAutoLogoutOnDisable      = "auto_logout_on_disable"
)

// KnownPolicyNames lists the policies the extension consults.
var KnownPolicyNames = []string{
	PolicyAutoDisableNewExtensions,
	PolicyBlockExtensionsPage,
	PolicyExtensionWhitelist,
	PolicyAutoLogoutOnDisable,
}

// AutoDisablePolicy is the shape of auto_disable_new_extensions.
type AutoDisablePolicy struct {
	Enabled       bool     `json:"enabled"`
	ExcludedTypes []string `json:"excludedTypes"`
}

// BlockExtensionsPagePolicy is the shape of block_extensions_page_access.
type BlockExtensionsPagePolicy struct {
	Enabled      bool `json:"enabled"`
	AllowDevMode bool `json:"allowDevMode"`
}

// AutoLogoutPolicy is the shape of auto_logout_on_disable.
type AutoLogoutPolicy struct {
	Enabled      bool `json:"enabled"`
	ClearCookies bool `json:"clearCookies"`
	ClearStorage bool `json:"clearStorage"`
}
