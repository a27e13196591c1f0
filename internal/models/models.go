package models

// Config holds server configuration
type Config struct {
	Port             string
	DBPath           string
	AuthEnabled      bool
	AdminUser        string
	AdminPass        string
	TokenTTLDays     int
	LogRetentionDays int
	NotifyURL        string
}
