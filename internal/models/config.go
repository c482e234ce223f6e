package models

import "errors"

// Well-known config keys.
const (
	ConfigDemoMunicipality = "demo_mun"
	ConfigStartMessage     = "start_message"
	ConfigVerifyEmail      = "verify_email"
	ConfigSupportEmail     = "support_email"
	ConfigAppSiteURL       = "appsite_url"
)

// ConfigEntry is a row from the `config` table.
type ConfigEntry struct {
	ID    string `gorm:"column:config_id;primaryKey" json:"config_id"`
	Key   string `gorm:"column:config_key;uniqueIndex" json:"config_key"`
	Value string `gorm:"column:config_value" json:"config_value"`
}

// TableName binds the row to the `config` table.
func (ConfigEntry) TableName() string { return "config" }

// Validate enforces the row shape at the decoding boundary.
func (c *ConfigEntry) Validate() error {
	if c.Key == "" {
		return errors.New("config_key is required")
	}
	return nil
}

// ConfigMap flattens config rows into a key→value mapping.
func ConfigMap(entries []ConfigEntry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out
}
