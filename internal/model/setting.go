package model

import (
	"encoding/json"
	"time"
)

// Well-known setting keys.
const (
	SettingActiveBoard = "activeBoard"
	SettingTheme       = "theme"
)

// Setting is a single application preference, keyed by name rather than by
// a generated id. Value holds arbitrary JSON.
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RecordID returns the setting's storage key.
func (s Setting) RecordID() string { return s.Key }

// StringValue decodes the setting value as a JSON string, returning "" when
// the value is absent or not a string.
func (s Setting) StringValue() string {
	var v string
	if err := json.Unmarshal(s.Value, &v); err != nil {
		return ""
	}
	return v
}

// NewStringSetting builds a Setting holding a JSON string value.
func NewStringSetting(key, value string) Setting {
	raw, _ := json.Marshal(value)
	return Setting{Key: key, Value: raw, UpdatedAt: time.Now().UTC()}
}
