package models

import "time"

// Setting is a runtime-tunable key stored in the database. Values override the
// static config file on startup.
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	ValueType   string    `json:"value_type"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	IsSensitive bool      `json:"is_sensitive"`
	UpdatedAt   time.Time `json:"updated_at"`
}
