package models

// JSONB-backed field types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Reference is a single cited source attached to an answer.
type Reference struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Icon  string `json:"icon,omitempty"`
}

// References is stored as a jsonb column.
type References []Reference

func (r References) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal references: %w", err)
	}
	return string(data), nil
}

func (r *References) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// Channel describes one vendor channel/repo entry embedded in an Integration.
// Chat vendors use the Allowed flag, GitHub uses Mode (auto/manual).
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"type,omitempty"` // text/forum/unknown for Discord, repo for GitHub
	Allowed bool   `json:"allowed"`
	Mode    string `json:"mode,omitempty"`
}

// GitHub repo answering modes.
const (
	ChannelModeAuto   = "auto"
	ChannelModeManual = "manual"
)

// Channels is stored as a jsonb column.
type Channels []Channel

func (c Channels) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal channels: %w", err)
	}
	return string(data), nil
}

func (c *Channels) Scan(value interface{}) error {
	return scanJSON(value, c)
}

// StringList is a jsonb string array (follow-up question cache etc).
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

func (s *StringList) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// JSONMap is a free-form jsonb payload (processed context relevances).
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json map: %w", err)
	}
	return string(data), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	return scanJSON(value, m)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case string:
		return json.Unmarshal([]byte(v), dest)
	case []byte:
		return json.Unmarshal(v, dest)
	default:
		return fmt.Errorf("cannot scan %T into %T", value, dest)
	}
}
