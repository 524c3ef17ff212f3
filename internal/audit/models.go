package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Log represents an audit log entry
type Log struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	EventID        string    `gorm:"type:uuid;not null;uniqueIndex" json:"event_id"`
	EventType      string    `gorm:"not null;index" json:"event_type"`
	Category       string    `gorm:"not null;index" json:"category"`
	Action         string    `gorm:"not null" json:"action"`
	OrganizationID string    `gorm:"index" json:"organization_id"`
	UserID         string    `json:"user_id"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `gorm:"index" json:"entity_id"`
	Details        JSON      `gorm:"type:jsonb" json:"details"`
	Result         string    `gorm:"not null" json:"result"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
}

// TableName pins the table name
func (Log) TableName() string { return "audit_logs" }

// JSON is a jsonb column
type JSON json.RawMessage

// Scan implements the Scanner interface for GORM
func (j *JSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(JSON(nil), v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("unsupported jsonb value %T", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for GORM
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return string(j), nil
}

// MarshalJSON implements the json.Marshaler interface
func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// Decode unmarshals the details into v
func (j JSON) Decode(v interface{}) error {
	if j == nil {
		return nil
	}
	return json.Unmarshal(j, v)
}
