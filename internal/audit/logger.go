// Package audit persists an audit trail of compliance events with gorm.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

// Categories group event types in the audit trail
const (
	CategoryStatus   = "compliance_status"
	CategoryEvidence = "evidence"
	CategoryRisk     = "risk"
	CategoryOther    = "other"
)

const defaultQueryLimit = 100

// Logger writes compliance events to the audit_logs table. It implements
// compliance.EventSink.
type Logger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects gorm to PostgreSQL
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}
	return db, nil
}

// NewLogger creates an audit logger over an open gorm connection
func NewLogger(db *gorm.DB, logger *zap.Logger) *Logger {
	return &Logger{db: db, logger: logger}
}

// AutoMigrate creates or updates the audit_logs table
func (l *Logger) AutoMigrate() error {
	if err := l.db.AutoMigrate(&Log{}); err != nil {
		return fmt.Errorf("failed to migrate audit logs: %w", err)
	}
	return nil
}

// Publish records an event in the audit trail
func (l *Logger) Publish(ctx context.Context, event compliance.Event) error {
	entry, err := FromEvent(event)
	if err != nil {
		return err
	}

	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write audit log for %s: %w", event.Type, err)
	}

	l.logger.Debug("Audit log recorded",
		zap.String("event_type", entry.EventType),
		zap.String("entity_id", entry.EntityID),
		zap.String("organization_id", entry.OrganizationID))
	return nil
}

// FromEvent converts a domain event into an audit row
func FromEvent(event compliance.Event) (*Log, error) {
	var details JSON
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize audit details: %w", err)
		}
		details = raw
	}

	eventID := event.ID
	if eventID == "" {
		eventID = uuid.New().String()
	}
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}

	category, action := classify(event.Type)
	return &Log{
		ID:             uuid.New().String(),
		EventID:        eventID,
		EventType:      string(event.Type),
		Category:       category,
		Action:         action,
		OrganizationID: event.OrganizationID,
		UserID:         event.Actor,
		EntityType:     event.EntityType,
		EntityID:       event.EntityID,
		Details:        details,
		Result:         "success",
		Timestamp:      ts.UTC(),
	}, nil
}

func classify(t compliance.EventType) (category, action string) {
	prefix, action, found := strings.Cut(string(t), ".")
	if !found {
		return CategoryOther, string(t)
	}
	switch prefix {
	case "status", "requirement":
		return CategoryStatus, action
	case "evidence":
		return CategoryEvidence, action
	case "risk":
		return CategoryRisk, action
	}
	return CategoryOther, action
}

// Filter narrows an audit query
type Filter struct {
	OrganizationID string
	EntityID       string
	EventType      compliance.EventType
	Since          time.Time
	Limit          int
}

// Query returns audit rows matching the filter, newest first
func (l *Logger) Query(ctx context.Context, f Filter) ([]Log, error) {
	q := l.db.WithContext(ctx).Model(&Log{})
	if f.OrganizationID != "" {
		q = q.Where("organization_id = ?", f.OrganizationID)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", string(f.EventType))
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	var logs []Log
	if err := q.Order("timestamp DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	return logs, nil
}
