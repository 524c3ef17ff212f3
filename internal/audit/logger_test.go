package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

func newMockLogger(t *testing.T) (*Logger, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewLogger(db, zap.NewNop()), mock
}

func reviewedEvent() compliance.Event {
	return compliance.Event{
		ID:             "0b4f8f9e-4f43-4c55-9a0f-3f1f3c5f2a11",
		Type:           compliance.EventEvidenceReviewed,
		OrganizationID: "org-1",
		EntityType:     "evidence",
		EntityID:       "doc-1",
		Actor:          "frank",
		OccurredAt:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Details:        map[string]interface{}{"outcome": "approved"},
	}
}

func TestFromEvent(t *testing.T) {
	entry, err := FromEvent(reviewedEvent())
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "0b4f8f9e-4f43-4c55-9a0f-3f1f3c5f2a11", entry.EventID)
	assert.Equal(t, CategoryEvidence, entry.Category)
	assert.Equal(t, "reviewed", entry.Action)
	assert.Equal(t, "frank", entry.UserID)
	assert.Equal(t, "success", entry.Result)

	var details map[string]string
	require.NoError(t, entry.Details.Decode(&details))
	assert.Equal(t, "approved", details["outcome"])

	t.Run("Categories", func(t *testing.T) {
		cases := map[compliance.EventType]string{
			compliance.EventStatusCreated:      CategoryStatus,
			compliance.EventRequirementUpdated: CategoryStatus,
			compliance.EventStatusDeleted:      CategoryStatus,
			compliance.EventEvidenceAdded:      CategoryEvidence,
			compliance.EventHighRiskDetected:   CategoryRisk,
			"custom":                           CategoryOther,
		}
		for eventType, category := range cases {
			got, _ := classify(eventType)
			assert.Equal(t, category, got, eventType)
		}
	})

	t.Run("FillsMissingIDAndTime", func(t *testing.T) {
		entry, err := FromEvent(compliance.Event{Type: compliance.EventStatusCreated})
		require.NoError(t, err)
		assert.NotEmpty(t, entry.EventID)
		assert.False(t, entry.Timestamp.IsZero())
		assert.Nil(t, entry.Details)
	})
}

func TestPublish(t *testing.T) {
	l, mock := newMockLogger(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "audit_logs"`)).
		WithArgs(sqlmock.AnyArg(), "0b4f8f9e-4f43-4c55-9a0f-3f1f3c5f2a11", "evidence.reviewed", CategoryEvidence,
			"reviewed", "org-1", "frank", "evidence", "doc-1", sqlmock.AnyArg(), "success", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, l.Publish(context.Background(), reviewedEvent()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishError(t *testing.T) {
	l, mock := newMockLogger(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "audit_logs"`)).
		WillReturnError(errors.New("disk full"))

	err := l.Publish(context.Background(), reviewedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestQuery(t *testing.T) {
	l, mock := newMockLogger(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "event_id", "event_type", "category", "action", "organization_id",
		"user_id", "entity_type", "entity_id", "details", "result", "timestamp"}).
		AddRow("a1", "e1", "evidence.reviewed", CategoryEvidence, "reviewed", "org-1",
			"frank", "evidence", "doc-1", []byte(`{"outcome":"approved"}`), "success", ts)

	mock.ExpectQuery(`SELECT \* FROM "audit_logs" WHERE organization_id = \$1 AND event_type = \$2 ORDER BY timestamp DESC LIMIT`).
		WillReturnRows(rows)

	logs, err := l.Query(context.Background(), Filter{
		OrganizationID: "org-1",
		EventType:      compliance.EventEvidenceReviewed,
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "doc-1", logs[0].EntityID)
	assert.Equal(t, ts, logs[0].Timestamp)
	assert.JSONEq(t, `{"outcome":"approved"}`, string(logs[0].Details))
	assert.NoError(t, mock.ExpectationsWereMet())
}
