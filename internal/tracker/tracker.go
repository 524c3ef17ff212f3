// Package tracker maintains per-organization compliance statuses and the
// evidence documents linked to their requirements.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/catalog"
	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/store"
)

const (
	StatusesCollection = "complianceStatuses"
	EvidenceCollection = "evidenceDocuments"

	// SystemActor is recorded as lastUpdatedBy for records created without a user
	SystemActor = "system"

	DefaultCallTimeout        = 5 * time.Second
	DefaultMaxConflictRetries = 3
)

// Tracker creates and updates compliance statuses
type Tracker struct {
	store       store.Store
	catalog     *catalog.Catalog
	sink        compliance.EventSink
	logger      *zap.Logger
	validate    *validator.Validate
	now         func() time.Time
	callTimeout time.Duration
	maxRetries  int
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithEventSink sets where domain events are published
func WithEventSink(sink compliance.EventSink) Option {
	return func(t *Tracker) { t.sink = sink }
}

// WithCallTimeout bounds every store call
func WithCallTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.callTimeout = d
		}
	}
}

// WithMaxConflictRetries bounds the retries of a versioned update
func WithMaxConflictRetries(n int) Option {
	return func(t *Tracker) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// New creates a tracker over the given store and catalog
func New(s store.Store, c *catalog.Catalog, logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:       s,
		catalog:     c,
		sink:        compliance.NopSink{},
		logger:      logger,
		validate:    validator.New(),
		now:         time.Now,
		callTimeout: DefaultCallTimeout,
		maxRetries:  DefaultMaxConflictRetries,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Catalog returns the framework catalog the tracker seeds statuses from
func (t *Tracker) Catalog() *catalog.Catalog { return t.catalog }

// Create opens a compliance status for an organization against a framework.
// Every requirement gets a not-started row and the next deadline is computed
// from periodEnd.
func (t *Tracker) Create(ctx context.Context, organizationID, frameworkID string, periodEnd compliance.Timestamp, assignees []string) (string, error) {
	const op = "create_status"

	if organizationID == "" {
		return "", compliance.ValidationError(op, "organization", organizationID, "organization id is required")
	}
	if periodEnd.IsZero() {
		return "", compliance.ValidationError(op, "framework", frameworkID, "period end date is required")
	}
	framework, err := t.catalog.Get(frameworkID)
	if err != nil {
		return "", err
	}

	now := t.now()
	stamp := compliance.Instant(now)

	rows := make([]compliance.RequirementStatus, len(framework.Requirements))
	for i, req := range framework.Requirements {
		rows[i] = compliance.RequirementStatus{
			RequirementID:       req.ID,
			Status:              compliance.RequirementNotStarted,
			EvidenceDocumentIDs: []string{},
			LastUpdated:         stamp,
		}
	}
	if assignees == nil {
		assignees = []string{}
	}

	status := compliance.ComplianceStatus{
		ID:                  uuid.New().String(),
		OrganizationID:      organizationID,
		FrameworkID:         frameworkID,
		Status:              compliance.StatusNotStarted,
		StartDate:           stamp,
		PeriodEndDate:       periodEnd,
		Assignees:           assignees,
		RequirementStatuses: rows,
		CreatedAt:           stamp,
		UpdatedAt:           stamp,
		LastUpdatedBy:       SystemActor,
	}
	status.NextDeadline, status.NextDeadlineID = NextDeadline(framework.Deadlines, periodEnd, now)

	cctx, cancel := t.call(ctx)
	defer cancel()
	if _, err := t.store.Create(cctx, StatusesCollection, status.ID, status); err != nil {
		return "", t.storeErr(op, "status", status.ID, err)
	}

	t.logger.Info("Compliance status created",
		zap.String("status_id", status.ID),
		zap.String("organization_id", organizationID),
		zap.String("framework_id", frameworkID),
		zap.String("next_deadline_id", status.NextDeadlineID))

	t.publish(ctx, compliance.Event{
		Type:           compliance.EventStatusCreated,
		OrganizationID: organizationID,
		EntityType:     "status",
		EntityID:       status.ID,
		Actor:          SystemActor,
		Details:        map[string]interface{}{"framework_id": frameworkID, "requirements": len(rows)},
	})
	return status.ID, nil
}

// Get returns a compliance status by id
func (t *Tracker) Get(ctx context.Context, id string) (*compliance.ComplianceStatus, error) {
	cctx, cancel := t.call(ctx)
	defer cancel()

	doc, err := t.store.Get(cctx, StatusesCollection, id)
	if err != nil {
		return nil, t.storeErr("get_status", "status", id, err)
	}
	return decodeStatus(doc)
}

// ByOrganization returns every status of an organization
func (t *Tracker) ByOrganization(ctx context.Context, organizationID string) ([]*compliance.ComplianceStatus, error) {
	return t.query(ctx, "statuses_by_organization", store.Query{
		Where: []store.Predicate{store.Where("organizationId", organizationID)},
	})
}

// ByFrameworkAndOrganization returns the statuses of an organization for one framework
func (t *Tracker) ByFrameworkAndOrganization(ctx context.Context, organizationID, frameworkID string) ([]*compliance.ComplianceStatus, error) {
	return t.query(ctx, "statuses_by_framework", store.Query{
		Where: []store.Predicate{
			store.Where("organizationId", organizationID),
			store.Where("frameworkId", frameworkID),
		},
	})
}

// List returns all statuses, or those of one organization when organizationID is set
func (t *Tracker) List(ctx context.Context, organizationID string) ([]*compliance.ComplianceStatus, error) {
	if organizationID != "" {
		return t.ByOrganization(ctx, organizationID)
	}
	return t.query(ctx, "list_statuses", store.Query{})
}

func (t *Tracker) query(ctx context.Context, op string, q store.Query) ([]*compliance.ComplianceStatus, error) {
	cctx, cancel := t.call(ctx)
	defer cancel()

	docs, err := t.store.Query(cctx, StatusesCollection, q)
	if err != nil {
		return nil, compliance.StoreError(op, "status", "", err)
	}
	out := make([]*compliance.ComplianceStatus, 0, len(docs))
	for _, doc := range docs {
		s, err := decodeStatus(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// RequirementUpdate is a partial update of a requirement row. Nil fields are
// left unchanged; an empty non-nil slice clears the field.
type RequirementUpdate struct {
	Status               *compliance.RequirementState `json:"status,omitempty"`
	CompletionPercentage *int                         `json:"completionPercentage,omitempty" validate:"omitempty,min=0,max=100"`
	Assignees            []string                     `json:"assignedTo,omitempty"`
	Notes                *string                      `json:"notes,omitempty"`
	EvidenceDocumentIDs  []string                     `json:"evidenceDocumentIds,omitempty" validate:"omitempty,dive,required"`
}

func (u RequirementUpdate) empty() bool {
	return u.Status == nil && u.CompletionPercentage == nil && u.Assignees == nil &&
		u.Notes == nil && u.EvidenceDocumentIDs == nil
}

func (t *Tracker) validateUpdate(op, requirementID string, u RequirementUpdate) error {
	if u.empty() {
		return compliance.ValidationError(op, "requirement", requirementID, "update has no fields")
	}
	if u.Status != nil && !u.Status.Valid() {
		return compliance.ValidationError(op, "requirement", requirementID, fmt.Sprintf("unknown status %q", *u.Status))
	}
	if err := t.validate.Struct(u); err != nil {
		return compliance.ValidationError(op, "requirement", requirementID, err.Error())
	}
	return nil
}

func (u RequirementUpdate) apply(row *compliance.RequirementStatus, stamp compliance.Timestamp) {
	if u.Status != nil {
		row.Status = *u.Status
	}
	if u.CompletionPercentage != nil {
		row.CompletionPercentage = *u.CompletionPercentage
	}
	if u.Assignees != nil {
		row.Assignees = append([]string{}, u.Assignees...)
	}
	if u.Notes != nil {
		row.Notes = *u.Notes
	}
	if u.EvidenceDocumentIDs != nil {
		row.EvidenceDocumentIDs = append([]string{}, u.EvidenceDocumentIDs...)
	}
	row.LastUpdated = stamp
}

// UpdateRequirementStatus merges a partial update into one requirement row and
// recomputes the status aggregate. The write is conditional on the version
// that was read; concurrent writers cause a bounded number of retries.
func (t *Tracker) UpdateRequirementStatus(ctx context.Context, statusID, requirementID string, update RequirementUpdate, updatedBy string) (*compliance.ComplianceStatus, error) {
	const op = "update_requirement_status"

	if err := t.validateUpdate(op, requirementID, update); err != nil {
		return nil, err
	}

	updated, err := t.mutate(ctx, op, statusID, updatedBy, func(s *compliance.ComplianceStatus, f *compliance.Framework, stamp compliance.Timestamp) (bool, error) {
		idx := s.Row(requirementID)
		if idx < 0 {
			if _, known := f.Requirement(requirementID); known {
				return false, compliance.ValidationError(op, "requirement", requirementID, "requirement has no row in status "+s.ID)
			}
			return false, compliance.NotFoundError(op, "requirement", requirementID)
		}
		update.apply(&s.RequirementStatuses[idx], stamp)
		s.CompletionPercentage, s.Status = Aggregate(s.RequirementStatuses)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Debug("Requirement status updated",
		zap.String("status_id", statusID),
		zap.String("requirement_id", requirementID),
		zap.Int("completion_percentage", updated.CompletionPercentage),
		zap.String("status", string(updated.Status)))

	details := map[string]interface{}{
		"requirement_id":        requirementID,
		"completion_percentage": updated.CompletionPercentage,
		"status":                string(updated.Status),
	}
	if update.Status != nil {
		details["requirement_status"] = string(*update.Status)
	}
	t.publish(ctx, compliance.Event{
		Type:           compliance.EventRequirementUpdated,
		OrganizationID: updated.OrganizationID,
		EntityType:     "status",
		EntityID:       statusID,
		Actor:          updatedBy,
		Details:        details,
	})
	return updated, nil
}

// MarkStatus sets one of the manual overall states, non-compliant or exempt.
// The next requirement update recomputes the status from the rows again.
func (t *Tracker) MarkStatus(ctx context.Context, statusID string, status compliance.OverallStatus, notes, updatedBy string) (*compliance.ComplianceStatus, error) {
	const op = "mark_status"

	if status != compliance.StatusNonCompliant && status != compliance.StatusExempt {
		return nil, compliance.ValidationError(op, "status", statusID, fmt.Sprintf("status %q cannot be set manually", status))
	}

	updated, err := t.mutate(ctx, op, statusID, updatedBy, func(s *compliance.ComplianceStatus, _ *compliance.Framework, _ compliance.Timestamp) (bool, error) {
		s.Status = status
		if notes != "" {
			s.Notes = notes
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	t.publish(ctx, compliance.Event{
		Type:           compliance.EventRequirementUpdated,
		OrganizationID: updated.OrganizationID,
		EntityType:     "status",
		EntityID:       statusID,
		Actor:          updatedBy,
		Details:        map[string]interface{}{"status": string(status), "manual": true},
	})
	return updated, nil
}

// Delete removes a compliance status. Linked evidence documents are kept.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	const op = "delete_status"

	status, err := t.Get(ctx, id)
	if err != nil {
		return err
	}

	cctx, cancel := t.call(ctx)
	defer cancel()
	if err := t.store.Delete(cctx, StatusesCollection, id); err != nil {
		return t.storeErr(op, "status", id, err)
	}

	t.logger.Info("Compliance status deleted",
		zap.String("status_id", id),
		zap.String("organization_id", status.OrganizationID))

	t.publish(ctx, compliance.Event{
		Type:           compliance.EventStatusDeleted,
		OrganizationID: status.OrganizationID,
		EntityType:     "status",
		EntityID:       id,
		Details:        map[string]interface{}{"framework_id": status.FrameworkID},
	})
	return nil
}

// mutateFunc changes a status in place; returning false skips the write
type mutateFunc func(s *compliance.ComplianceStatus, f *compliance.Framework, stamp compliance.Timestamp) (bool, error)

// mutate runs a versioned read-modify-write on one status
func (t *Tracker) mutate(ctx context.Context, op, statusID, updatedBy string, fn mutateFunc) (*compliance.ComplianceStatus, error) {
	if updatedBy == "" {
		updatedBy = SystemActor
	}

	for attempt := 0; ; attempt++ {
		status, err := t.Get(ctx, statusID)
		if err != nil {
			return nil, err
		}
		framework, err := t.catalog.Get(status.FrameworkID)
		if err != nil {
			return nil, err
		}
		if len(status.RequirementStatuses) != len(framework.Requirements) {
			return nil, compliance.ValidationError(op, "status", statusID,
				fmt.Sprintf("status has %d requirement rows but framework %s has %d requirements",
					len(status.RequirementStatuses), framework.ID, len(framework.Requirements)))
		}

		stamp := compliance.Instant(t.now())
		changed, err := fn(status, framework, stamp)
		if err != nil {
			return nil, err
		}
		if !changed {
			return status, nil
		}
		status.UpdatedAt = stamp
		status.LastUpdatedBy = updatedBy

		patch := map[string]interface{}{
			"requirementStatuses":  status.RequirementStatuses,
			"completionPercentage": status.CompletionPercentage,
			"status":               status.Status,
			"notes":                status.Notes,
			"updatedAt":            status.UpdatedAt,
			"lastUpdatedBy":        status.LastUpdatedBy,
		}

		cctx, cancel := t.call(ctx)
		version, err := t.store.Update(cctx, StatusesCollection, statusID, patch, status.Version)
		cancel()

		switch {
		case err == nil:
			status.Version = version
			return status, nil
		case errors.Is(err, store.ErrVersionConflict):
			if attempt >= t.maxRetries {
				t.logger.Warn("Giving up on conflicting status update",
					zap.String("status_id", statusID),
					zap.String("op", op),
					zap.Int("attempts", attempt+1))
				return nil, compliance.ConflictError(op, "status", statusID)
			}
			t.logger.Debug("Retrying status update after version conflict",
				zap.String("status_id", statusID),
				zap.Int("attempt", attempt+1))
		default:
			return nil, t.storeErr(op, "status", statusID, err)
		}
	}
}

func (t *Tracker) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.callTimeout)
}

// storeErr maps store failures onto the compliance error taxonomy
func (t *Tracker) storeErr(op, entity, id string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return compliance.NotFoundError(op, entity, id)
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrAlreadyExists):
		return compliance.ConflictError(op, entity, id)
	}
	return compliance.StoreError(op, entity, id, err)
}

func (t *Tracker) publish(ctx context.Context, event compliance.Event) {
	event.ID = uuid.New().String()
	event.OccurredAt = t.now().UTC()
	if err := t.sink.Publish(ctx, event); err != nil {
		t.logger.Warn("Failed to publish compliance event",
			zap.String("event_type", string(event.Type)),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
	}
}

func decodeStatus(doc *store.Document) (*compliance.ComplianceStatus, error) {
	var s compliance.ComplianceStatus
	if err := doc.Decode(&s); err != nil {
		return nil, compliance.ValidationError("decode_status", "status", doc.ID, err.Error())
	}
	s.ID = doc.ID
	s.Version = doc.Version
	return &s, nil
}
