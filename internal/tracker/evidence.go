package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/store"
)

// EvidenceProgress is the completion given to a row when unreviewed evidence is attached
const EvidenceProgress = 50

// AddEvidence stores evidence metadata as pending review and attaches it to
// every row of the organization's statuses that covers one of its requirements.
// Those rows move to in-progress at EvidenceProgress percent.
//
// A caller-supplied id makes the call retryable: adding a pending document
// that already exists links the rows that do not reference it yet.
func (t *Tracker) AddEvidence(ctx context.Context, organizationID string, doc compliance.EvidenceDocument) (*compliance.EvidenceDocument, error) {
	const op = "add_evidence"

	if organizationID == "" {
		return nil, compliance.ValidationError(op, "organization", organizationID, "organization id is required")
	}
	if err := t.validate.Struct(doc); err != nil {
		return nil, compliance.ValidationError(op, "evidence", doc.Name, err.Error())
	}

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.OrganizationID = organizationID
	doc.UploadedAt = compliance.Instant(t.now())
	doc.Status = compliance.ReviewPending
	doc.ReviewedBy = ""
	doc.ReviewedAt = nil
	doc.Comments = ""

	cctx, cancel := t.call(ctx)
	_, err := t.store.Create(cctx, EvidenceCollection, doc.ID, doc)
	cancel()
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, err := t.GetEvidence(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if existing.OrganizationID != organizationID {
			return nil, compliance.ConflictError(op, "evidence", doc.ID)
		}
		if existing.Status != compliance.ReviewPending {
			return existing, nil
		}
		t.logger.Debug("Evidence document exists, resuming linking", zap.String("document_id", doc.ID))
		doc = *existing
	} else if err != nil {
		return nil, t.storeErr(op, "evidence", doc.ID, err)
	}

	statuses, err := t.ByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	requirements := make(map[string]bool, len(doc.RequirementIDs))
	for _, id := range doc.RequirementIDs {
		requirements[id] = true
	}

	linked := 0
	for _, s := range statuses {
		if !coversAny(s, requirements) {
			continue
		}
		_, err := t.mutate(ctx, op, s.ID, doc.UploadedBy, func(s *compliance.ComplianceStatus, _ *compliance.Framework, stamp compliance.Timestamp) (bool, error) {
			changed := false
			for i := range s.RequirementStatuses {
				row := &s.RequirementStatuses[i]
				if !requirements[row.RequirementID] || row.HasEvidence(doc.ID) {
					continue
				}
				row.EvidenceDocumentIDs = append(row.EvidenceDocumentIDs, doc.ID)
				row.Status = compliance.RequirementInProgress
				row.CompletionPercentage = EvidenceProgress
				row.LastUpdated = stamp
				changed = true
			}
			s.CompletionPercentage, s.Status = Aggregate(s.RequirementStatuses)
			return changed, nil
		})
		if err != nil {
			return nil, fmt.Errorf("evidence %s stored but linking to status %s failed: %w", doc.ID, s.ID, err)
		}
		linked++
	}

	t.logger.Info("Evidence document added",
		zap.String("document_id", doc.ID),
		zap.String("organization_id", organizationID),
		zap.Strings("requirement_ids", doc.RequirementIDs),
		zap.Int("linked_statuses", linked))

	t.publish(ctx, compliance.Event{
		Type:           compliance.EventEvidenceAdded,
		OrganizationID: organizationID,
		EntityType:     "evidence",
		EntityID:       doc.ID,
		Actor:          doc.UploadedBy,
		Details: map[string]interface{}{
			"requirement_ids": doc.RequirementIDs,
			"linked_statuses": linked,
		},
	})
	return &doc, nil
}

// GetEvidence returns an evidence document by id
func (t *Tracker) GetEvidence(ctx context.Context, id string) (*compliance.EvidenceDocument, error) {
	cctx, cancel := t.call(ctx)
	defer cancel()

	d, err := t.store.Get(cctx, EvidenceCollection, id)
	if err != nil {
		return nil, t.storeErr("get_evidence", "evidence", id, err)
	}
	return decodeEvidence(d)
}

// EvidenceByOrganization returns the evidence documents of an organization
func (t *Tracker) EvidenceByOrganization(ctx context.Context, organizationID string) ([]*compliance.EvidenceDocument, error) {
	cctx, cancel := t.call(ctx)
	defer cancel()

	docs, err := t.store.Query(cctx, EvidenceCollection, store.Query{
		Where: []store.Predicate{store.Where("organizationId", organizationID)},
	})
	if err != nil {
		return nil, compliance.StoreError("evidence_by_organization", "evidence", "", err)
	}
	out := make([]*compliance.EvidenceDocument, 0, len(docs))
	for _, d := range docs {
		e, err := decodeEvidence(d)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ReviewEvidence records the review outcome of a pending document. Review is
// terminal. Approval completes every row referencing the document. Rejection
// detaches the document from those rows; an in-progress row left without any
// evidence goes back to not-started. Repeating the outcome a document already
// has re-applies the row updates, so a review interrupted by a store failure
// can be retried.
func (t *Tracker) ReviewEvidence(ctx context.Context, id string, outcome compliance.ReviewStatus, reviewedBy, comments string) (*compliance.EvidenceDocument, error) {
	const op = "review_evidence"

	if outcome != compliance.ReviewApproved && outcome != compliance.ReviewRejected {
		return nil, compliance.ValidationError(op, "evidence", id, fmt.Sprintf("review outcome must be approved or rejected, got %q", outcome))
	}
	if reviewedBy == "" {
		return nil, compliance.ValidationError(op, "evidence", id, "reviewer is required")
	}

	doc, err := t.markReviewed(ctx, op, id, outcome, reviewedBy, comments)
	if err != nil {
		return nil, err
	}

	statuses, err := t.ByOrganization(ctx, doc.OrganizationID)
	if err != nil {
		return nil, err
	}

	affected := 0
	for _, s := range statuses {
		if !references(s, doc.ID) {
			continue
		}
		_, err := t.mutate(ctx, op, s.ID, reviewedBy, func(s *compliance.ComplianceStatus, _ *compliance.Framework, stamp compliance.Timestamp) (bool, error) {
			changed := false
			for i := range s.RequirementStatuses {
				row := &s.RequirementStatuses[i]
				if !row.HasEvidence(doc.ID) {
					continue
				}
				if outcome == compliance.ReviewApproved {
					if row.Status == compliance.RequirementCompleted && row.CompletionPercentage == 100 {
						continue
					}
					row.Status = compliance.RequirementCompleted
					row.CompletionPercentage = 100
				} else {
					detach(row, doc.ID)
				}
				row.LastUpdated = stamp
				changed = true
			}
			s.CompletionPercentage, s.Status = Aggregate(s.RequirementStatuses)
			return changed, nil
		})
		if err != nil {
			return nil, fmt.Errorf("evidence %s reviewed but updating status %s failed: %w", doc.ID, s.ID, err)
		}
		affected++
	}

	t.logger.Info("Evidence document reviewed",
		zap.String("document_id", id),
		zap.String("organization_id", doc.OrganizationID),
		zap.String("outcome", string(outcome)),
		zap.Int("affected_statuses", affected))

	t.publish(ctx, compliance.Event{
		Type:           compliance.EventEvidenceReviewed,
		OrganizationID: doc.OrganizationID,
		EntityType:     "evidence",
		EntityID:       id,
		Actor:          reviewedBy,
		Details: map[string]interface{}{
			"outcome":           string(outcome),
			"affected_statuses": affected,
		},
	})
	return doc, nil
}

// markReviewed moves a pending document to its review outcome with a
// conditional write, so only one outcome can win.
func (t *Tracker) markReviewed(ctx context.Context, op, id string, outcome compliance.ReviewStatus, reviewedBy, comments string) (*compliance.EvidenceDocument, error) {
	for attempt := 0; ; attempt++ {
		cctx, cancel := t.call(ctx)
		d, err := t.store.Get(cctx, EvidenceCollection, id)
		cancel()
		if err != nil {
			return nil, t.storeErr(op, "evidence", id, err)
		}
		doc, err := decodeEvidence(d)
		if err != nil {
			return nil, err
		}
		if doc.Status == outcome {
			// repeated outcome; the caller re-applies the row updates
			return doc, nil
		}
		if doc.Status != compliance.ReviewPending {
			return nil, compliance.ValidationError(op, "evidence", id, fmt.Sprintf("document is already %s", doc.Status))
		}

		doc.Status = outcome
		doc.ReviewedBy = reviewedBy
		doc.ReviewedAt = compliance.Instant(t.now()).Ptr()
		doc.Comments = comments

		cctx, cancel = t.call(ctx)
		_, err = t.store.Update(cctx, EvidenceCollection, id, map[string]interface{}{
			"status":     doc.Status,
			"reviewedBy": doc.ReviewedBy,
			"reviewedAt": doc.ReviewedAt,
			"comments":   doc.Comments,
		}, d.Version)
		cancel()

		switch {
		case err == nil:
			return doc, nil
		case errors.Is(err, store.ErrVersionConflict) && attempt < t.maxRetries:
			continue
		default:
			return nil, t.storeErr(op, "evidence", id, err)
		}
	}
}

func detach(row *compliance.RequirementStatus, documentID string) {
	kept := row.EvidenceDocumentIDs[:0]
	for _, id := range row.EvidenceDocumentIDs {
		if id != documentID {
			kept = append(kept, id)
		}
	}
	row.EvidenceDocumentIDs = kept
	if len(kept) == 0 && row.Status == compliance.RequirementInProgress {
		row.Status = compliance.RequirementNotStarted
		row.CompletionPercentage = 0
	}
}

func coversAny(s *compliance.ComplianceStatus, requirements map[string]bool) bool {
	for _, row := range s.RequirementStatuses {
		if requirements[row.RequirementID] {
			return true
		}
	}
	return false
}

func references(s *compliance.ComplianceStatus, documentID string) bool {
	for i := range s.RequirementStatuses {
		if s.RequirementStatuses[i].HasEvidence(documentID) {
			return true
		}
	}
	return false
}

func decodeEvidence(d *store.Document) (*compliance.EvidenceDocument, error) {
	var doc compliance.EvidenceDocument
	if err := d.Decode(&doc); err != nil {
		return nil, compliance.ValidationError("decode_evidence", "evidence", d.ID, err.Error())
	}
	doc.ID = d.ID
	return &doc, nil
}
