package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/catalog"
	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/events"
	"github.com/aegisshield/compliance-tracker/internal/store"
)

var fixedNow = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

func fourRequirementFramework() compliance.Framework {
	return compliance.Framework{
		ID:       "fw-4",
		Name:     "Four Requirement Framework",
		Category: "general",
		Regions:  []string{"global"},
		Sectors:  []string{"all"},
		Requirements: []compliance.Requirement{
			{ID: "r1", Name: "Emissions inventory", Category: compliance.CategoryMeasurement, Level: compliance.LevelMandatory},
			{ID: "r2", Name: "Annual report", Category: compliance.CategoryReporting, Level: compliance.LevelMandatory},
			{ID: "r3", Name: "Board oversight", Category: compliance.CategoryDisclosure, Level: compliance.LevelRecommended},
			{ID: "r4", Name: "Assurance", Category: compliance.CategoryVerification, Level: compliance.LevelOptional},
		},
		Deadlines: []compliance.DeadlineConfig{
			{ID: "late", Name: "Publication", RelativeDays: 150},
			{ID: "early", Name: "Submission", RelativeDays: 120},
		},
	}
}

type fixture struct {
	tracker *Tracker
	store   store.Store
	events  *events.Recorder
}

func newFixture(t *testing.T, s store.Store, opts ...Option) *fixture {
	t.Helper()
	c := catalog.New(catalog.WithBuiltins())
	require.NoError(t, c.Register(fourRequirementFramework()))
	if s == nil {
		s = store.NewMemoryStore()
	}
	rec := &events.Recorder{}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithEventSink(rec)}, opts...)
	return &fixture{tracker: New(s, c, zap.NewNop(), opts...), store: s, events: rec}
}

func (f *fixture) create(t *testing.T, org, framework string) string {
	t.Helper()
	id, err := f.tracker.Create(context.Background(), org, framework, compliance.Date(2023, time.December, 31), []string{"alice"})
	require.NoError(t, err)
	return id
}

func state(s compliance.RequirementState) *compliance.RequirementState { return &s }
func pct(n int) *int                                                    { return &n }

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("SeedsOneRowPerRequirement", func(t *testing.T) {
		f := newFixture(t, nil)
		for _, fw := range f.tracker.Catalog().All() {
			id := f.create(t, "org-1", fw.ID)
			s, err := f.tracker.Get(ctx, id)
			require.NoError(t, err)

			assert.Len(t, s.RequirementStatuses, len(fw.Requirements), fw.ID)
			for i, row := range s.RequirementStatuses {
				assert.Equal(t, fw.Requirements[i].ID, row.RequirementID)
				assert.Equal(t, compliance.RequirementNotStarted, row.Status)
				assert.Equal(t, 0, row.CompletionPercentage)
				assert.Empty(t, row.EvidenceDocumentIDs)
			}
			assert.Equal(t, compliance.StatusNotStarted, s.Status)
			assert.Equal(t, 0, s.CompletionPercentage)
			assert.Equal(t, SystemActor, s.LastUpdatedBy)
			assert.Equal(t, int64(1), s.Version)
		}
	})

	t.Run("ComputesNextDeadline", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")
		s, err := f.tracker.Get(ctx, id)
		require.NoError(t, err)

		require.NotNil(t, s.NextDeadline)
		assert.Equal(t, "early", s.NextDeadlineID)
		assert.Equal(t, "2024-04-29", s.NextDeadline.String())
		assert.Equal(t, compliance.Date(2023, time.December, 31), s.PeriodEndDate)
		assert.Equal(t, []string{"alice"}, s.Assignees)
	})

	t.Run("NoDeadlinesLeavesUnset", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "ghg-protocol")
		s, err := f.tracker.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, s.NextDeadline)
		assert.Empty(t, s.NextDeadlineID)
	})

	t.Run("UnknownFramework", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.tracker.Create(ctx, "org-1", "nope", compliance.Date(2023, time.December, 31), nil)
		assert.ErrorIs(t, err, compliance.ErrNotFound)
		assert.Contains(t, err.Error(), "nope")
	})

	t.Run("MissingOrganization", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.tracker.Create(ctx, "", "fw-4", compliance.Date(2023, time.December, 31), nil)
		assert.ErrorIs(t, err, compliance.ErrValidation)
	})

	t.Run("PublishesEvent", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")
		created := f.events.OfType(compliance.EventStatusCreated)
		require.Len(t, created, 1)
		assert.Equal(t, id, created[0].EntityID)
		assert.Equal(t, "org-1", created[0].OrganizationID)
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.create(t, "org-1", "fw-4")
	f.create(t, "org-1", "csrd-2023")
	f.create(t, "org-2", "fw-4")

	byOrg, err := f.tracker.ByOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, byOrg, 2)

	byFw, err := f.tracker.ByFrameworkAndOrganization(ctx, "org-1", "fw-4")
	require.NoError(t, err)
	require.Len(t, byFw, 1)
	assert.Equal(t, "fw-4", byFw[0].FrameworkID)

	all, err := f.tracker.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := f.tracker.ByOrganization(ctx, "org-3")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.tracker.Get(ctx, "missing")
	assert.ErrorIs(t, err, compliance.ErrNotFound)
}

func TestUpdateRequirementStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("OneOfFourCompleted", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")

		s, err := f.tracker.UpdateRequirementStatus(ctx, id, "r2", RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
		require.NoError(t, err)
		assert.Equal(t, 25, s.CompletionPercentage)
		assert.Equal(t, compliance.StatusInProgress, s.Status)
		assert.Equal(t, "bob", s.LastUpdatedBy)

		stored, err := f.tracker.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 25, stored.CompletionPercentage)
		assert.Equal(t, compliance.StatusInProgress, stored.Status)
		assert.Equal(t, compliance.RequirementCompleted, stored.RequirementStatuses[1].Status)
		assert.Equal(t, s.Version, stored.Version)
	})

	t.Run("MergesOnlyGivenFields", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")
		notes := "waiting on supplier data"

		_, err := f.tracker.UpdateRequirementStatus(ctx, id, "r1", RequirementUpdate{
			Status:               state(compliance.RequirementInProgress),
			CompletionPercentage: pct(40),
			Assignees:            []string{"carol"},
		}, "bob")
		require.NoError(t, err)

		s, err := f.tracker.UpdateRequirementStatus(ctx, id, "r1", RequirementUpdate{Notes: &notes}, "bob")
		require.NoError(t, err)

		row := s.RequirementStatuses[0]
		assert.Equal(t, compliance.RequirementInProgress, row.Status)
		assert.Equal(t, 40, row.CompletionPercentage)
		assert.Equal(t, []string{"carol"}, row.Assignees)
		assert.Equal(t, notes, row.Notes)
		assert.Equal(t, 10, s.CompletionPercentage)
	})

	t.Run("AllCompletedIsCompliant", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")

		var s *compliance.ComplianceStatus
		var err error
		for _, req := range []string{"r1", "r2", "r3"} {
			s, err = f.tracker.UpdateRequirementStatus(ctx, id, req, RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
			require.NoError(t, err)
			assert.NotEqual(t, compliance.StatusCompliant, s.Status)
		}
		s, err = f.tracker.UpdateRequirementStatus(ctx, id, "r4", RequirementUpdate{Status: state(compliance.RequirementNotApplicable)}, "bob")
		require.NoError(t, err)
		assert.Equal(t, 100, s.CompletionPercentage)
		assert.Equal(t, compliance.StatusCompliant, s.Status)

		s, err = f.tracker.UpdateRequirementStatus(ctx, id, "r4", RequirementUpdate{Status: state(compliance.RequirementNotStarted)}, "bob")
		require.NoError(t, err)
		assert.Equal(t, 75, s.CompletionPercentage)
		assert.Equal(t, compliance.StatusInProgress, s.Status)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.tracker.UpdateRequirementStatus(ctx, "missing", "r1", RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
		assert.ErrorIs(t, err, compliance.ErrNotFound)
	})

	t.Run("UnknownRequirement", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")
		_, err := f.tracker.UpdateRequirementStatus(ctx, id, "r9", RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
		assert.ErrorIs(t, err, compliance.ErrNotFound)
		assert.Contains(t, err.Error(), "r9")
	})

	t.Run("InvalidUpdates", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")

		updates := map[string]RequirementUpdate{
			"Empty":           {},
			"BadState":        {Status: state("done")},
			"PercentTooHigh":  {CompletionPercentage: pct(101)},
			"PercentNegative": {CompletionPercentage: pct(-1)},
			"BlankEvidenceID": {EvidenceDocumentIDs: []string{""}},
		}
		for name, u := range updates {
			t.Run(name, func(t *testing.T) {
				_, err := f.tracker.UpdateRequirementStatus(ctx, id, "r1", u, "bob")
				assert.ErrorIs(t, err, compliance.ErrValidation)
			})
		}
	})

	t.Run("RowCountMismatch", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")

		_, err := f.store.Update(ctx, StatusesCollection, id, map[string]interface{}{
			"requirementStatuses": []compliance.RequirementStatus{{RequirementID: "r1", Status: compliance.RequirementNotStarted}},
		}, 0)
		require.NoError(t, err)

		_, err = f.tracker.UpdateRequirementStatus(ctx, id, "r1", RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
		assert.ErrorIs(t, err, compliance.ErrValidation)
	})

	t.Run("PublishesEvent", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")
		_, err := f.tracker.UpdateRequirementStatus(ctx, id, "r1", RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
		require.NoError(t, err)

		updated := f.events.OfType(compliance.EventRequirementUpdated)
		require.Len(t, updated, 1)
		assert.Equal(t, "bob", updated[0].Actor)
		assert.Equal(t, "r1", updated[0].Details["requirement_id"])
	})

	t.Run("SinkFailureDoesNotFailUpdate", func(t *testing.T) {
		f := newFixture(t, nil, WithEventSink(failingSink{}))
		id := f.create(t, "org-1", "fw-4")
		_, err := f.tracker.UpdateRequirementStatus(ctx, id, "r1", RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
		assert.NoError(t, err)
	})
}

func TestConcurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("ConcurrentWritersDoNotLoseUpdates", func(t *testing.T) {
		f := newFixture(t, nil, WithMaxConflictRetries(3))
		id := f.create(t, "org-1", "fw-4")

		var wg sync.WaitGroup
		errs := make(chan error, 4)
		for _, req := range []string{"r1", "r2", "r3", "r4"} {
			wg.Add(1)
			go func(req string) {
				defer wg.Done()
				_, err := f.tracker.UpdateRequirementStatus(ctx, id, req, RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
				errs <- err
			}(req)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		s, err := f.tracker.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 100, s.CompletionPercentage)
		assert.Equal(t, compliance.StatusCompliant, s.Status)
		for _, row := range s.RequirementStatuses {
			assert.Equal(t, compliance.RequirementCompleted, row.Status, row.RequirementID)
		}
	})

	t.Run("RetriesThenSucceeds", func(t *testing.T) {
		cs := &conflictStore{MemoryStore: store.NewMemoryStore()}
		f := newFixture(t, cs, WithMaxConflictRetries(3))
		id := f.create(t, "org-1", "fw-4")

		cs.fail(2)
		s, err := f.tracker.UpdateRequirementStatus(ctx, id, "r1", RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
		require.NoError(t, err)
		assert.Equal(t, 25, s.CompletionPercentage)
		assert.Equal(t, 3, cs.updateCalls())
	})

	t.Run("ExhaustedRetriesIsConflict", func(t *testing.T) {
		cs := &conflictStore{MemoryStore: store.NewMemoryStore()}
		f := newFixture(t, cs, WithMaxConflictRetries(2))
		id := f.create(t, "org-1", "fw-4")

		cs.fail(10)
		_, err := f.tracker.UpdateRequirementStatus(ctx, id, "r1", RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "bob")
		assert.ErrorIs(t, err, compliance.ErrConflict)
		assert.Equal(t, 3, cs.updateCalls())
	})
}

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("StoreUnavailable", func(t *testing.T) {
		boom := errors.New("connection refused")
		f := newFixture(t, brokenStore{err: boom})
		_, err := f.tracker.Get(ctx, "s-1")
		assert.ErrorIs(t, err, compliance.ErrStoreUnavailable)
		assert.ErrorIs(t, err, boom)

		_, err = f.tracker.Create(ctx, "org-1", "fw-4", compliance.Date(2023, time.December, 31), nil)
		assert.ErrorIs(t, err, compliance.ErrStoreUnavailable)

		_, err = f.tracker.ByOrganization(ctx, "org-1")
		assert.ErrorIs(t, err, compliance.ErrStoreUnavailable)
	})

	t.Run("CallTimeout", func(t *testing.T) {
		f := newFixture(t, blockingStore{}, WithCallTimeout(20*time.Millisecond))
		_, err := f.tracker.Get(ctx, "s-1")
		assert.ErrorIs(t, err, compliance.ErrStoreUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestMarkAndDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("MarkExempt", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")

		s, err := f.tracker.MarkStatus(ctx, id, compliance.StatusExempt, "Below reporting threshold", "dana")
		require.NoError(t, err)
		assert.Equal(t, compliance.StatusExempt, s.Status)
		assert.Equal(t, "Below reporting threshold", s.Notes)

		// recomputation never yields a manual state
		s, err = f.tracker.UpdateRequirementStatus(ctx, id, "r1", RequirementUpdate{Status: state(compliance.RequirementCompleted)}, "dana")
		require.NoError(t, err)
		assert.Equal(t, compliance.StatusInProgress, s.Status)
	})

	t.Run("MarkRejectsDerivedStates", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")
		_, err := f.tracker.MarkStatus(ctx, id, compliance.StatusCompliant, "", "dana")
		assert.ErrorIs(t, err, compliance.ErrValidation)
	})

	t.Run("Delete", func(t *testing.T) {
		f := newFixture(t, nil)
		id := f.create(t, "org-1", "fw-4")
		require.NoError(t, f.tracker.Delete(ctx, id))

		_, err := f.tracker.Get(ctx, id)
		assert.ErrorIs(t, err, compliance.ErrNotFound)
		assert.ErrorIs(t, f.tracker.Delete(ctx, id), compliance.ErrNotFound)
		assert.Len(t, f.events.OfType(compliance.EventStatusDeleted), 1)
	})
}

// conflictStore fails a configured number of Update calls with a version conflict
type conflictStore struct {
	*store.MemoryStore
	mu        sync.Mutex
	remaining int
	calls     int
}

func (c *conflictStore) fail(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = n
	c.calls = 0
}

func (c *conflictStore) updateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *conflictStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}, ifVersion int64) (int64, error) {
	c.mu.Lock()
	c.calls++
	if c.remaining > 0 {
		c.remaining--
		c.mu.Unlock()
		return 0, store.ErrVersionConflict
	}
	c.mu.Unlock()
	return c.MemoryStore.Update(ctx, collection, id, patch, ifVersion)
}

type brokenStore struct{ err error }

func (b brokenStore) Create(context.Context, string, string, interface{}) (string, error) {
	return "", b.err
}
func (b brokenStore) Get(context.Context, string, string) (*store.Document, error) { return nil, b.err }
func (b brokenStore) Query(context.Context, string, store.Query) ([]*store.Document, error) {
	return nil, b.err
}
func (b brokenStore) Update(context.Context, string, string, map[string]interface{}, int64) (int64, error) {
	return 0, b.err
}
func (b brokenStore) Delete(context.Context, string, string) error { return b.err }

// blockingStore blocks every call until its context ends
type blockingStore struct{ brokenStore }

func (blockingStore) Get(ctx context.Context, _, _ string) (*store.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingSink struct{}

func (failingSink) Publish(context.Context, compliance.Event) error { return errors.New("sink down") }
