package gap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisshield/compliance-tracker/internal/catalog"
	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

var now = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func analyzer() *Analyzer {
	return NewAnalyzer(WithClock(func() time.Time { return now }))
}

func statusFor(f *compliance.Framework, deadline *compliance.Timestamp) *compliance.ComplianceStatus {
	s := &compliance.ComplianceStatus{
		ID:             "status-1",
		OrganizationID: "org-1",
		FrameworkID:    f.ID,
		NextDeadline:   deadline,
	}
	for _, r := range f.Requirements {
		s.RequirementStatuses = append(s.RequirementStatuses, compliance.RequirementStatus{
			RequirementID:       r.ID,
			Status:              compliance.RequirementNotStarted,
			EvidenceDocumentIDs: []string{},
		})
	}
	return s
}

func TestAnalyzeMandatoryNearDeadlineAndRecommendedWithoutEvidence(t *testing.T) {
	f := &compliance.Framework{
		ID:   "fw-2",
		Name: "Two Requirement Framework",
		Requirements: []compliance.Requirement{
			{ID: "r1", Name: "Scope 1 emissions", Category: compliance.CategoryMeasurement, Level: compliance.LevelMandatory},
			{ID: "r2", Name: "Climate strategy", Category: compliance.CategoryDisclosure, Level: compliance.LevelRecommended},
		},
	}
	deadline := compliance.Instant(now.Add(5 * 24 * time.Hour))

	result, err := analyzer().Analyze(statusFor(f, &deadline), f)
	require.NoError(t, err)

	require.Len(t, result.Gaps, 2)
	assert.Equal(t, compliance.SeverityCritical, result.Gaps[0].Severity)
	assert.Equal(t, compliance.SeverityMedium, result.Gaps[1].Severity)
	assert.Equal(t, 70, result.RiskScore)
	assert.Equal(t, compliance.RiskHigh, result.RiskLevel)
	assert.Equal(t, 1, result.CriticalGapsCount)
	assert.Equal(t, 1, result.MediumGapsCount)

	g := result.Gaps[0]
	assert.Equal(t, "gap-r1-org-1", g.ID)
	assert.Equal(t, "Missing compliance for: Scope 1 emissions", g.Description)
	assert.Equal(t, "Non-compliance with Two Requirement Framework mandatory requirement may result in regulatory penalties.", g.Impact)
	require.NotNil(t, g.RemainingDays)
	assert.Equal(t, 5, *g.RemainingDays)
	assert.True(t, g.EvidenceMissing)
	assert.False(t, g.IsBlocking)
	assert.Equal(t, deadline, *g.Deadline)

	rec := result.Recommendations[0]
	assert.Equal(t, "rec-gap-r1-org-1", rec.ID)
	assert.Equal(t, g.ID, rec.GapID)
	assert.Equal(t, compliance.PriorityImmediate, rec.Priority)
	assert.Equal(t, compliance.EffortHigh, rec.EstimatedEffort)
	assert.Equal(t, []string{
		"Collect required evidence for Scope 1 emissions.",
		"Implement measurement methodology for Scope 1 emissions.",
		"Validate data collection process with stakeholders.",
		"Prioritize completion before deadline in 5 days.",
		"Assign responsibility for addressing Scope 1 emissions to team member.",
	}, rec.SuggestedActions)
	assert.Equal(t, []string{"Measurement methodology templates", "Data collection forms"}, rec.Resources)

	assert.Equal(t, compliance.PriorityMedium, result.Recommendations[1].Priority)
	assert.Equal(t, compliance.EffortMedium, result.Recommendations[1].EstimatedEffort)
}

func TestAnalyzeAllCompleted(t *testing.T) {
	f, err := catalog.New(catalog.WithBuiltins()).Get("csrd-2023")
	require.NoError(t, err)

	s := statusFor(f, nil)
	for i := range s.RequirementStatuses {
		s.RequirementStatuses[i].Status = compliance.RequirementCompleted
		s.RequirementStatuses[i].CompletionPercentage = 100
	}
	s.CompletionPercentage = 100
	s.Status = compliance.StatusCompliant

	result, err := analyzer().Analyze(s, f)
	require.NoError(t, err)
	assert.Empty(t, result.Gaps)
	assert.Empty(t, result.Recommendations)
	assert.Equal(t, 0, result.RiskScore)
	assert.Equal(t, compliance.RiskLow, result.RiskLevel)
	assert.Equal(t, 100, result.OverallCompletionPercentage)
	assert.Equal(t, compliance.Instant(now), result.AnalysisDate)
}

func TestAnalyzeRules(t *testing.T) {
	f := &compliance.Framework{
		ID:   "fw",
		Name: "Rules",
		Requirements: []compliance.Requirement{
			{ID: "m", Name: "Inventory", Category: compliance.CategoryMeasurement, Level: compliance.LevelMandatory, Guidance: "Use GHG Protocol"},
			{ID: "rep", Name: "Report", Category: compliance.CategoryReporting, Level: compliance.LevelOptional},
			{ID: "rec", Name: "Targets", Category: compliance.CategoryOther, Level: compliance.LevelRecommended},
			{ID: "na", Name: "Assurance", Category: compliance.CategoryVerification, Level: compliance.LevelMandatory},
		},
	}

	t.Run("SkipsDoneRows", func(t *testing.T) {
		s := statusFor(f, nil)
		s.RequirementStatuses[3].Status = compliance.RequirementNotApplicable
		result, err := analyzer().Analyze(s, f)
		require.NoError(t, err)
		assert.Len(t, result.Gaps, 3)
	})

	t.Run("MissingRowIsGapWithoutEvidence", func(t *testing.T) {
		s := statusFor(f, nil)
		s.RequirementStatuses = s.RequirementStatuses[:1]
		result, err := analyzer().Analyze(s, f)
		require.NoError(t, err)
		require.Len(t, result.Gaps, 4)
		assert.True(t, result.Gaps[3].EvidenceMissing)
	})

	t.Run("NoDeadlineMeansHighNotCritical", func(t *testing.T) {
		result, err := analyzer().Analyze(statusFor(f, nil), f)
		require.NoError(t, err)
		assert.Equal(t, compliance.SeverityHigh, result.Gaps[0].Severity)
		assert.Nil(t, result.Gaps[0].RemainingDays)
		assert.Nil(t, result.Gaps[0].Deadline)
	})

	t.Run("RecommendedWithEvidenceIsLow", func(t *testing.T) {
		s := statusFor(f, nil)
		s.RequirementStatuses[2].Status = compliance.RequirementInProgress
		s.RequirementStatuses[2].EvidenceDocumentIDs = []string{"doc-1"}
		result, err := analyzer().Analyze(s, f)
		require.NoError(t, err)
		assert.Equal(t, compliance.SeverityLow, result.Gaps[2].Severity)
		assert.False(t, result.Gaps[2].EvidenceMissing)
		assert.Equal(t, "Missing recommended practice may impact reporting quality and stakeholder trust.", result.Gaps[2].Impact)
	})

	t.Run("MeasurementBlocksReporting", func(t *testing.T) {
		result, err := analyzer().Analyze(statusFor(f, nil), f)
		require.NoError(t, err)
		assert.True(t, result.Gaps[0].IsBlocking)
		assert.False(t, result.Gaps[1].IsBlocking)
	})

	t.Run("BlockingRaisesPriority", func(t *testing.T) {
		optional := &compliance.Framework{
			ID:   "opt",
			Name: "Optional",
			Requirements: []compliance.Requirement{
				{ID: "m", Name: "Inventory", Category: compliance.CategoryMeasurement, Level: compliance.LevelOptional},
				{ID: "r", Name: "Report", Category: compliance.CategoryReporting, Level: compliance.LevelOptional},
			},
		}
		result, err := analyzer().Analyze(statusFor(optional, nil), optional)
		require.NoError(t, err)
		assert.Equal(t, compliance.SeverityLow, result.Gaps[0].Severity)
		assert.Equal(t, compliance.PriorityHigh, result.Recommendations[0].Priority)
		assert.Equal(t, compliance.PriorityLow, result.Recommendations[1].Priority)
		assert.Equal(t, "Optional requirement that would enhance reporting comprehensiveness.", result.Gaps[1].Impact)
	})

	t.Run("GuidanceResource", func(t *testing.T) {
		result, err := analyzer().Analyze(statusFor(f, nil), f)
		require.NoError(t, err)
		assert.Equal(t, "Framework guidance: Use GHG Protocol", result.Recommendations[0].Resources[0])
		assert.Empty(t, result.Recommendations[2].Resources)
	})

	t.Run("DeadlineWithinMonthAddsUrgency", func(t *testing.T) {
		far := compliance.Instant(now.Add(45 * 24 * time.Hour))
		result, err := analyzer().Analyze(statusFor(f, &far), f)
		require.NoError(t, err)
		assert.NotContains(t, result.Recommendations[0].SuggestedActions, "Prioritize completion before deadline in 45 days.")

		near := compliance.Instant(now.Add(20*24*time.Hour + time.Hour))
		result, err = analyzer().Analyze(statusFor(f, &near), f)
		require.NoError(t, err)
		assert.Contains(t, result.Recommendations[0].SuggestedActions, "Prioritize completion before deadline in 21 days.")
		assert.Equal(t, compliance.SeverityHigh, result.Gaps[0].Severity)
	})

	t.Run("PastDeadlineIsCritical", func(t *testing.T) {
		past := compliance.Date(2024, time.February, 1)
		result, err := analyzer().Analyze(statusFor(f, &past), f)
		require.NoError(t, err)
		assert.Equal(t, compliance.SeverityCritical, result.Gaps[0].Severity)
		assert.Less(t, *result.Gaps[0].RemainingDays, 0)
	})

	t.Run("FrameworkMismatch", func(t *testing.T) {
		other := &compliance.Framework{ID: "other"}
		_, err := analyzer().Analyze(statusFor(f, nil), other)
		assert.ErrorIs(t, err, compliance.ErrValidation)
	})
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name                        string
		critical, high, medium, low int
		total                       int
		score                       int
		level                       compliance.RiskLevel
	}{
		{"NoGaps", 0, 0, 0, 0, 10, 0, compliance.RiskLow},
		{"AllCritical", 3, 0, 0, 0, 3, 100, compliance.RiskCritical},
		{"CriticalAndMedium", 1, 0, 1, 0, 2, 70, compliance.RiskHigh},
		{"OneHighOfFour", 0, 1, 0, 0, 4, 18, compliance.RiskLow},
		{"HalfRoundsUp", 0, 0, 0, 1, 4, 3, compliance.RiskLow},
		{"TinyScoreFloored", 0, 0, 0, 1, 500, 1, compliance.RiskLow},
		{"MediumBoundary", 0, 0, 5, 0, 8, 25, compliance.RiskMedium},
		{"CriticalBoundary", 3, 0, 0, 0, 4, 75, compliance.RiskCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := RiskScore(tt.critical, tt.high, tt.medium, tt.low, tt.total)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.level, Level(score))
		})
	}

	t.Run("Bounds", func(t *testing.T) {
		for c := 0; c <= 4; c++ {
			for l := 0; l <= 4; l++ {
				score := RiskScore(c, 0, 0, l, 4)
				assert.GreaterOrEqual(t, score, 0)
				assert.LessOrEqual(t, score, 100)
				assert.Equal(t, c+l == 0, score == 0)
			}
		}
	})

	t.Run("LevelThresholds", func(t *testing.T) {
		assert.Equal(t, compliance.RiskLow, Level(24))
		assert.Equal(t, compliance.RiskMedium, Level(49))
		assert.Equal(t, compliance.RiskHigh, Level(50))
		assert.Equal(t, compliance.RiskHigh, Level(74))
		assert.Equal(t, compliance.RiskCritical, Level(75))
	})
}
