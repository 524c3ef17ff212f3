// Package gap finds unmet requirements in a compliance status, scores the
// resulting risk and suggests remediation steps.
package gap

import (
	"fmt"
	"math"
	"time"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

// Severity weights used by the risk score
const (
	weightCritical = 100
	weightHigh     = 70
	weightMedium   = 40
	weightLow      = 10
)

// Days before a deadline at which mandatory gaps become critical and
// recommendations call out the deadline
const (
	criticalWindowDays = 7
	urgentWindowDays   = 30
)

// Analyzer performs gap analysis. It holds no state besides its clock and is
// safe for concurrent use.
type Analyzer struct {
	now func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates a gap analyzer
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze compares a status with the framework it tracks. Requirements whose
// row is completed or not applicable produce no gap; every other requirement
// produces a gap and a recommendation.
func (a *Analyzer) Analyze(status *compliance.ComplianceStatus, framework *compliance.Framework) (*compliance.GapAnalysisResult, error) {
	if status == nil || framework == nil {
		return nil, compliance.ValidationError("analyze_gaps", "status", "", "status and framework are required")
	}
	if status.FrameworkID != framework.ID {
		return nil, compliance.ValidationError("analyze_gaps", "status", status.ID,
			fmt.Sprintf("status tracks framework %s, not %s", status.FrameworkID, framework.ID))
	}

	now := a.now()
	result := &compliance.GapAnalysisResult{
		OrganizationID:              status.OrganizationID,
		FrameworkID:                 status.FrameworkID,
		AnalysisDate:                compliance.Instant(now),
		OverallCompletionPercentage: status.CompletionPercentage,
		Gaps:                        []compliance.ComplianceGap{},
		Recommendations:             []compliance.ComplianceRecommendation{},
		NextDeadline:                status.NextDeadline,
	}

	var remaining *int
	if status.NextDeadline != nil {
		days := int(math.Ceil(status.NextDeadline.Time().Sub(now).Hours() / 24))
		remaining = &days
	}

	for _, req := range framework.Requirements {
		var row *compliance.RequirementStatus
		if i := status.Row(req.ID); i >= 0 {
			row = &status.RequirementStatuses[i]
		}
		if row != nil && row.Status.Done() {
			continue
		}

		g := identifyGap(req, row, framework, status, remaining)
		result.Gaps = append(result.Gaps, g)
		result.Recommendations = append(result.Recommendations, recommend(g, req))

		switch g.Severity {
		case compliance.SeverityCritical:
			result.CriticalGapsCount++
		case compliance.SeverityHigh:
			result.HighGapsCount++
		case compliance.SeverityMedium:
			result.MediumGapsCount++
		default:
			result.LowGapsCount++
		}
	}

	result.RiskScore = RiskScore(result.CriticalGapsCount, result.HighGapsCount,
		result.MediumGapsCount, result.LowGapsCount, len(framework.Requirements))
	result.RiskLevel = Level(result.RiskScore)
	return result, nil
}

func identifyGap(req compliance.Requirement, row *compliance.RequirementStatus, f *compliance.Framework, s *compliance.ComplianceStatus, remaining *int) compliance.ComplianceGap {
	evidenceMissing := row == nil || len(row.EvidenceDocumentIDs) == 0

	g := compliance.ComplianceGap{
		ID:              fmt.Sprintf("gap-%s-%s", req.ID, s.OrganizationID),
		FrameworkID:     f.ID,
		RequirementID:   req.ID,
		OrganizationID:  s.OrganizationID,
		Description:     "Missing compliance for: " + req.Name,
		Severity:        severity(req.Level, evidenceMissing, remaining),
		Impact:          impact(req.Level, f.Name),
		EvidenceMissing: evidenceMissing,
		IsBlocking:      isBlocking(req, f),
	}
	if s.NextDeadline != nil {
		g.Deadline = s.NextDeadline.Ptr()
	}
	if remaining != nil {
		days := *remaining
		g.RemainingDays = &days
	}
	return g
}

func severity(level compliance.RequirementLevel, evidenceMissing bool, remaining *int) compliance.Severity {
	switch {
	case level == compliance.LevelMandatory && remaining != nil && *remaining <= criticalWindowDays:
		return compliance.SeverityCritical
	case level == compliance.LevelMandatory:
		return compliance.SeverityHigh
	case level == compliance.LevelRecommended && evidenceMissing:
		return compliance.SeverityMedium
	}
	return compliance.SeverityLow
}

func impact(level compliance.RequirementLevel, frameworkName string) string {
	switch level {
	case compliance.LevelMandatory:
		return fmt.Sprintf("Non-compliance with %s mandatory requirement may result in regulatory penalties.", frameworkName)
	case compliance.LevelRecommended:
		return "Missing recommended practice may impact reporting quality and stakeholder trust."
	case compliance.LevelOptional:
		return "Optional requirement that would enhance reporting comprehensiveness."
	}
	return "Unknown impact"
}

// isBlocking treats a measurement requirement as blocking whenever the
// framework has a reporting requirement. Requirements carry no explicit
// dependency edges, so this is a category match only.
func isBlocking(req compliance.Requirement, f *compliance.Framework) bool {
	return req.Category == compliance.CategoryMeasurement && f.HasCategory(compliance.CategoryReporting, req.ID)
}

// RiskScore normalizes weighted gap counts to 0..100, rounding half up. Any
// non-empty set of gaps scores at least 1.
func RiskScore(critical, high, medium, low, totalRequirements int) int {
	gaps := critical + high + medium + low
	if gaps == 0 || totalRequirements <= 0 {
		return 0
	}

	weighted := critical*weightCritical + high*weightHigh + medium*weightMedium + low*weightLow
	score := (2*weighted + totalRequirements) / (2 * totalRequirements)
	switch {
	case score > 100:
		return 100
	case score < 1:
		return 1
	}
	return score
}

// Level buckets a risk score
func Level(score int) compliance.RiskLevel {
	switch {
	case score >= 75:
		return compliance.RiskCritical
	case score >= 50:
		return compliance.RiskHigh
	case score >= 25:
		return compliance.RiskMedium
	}
	return compliance.RiskLow
}
