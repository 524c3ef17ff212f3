package gap

import (
	"fmt"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

func recommend(g compliance.ComplianceGap, req compliance.Requirement) compliance.ComplianceRecommendation {
	return compliance.ComplianceRecommendation{
		ID:               "rec-" + g.ID,
		GapID:            g.ID,
		Description:      "Address compliance gap in " + req.Name,
		Priority:         priority(g),
		EstimatedEffort:  effort(req.Category),
		SuggestedActions: actions(g, req),
		Resources:        resources(req),
	}
}

func priority(g compliance.ComplianceGap) compliance.Priority {
	switch {
	case g.Severity == compliance.SeverityCritical:
		return compliance.PriorityImmediate
	case g.Severity == compliance.SeverityHigh || g.IsBlocking:
		return compliance.PriorityHigh
	case g.Severity == compliance.SeverityMedium:
		return compliance.PriorityMedium
	}
	return compliance.PriorityLow
}

func effort(c compliance.RequirementCategory) compliance.Effort {
	switch c {
	case compliance.CategoryMeasurement, compliance.CategoryVerification:
		return compliance.EffortHigh
	}
	return compliance.EffortMedium
}

func actions(g compliance.ComplianceGap, req compliance.Requirement) []string {
	var out []string
	if g.EvidenceMissing {
		out = append(out, fmt.Sprintf("Collect required evidence for %s.", req.Name))
	}

	switch req.Category {
	case compliance.CategoryDisclosure:
		out = append(out, fmt.Sprintf("Prepare disclosure documentation for %s.", req.Name))
	case compliance.CategoryMeasurement:
		out = append(out,
			fmt.Sprintf("Implement measurement methodology for %s.", req.Name),
			"Validate data collection process with stakeholders.")
	case compliance.CategoryReporting:
		out = append(out,
			fmt.Sprintf("Develop reporting template for %s.", req.Name),
			"Review report with legal and compliance teams.")
	case compliance.CategoryVerification:
		out = append(out,
			fmt.Sprintf("Engage third-party verifier for %s.", req.Name),
			"Prepare verification documentation.")
	}

	if g.RemainingDays != nil && *g.RemainingDays <= urgentWindowDays {
		out = append(out, fmt.Sprintf("Prioritize completion before deadline in %d days.", *g.RemainingDays))
	}

	return append(out, fmt.Sprintf("Assign responsibility for addressing %s to team member.", req.Name))
}

var categoryResources = map[compliance.RequirementCategory][]string{
	compliance.CategoryDisclosure:   {"Disclosure best practices guide", "Data privacy review checklist"},
	compliance.CategoryMeasurement:  {"Measurement methodology templates", "Data collection forms"},
	compliance.CategoryReporting:    {"Reporting templates", "Example reports from industry peers"},
	compliance.CategoryVerification: {"Verification provider directory", "Pre-verification checklist"},
}

func resources(req compliance.Requirement) []string {
	var out []string
	if req.Guidance != "" {
		out = append(out, "Framework guidance: "+req.Guidance)
	}
	return append(out, categoryResources[req.Category]...)
}
