package compliance

// Severity of a compliance gap
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Priority of a recommendation
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityHigh      Priority = "high"
	PriorityMedium    Priority = "medium"
	PriorityLow       Priority = "low"
)

// Effort is the estimated effort to close a gap
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// RiskLevel buckets a risk score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels from 1 (low) to 4 (critical); unknown levels rank 0
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

// Valid reports whether l is a known risk level
func (l RiskLevel) Valid() bool { return l.Rank() > 0 }

// ComplianceGap is a requirement that is not yet satisfied
type ComplianceGap struct {
	ID              string     `json:"id"`
	FrameworkID     string     `json:"frameworkId"`
	RequirementID   string     `json:"requirementId"`
	OrganizationID  string     `json:"organizationId"`
	Description     string     `json:"description"`
	Severity        Severity   `json:"severity"`
	Impact          string     `json:"impact"`
	Deadline        *Timestamp `json:"deadline,omitempty"`
	RemainingDays   *int       `json:"remainingDays,omitempty"`
	EvidenceMissing bool       `json:"evidenceMissing"`
	IsBlocking      bool       `json:"isBlocking"`
}

// ComplianceRecommendation is a prioritized remediation step for a gap
type ComplianceRecommendation struct {
	ID               string   `json:"id"`
	GapID            string   `json:"gapId"`
	Description      string   `json:"description"`
	Priority         Priority `json:"priority"`
	EstimatedEffort  Effort   `json:"estimatedEffort"`
	SuggestedActions []string `json:"suggestedActions"`
	Resources        []string `json:"resources,omitempty"`
}

// GapAnalysisResult is a point-in-time snapshot of gaps and risk for one status
type GapAnalysisResult struct {
	OrganizationID              string                     `json:"organizationId"`
	FrameworkID                 string                     `json:"frameworkId"`
	AnalysisDate                Timestamp                  `json:"analysisDate"`
	OverallCompletionPercentage int                        `json:"overallCompletionPercentage"`
	RiskScore                   int                        `json:"riskScore"`
	RiskLevel                   RiskLevel                  `json:"riskLevel"`
	Gaps                        []ComplianceGap            `json:"gaps"`
	Recommendations             []ComplianceRecommendation `json:"recommendations"`
	NextDeadline                *Timestamp                 `json:"nextDeadline,omitempty"`
	CriticalGapsCount           int                        `json:"criticalGapsCount"`
	HighGapsCount               int                        `json:"highGapsCount"`
	MediumGapsCount             int                        `json:"mediumGapsCount"`
	LowGapsCount                int                        `json:"lowGapsCount"`
}
