package compliance

// RequirementCategory classifies what kind of work a requirement asks for
type RequirementCategory string

const (
	CategoryDisclosure   RequirementCategory = "disclosure"
	CategoryMeasurement  RequirementCategory = "measurement"
	CategoryReporting    RequirementCategory = "reporting"
	CategoryVerification RequirementCategory = "verification"
	CategoryOther        RequirementCategory = "other"
)

// Valid reports whether c is a known category
func (c RequirementCategory) Valid() bool {
	switch c {
	case CategoryDisclosure, CategoryMeasurement, CategoryReporting, CategoryVerification, CategoryOther:
		return true
	}
	return false
}

// RequirementLevel is how binding a requirement is
type RequirementLevel string

const (
	LevelMandatory   RequirementLevel = "mandatory"
	LevelRecommended RequirementLevel = "recommended"
	LevelOptional    RequirementLevel = "optional"
)

// Valid reports whether l is a known level
func (l RequirementLevel) Valid() bool {
	switch l {
	case LevelMandatory, LevelRecommended, LevelOptional:
		return true
	}
	return false
}

// OverallStatus is the status of a whole compliance record
type OverallStatus string

const (
	StatusNotStarted   OverallStatus = "not-started"
	StatusInProgress   OverallStatus = "in-progress"
	StatusCompliant    OverallStatus = "compliant"
	StatusNonCompliant OverallStatus = "non-compliant"
	StatusExempt       OverallStatus = "exempt"
)

// Valid reports whether s is a known overall status
func (s OverallStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompliant, StatusNonCompliant, StatusExempt:
		return true
	}
	return false
}

// RequirementState is the progress state of a single requirement row
type RequirementState string

const (
	RequirementNotStarted    RequirementState = "not-started"
	RequirementInProgress    RequirementState = "in-progress"
	RequirementCompleted     RequirementState = "completed"
	RequirementNotApplicable RequirementState = "not-applicable"
)

// Valid reports whether s is a known requirement state
func (s RequirementState) Valid() bool {
	switch s {
	case RequirementNotStarted, RequirementInProgress, RequirementCompleted, RequirementNotApplicable:
		return true
	}
	return false
}

// Done reports whether the row counts as fully satisfied
func (s RequirementState) Done() bool {
	return s == RequirementCompleted || s == RequirementNotApplicable
}

// ReviewStatus is the review state of an evidence document
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending-review"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Valid reports whether s is a known review status
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return true
	}
	return false
}

// Framework represents a regulatory reporting framework
type Framework struct {
	ID              string                `json:"id" yaml:"id" validate:"required"`
	Name            string                `json:"name" yaml:"name" validate:"required"`
	Description     string                `json:"description,omitempty" yaml:"description"`
	Version         string                `json:"version" yaml:"version"`
	Category        string                `json:"category" yaml:"category"` // emissions, sustainability, financial, general
	Regions         []string              `json:"regions" yaml:"regions"`
	Sectors         []string              `json:"sectors" yaml:"sectors"`
	Requirements    []Requirement         `json:"requirements" yaml:"requirements" validate:"required,min=1,dive"`
	ReportingPeriod ReportingPeriodConfig `json:"reportingPeriod" yaml:"reporting_period"`
	Deadlines       []DeadlineConfig      `json:"deadlines" yaml:"deadlines" validate:"dive"`
	Website         string                `json:"website,omitempty" yaml:"website"`
	References      []string              `json:"referenceDocuments,omitempty" yaml:"reference_documents"`
	EffectiveDate   Timestamp             `json:"effectiveDate" yaml:"effective_date"`
	LastUpdated     Timestamp             `json:"lastUpdated" yaml:"last_updated"`
}

// Requirement returns the requirement with the given id
func (f *Framework) Requirement(id string) (Requirement, bool) {
	for _, r := range f.Requirements {
		if r.ID == id {
			return r, true
		}
	}
	return Requirement{}, false
}

// HasCategory reports whether any requirement other than exceptID has category c
func (f *Framework) HasCategory(c RequirementCategory, exceptID string) bool {
	for _, r := range f.Requirements {
		if r.ID != exceptID && r.Category == c {
			return true
		}
	}
	return false
}

// Requirement represents one obligation within a framework
type Requirement struct {
	ID                 string              `json:"id" yaml:"id" validate:"required"`
	Name               string              `json:"name" yaml:"name" validate:"required"`
	Description        string              `json:"description" yaml:"description"`
	Category           RequirementCategory `json:"category" yaml:"category" validate:"required"`
	Level              RequirementLevel    `json:"level" yaml:"level" validate:"required"`
	EvidenceTypes      []string            `json:"evidenceTypes" yaml:"evidence_types"`
	Guidance           string              `json:"guidance,omitempty" yaml:"guidance"`
	ValidationCriteria []string            `json:"validationCriteria,omitempty" yaml:"validation_criteria"`
}

// ReportingPeriodConfig describes the cadence of a framework's reporting period
type ReportingPeriodConfig struct {
	PeriodType             string `json:"periodType" yaml:"period_type" validate:"omitempty,oneof=annual quarterly monthly custom"`
	PeriodStartMonth       int    `json:"periodStartMonth,omitempty" yaml:"period_start_month" validate:"min=0,max=12"`
	PeriodStartDay         int    `json:"periodStartDay,omitempty" yaml:"period_start_day" validate:"min=0,max=31"`
	CustomPeriodLengthDays int    `json:"customPeriodLengthDays,omitempty" yaml:"custom_period_length_days" validate:"min=0"`
	GracePeriodDays        int    `json:"gracePeriodDays" yaml:"grace_period_days" validate:"min=0"`
}

// DeadlineConfig is a deadline relative to the end of a reporting period
type DeadlineConfig struct {
	ID           string     `json:"id" yaml:"id" validate:"required"`
	Name         string     `json:"name" yaml:"name"`
	Description  string     `json:"description,omitempty" yaml:"description"`
	Category     string     `json:"category" yaml:"category"` // submission, verification, publication, other
	RelativeDays int        `json:"relativeDays" yaml:"relative_days"`
	AbsoluteDate *Timestamp `json:"absoluteDate,omitempty" yaml:"absolute_date,omitempty"`
}

// ComplianceStatus tracks one organization's progress against one framework
type ComplianceStatus struct {
	ID                   string              `json:"id,omitempty"`
	Version              int64               `json:"version,omitempty"`
	OrganizationID       string              `json:"organizationId"`
	FrameworkID          string              `json:"frameworkId"`
	Status               OverallStatus       `json:"status"`
	CompletionPercentage int                 `json:"completionPercentage"`
	StartDate            Timestamp           `json:"startDate"`
	PeriodEndDate        Timestamp           `json:"periodEndDate"`
	NextDeadline         *Timestamp          `json:"nextDeadline,omitempty"`
	NextDeadlineID       string              `json:"nextDeadlineId,omitempty"`
	Assignees            []string            `json:"assignedTo"`
	RequirementStatuses  []RequirementStatus `json:"requirementStatuses"`
	Notes                string              `json:"notes,omitempty"`
	CreatedAt            Timestamp           `json:"createdAt"`
	UpdatedAt            Timestamp           `json:"updatedAt"`
	LastUpdatedBy        string              `json:"lastUpdatedBy"`
}

// Row returns the index of the row for requirementID, or -1
func (s *ComplianceStatus) Row(requirementID string) int {
	for i := range s.RequirementStatuses {
		if s.RequirementStatuses[i].RequirementID == requirementID {
			return i
		}
	}
	return -1
}

// RequirementStatus is the per-requirement progress row of a ComplianceStatus
type RequirementStatus struct {
	RequirementID        string           `json:"requirementId"`
	Status               RequirementState `json:"status"`
	CompletionPercentage int              `json:"completionPercentage"`
	Assignees            []string         `json:"assignedTo,omitempty"`
	Notes                string           `json:"notes,omitempty"`
	EvidenceDocumentIDs  []string         `json:"evidenceDocumentIds"`
	LastUpdated          Timestamp        `json:"lastUpdated"`
}

// HasEvidence reports whether documentID is linked to the row
func (r *RequirementStatus) HasEvidence(documentID string) bool {
	for _, id := range r.EvidenceDocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}

// EvidenceDocument is the metadata of an uploaded evidence artifact
type EvidenceDocument struct {
	ID             string       `json:"id,omitempty"`
	OrganizationID string       `json:"organizationId"`
	Name           string       `json:"name" validate:"required"`
	Description    string       `json:"description,omitempty"`
	FileURL        string       `json:"fileUrl,omitempty"`
	FileType       string       `json:"fileType,omitempty"`
	UploadedBy     string       `json:"uploadedBy" validate:"required"`
	UploadedAt     Timestamp    `json:"uploadedAt"`
	RequirementIDs []string     `json:"requirementIds" validate:"required,min=1,dive,required"`
	Status         ReviewStatus `json:"status"`
	ReviewedBy     string       `json:"reviewedBy,omitempty"`
	ReviewedAt     *Timestamp   `json:"reviewedAt,omitempty"`
	Comments       string       `json:"comments,omitempty"`
}
