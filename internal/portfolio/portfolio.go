// Package portfolio summarizes compliance across the frameworks an
// organization tracks and scans many statuses for high risk.
package portfolio

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/gap"
	"github.com/aegisshield/compliance-tracker/internal/tracker"
)

const (
	// OverviewLimit caps the upcoming deadlines and critical gaps in an overview
	OverviewLimit = 5

	DefaultScanConcurrency = 4
)

// AnalysisObserver is notified of every completed gap analysis
type AnalysisObserver interface {
	ObserveAnalysis(result *compliance.GapAnalysisResult)
}

// Service builds organization overviews and risk scans on top of the tracker
type Service struct {
	tracker  *tracker.Tracker
	analyzer *gap.Analyzer
	observer AnalysisObserver
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source used for days remaining
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithObserver registers an analysis observer, usually the metrics collector
func WithObserver(o AnalysisObserver) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a portfolio service
func NewService(t *tracker.Tracker, a *gap.Analyzer, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{tracker: t, analyzer: a, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpcomingDeadline is the next deadline of one tracked framework
type UpcomingDeadline struct {
	StatusID      string               `json:"statusId"`
	FrameworkID   string               `json:"frameworkId"`
	FrameworkName string               `json:"frameworkName"`
	DeadlineID    string               `json:"deadlineId,omitempty"`
	DeadlineDate  compliance.Timestamp `json:"deadlineDate"`
	DaysRemaining int                  `json:"daysRemaining"`
}

// CriticalGap is a critical gap annotated with its framework name
type CriticalGap struct {
	compliance.ComplianceGap
	FrameworkName string `json:"frameworkName"`
}

// Overview summarizes an organization's compliance
type Overview struct {
	OrganizationID    string                           `json:"organizationId"`
	ActiveFrameworks  int                              `json:"activeFrameworks"`
	TotalFrameworks   int                              `json:"totalFrameworks"`
	StatusCounts      map[compliance.OverallStatus]int `json:"statusCounts"`
	AverageCompletion int                              `json:"averageCompletion"`
	UpcomingDeadlines []UpcomingDeadline               `json:"upcomingDeadlines"`
	CriticalGaps      []CriticalGap                    `json:"criticalGaps"`
}

// Overview returns the organization's active frameworks, status counts,
// average completion, closest deadlines and critical gaps
func (s *Service) Overview(ctx context.Context, organizationID string) (*Overview, error) {
	if organizationID == "" {
		return nil, compliance.ValidationError("overview", "organization", organizationID, "organization id is required")
	}

	statuses, err := s.tracker.ByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &Overview{
		OrganizationID:    organizationID,
		ActiveFrameworks:  len(statuses),
		TotalFrameworks:   s.tracker.Catalog().Len(),
		StatusCounts:      map[compliance.OverallStatus]int{},
		UpcomingDeadlines: []UpcomingDeadline{},
		CriticalGaps:      []CriticalGap{},
	}

	total := 0
	for _, st := range statuses {
		o.StatusCounts[st.Status]++
		total += st.CompletionPercentage

		framework, err := s.tracker.Catalog().Get(st.FrameworkID)
		if err != nil {
			s.logger.Warn("Status references unknown framework",
				zap.String("status_id", st.ID),
				zap.String("framework_id", st.FrameworkID))
			continue
		}

		if st.NextDeadline != nil {
			o.UpcomingDeadlines = append(o.UpcomingDeadlines, UpcomingDeadline{
				StatusID:      st.ID,
				FrameworkID:   framework.ID,
				FrameworkName: framework.Name,
				DeadlineID:    st.NextDeadlineID,
				DeadlineDate:  *st.NextDeadline,
				DaysRemaining: daysUntil(st.NextDeadline.Time(), now),
			})
		}

		result, err := s.analyze(st, framework)
		if err != nil {
			return nil, err
		}
		for _, g := range result.Gaps {
			if g.Severity == compliance.SeverityCritical && len(o.CriticalGaps) < OverviewLimit {
				o.CriticalGaps = append(o.CriticalGaps, CriticalGap{ComplianceGap: g, FrameworkName: framework.Name})
			}
		}
	}

	if len(statuses) > 0 {
		o.AverageCompletion = (2*total + len(statuses)) / (2 * len(statuses))
	}

	sort.SliceStable(o.UpcomingDeadlines, func(i, j int) bool {
		return o.UpcomingDeadlines[i].DaysRemaining < o.UpcomingDeadlines[j].DaysRemaining
	})
	if len(o.UpcomingDeadlines) > OverviewLimit {
		o.UpcomingDeadlines = o.UpcomingDeadlines[:OverviewLimit]
	}
	return o, nil
}

// ScanOptions bounds a high-risk scan
type ScanOptions struct {
	// OrganizationID restricts the scan to one organization when set
	OrganizationID string
	// MinLevel is the lowest risk level reported; defaults to high
	MinLevel compliance.RiskLevel
	// Limit caps the number of findings returned; zero means no limit.
	// Every matching status is still analyzed so the top scores can be
	// ranked, so the scan cost is bounded by Concurrency and ctx instead.
	Limit int
	// Concurrency bounds the number of statuses analyzed at once
	Concurrency int
}

// Finding is one status whose risk reached the scan threshold
type Finding struct {
	StatusID       string                `json:"statusId"`
	OrganizationID string                `json:"organizationId"`
	FrameworkID    string                `json:"frameworkId"`
	RiskScore      int                   `json:"riskScore"`
	RiskLevel      compliance.RiskLevel  `json:"riskLevel"`
	CriticalGaps   int                   `json:"criticalGapsCount"`
	HighGaps       int                   `json:"highGapsCount"`
	NextDeadline   *compliance.Timestamp `json:"nextDeadline,omitempty"`
}

// HighRisk analyzes statuses concurrently and returns those at or above
// MinLevel, highest risk score first. The store query is not limited;
// opts.Limit truncates the ranked findings.
func (s *Service) HighRisk(ctx context.Context, opts ScanOptions) ([]Finding, error) {
	if opts.MinLevel == "" {
		opts.MinLevel = compliance.RiskHigh
	}
	if !opts.MinLevel.Valid() {
		return nil, compliance.ValidationError("high_risk_scan", "risk_level", string(opts.MinLevel), "unknown risk level")
	}
	if opts.Limit < 0 {
		return nil, compliance.ValidationError("high_risk_scan", "limit", "", "limit must not be negative")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultScanConcurrency
	}

	statuses, err := s.tracker.List(ctx, opts.OrganizationID)
	if err != nil {
		return nil, err
	}

	findings := make([]*Finding, len(statuses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, st := range statuses {
		i, st := i, st
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			framework, err := s.tracker.Catalog().Get(st.FrameworkID)
			if err != nil {
				s.logger.Warn("Skipping status with unknown framework",
					zap.String("status_id", st.ID),
					zap.String("framework_id", st.FrameworkID))
				return nil
			}
			result, err := s.analyze(st, framework)
			if err != nil {
				return err
			}
			if result.RiskLevel.Rank() < opts.MinLevel.Rank() {
				return nil
			}
			findings[i] = &Finding{
				StatusID:       st.ID,
				OrganizationID: st.OrganizationID,
				FrameworkID:    st.FrameworkID,
				RiskScore:      result.RiskScore,
				RiskLevel:      result.RiskLevel,
				CriticalGaps:   result.CriticalGapsCount,
				HighGaps:       result.HighGapsCount,
				NextDeadline:   result.NextDeadline,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f != nil {
			out = append(out, *f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	s.logger.Debug("High risk scan completed",
		zap.Int("statuses", len(statuses)),
		zap.Int("findings", len(out)),
		zap.String("min_level", string(opts.MinLevel)))
	return out, nil
}

// Analyze runs gap analysis for one status against its framework
func (s *Service) Analyze(ctx context.Context, statusID string) (*compliance.GapAnalysisResult, error) {
	st, err := s.tracker.Get(ctx, statusID)
	if err != nil {
		return nil, err
	}
	framework, err := s.tracker.Catalog().Get(st.FrameworkID)
	if err != nil {
		return nil, err
	}
	return s.analyze(st, framework)
}

func (s *Service) analyze(st *compliance.ComplianceStatus, f *compliance.Framework) (*compliance.GapAnalysisResult, error) {
	result, err := s.analyzer.Analyze(st, f)
	if err != nil {
		return nil, err
	}
	if s.observer != nil {
		s.observer.ObserveAnalysis(result)
	}
	return result, nil
}

func daysUntil(deadline, now time.Time) int {
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}
