package tracker

import (
	"sort"
	"time"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

// Aggregate computes the completion percentage and overall status of a set of
// requirement rows. Completed and not-applicable rows count fully, in-progress
// rows count by their own percentage. The result is rounded half up.
// Non-compliant and exempt are never produced here; they are set manually.
func Aggregate(rows []compliance.RequirementStatus) (int, compliance.OverallStatus) {
	if len(rows) == 0 {
		return 0, compliance.StatusNotStarted
	}

	// progress in percentage points: 100 per done row plus in-progress percentages
	points := 0
	for _, r := range rows {
		switch {
		case r.Status.Done():
			points += 100
		case r.Status == compliance.RequirementInProgress:
			points += r.CompletionPercentage
		}
	}

	total := len(rows)
	pct := (2*points + total) / (2 * total)

	switch {
	case pct >= 100:
		return 100, compliance.StatusCompliant
	case pct > 0:
		return pct, compliance.StatusInProgress
	}
	return 0, compliance.StatusNotStarted
}

// NextDeadline selects the earliest configured deadline falling strictly after
// now. Each deadline is dated by its absolute override when present, otherwise
// by periodEnd plus its relative days. Ties go to the smaller relative offset.
// It returns nil when no deadline qualifies.
func NextDeadline(deadlines []compliance.DeadlineConfig, periodEnd compliance.Timestamp, now time.Time) (*compliance.Timestamp, string) {
	sorted := append([]compliance.DeadlineConfig(nil), deadlines...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RelativeDays < sorted[j].RelativeDays })

	var (
		best   *compliance.Timestamp
		bestID string
	)
	for _, d := range sorted {
		date := periodEnd.AddDays(d.RelativeDays)
		if d.AbsoluteDate != nil {
			date = *d.AbsoluteDate
		}
		if !date.Time().After(now) {
			continue
		}
		if best == nil || date.Time().Before(best.Time()) {
			best = date.Ptr()
			bestID = d.ID
		}
	}
	return best, bestID
}
