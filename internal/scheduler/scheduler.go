package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/config"
	"github.com/aegisshield/compliance-tracker/internal/portfolio"
)

// Actor recorded on events raised by the scan
const Actor = "risk-scanner"

// Scanner finds statuses at or above a risk level
type Scanner interface {
	HighRisk(ctx context.Context, opts portfolio.ScanOptions) ([]portfolio.Finding, error)
}

// Stats describes the scan job's history
type Stats struct {
	Schedule     string    `json:"schedule"`
	Enabled      bool      `json:"enabled"`
	LastRun      time.Time `json:"lastRun"`
	NextRun      time.Time `json:"nextRun"`
	RunCount     int64     `json:"runCount"`
	ErrorCount   int64     `json:"errorCount"`
	LastFindings int       `json:"lastFindings"`
}

// Scheduler runs the high-risk scan on a cron schedule and publishes a
// risk.high_detected event for every finding
type Scheduler struct {
	cfg     config.ScanConfig
	scanner Scanner
	sink    compliance.EventSink
	logger  *zap.Logger
	cron    *cron.Cron
	entryID cron.EntryID
	now     func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a scheduler. The schedule is a standard five-field cron expression.
func New(cfg config.ScanConfig, scanner Scanner, sink compliance.EventSink, logger *zap.Logger) (*Scheduler, error) {
	if sink == nil {
		sink = compliance.NopSink{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	s := &Scheduler{
		cfg:     cfg,
		scanner: scanner,
		sink:    sink,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		now:     time.Now,
		stats:   Stats{Schedule: cfg.Schedule, Enabled: cfg.Enabled},
	}

	if cfg.Enabled {
		id, err := s.cron.AddFunc(cfg.Schedule, s.execute)
		if err != nil {
			return nil, fmt.Errorf("failed to schedule risk scan %q: %w", cfg.Schedule, err)
		}
		s.entryID = id
	}
	return s, nil
}

// Start starts the cron loop. It is a no-op when the scan is disabled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("Risk scan disabled")
		return nil
	}
	s.cron.Start()
	s.logger.Info("Scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Time("next_run", s.cron.Entry(s.entryID).Next))
	return nil
}

// Stop stops the cron loop and waits for a running scan to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler did not stop in time: %w", ctx.Err())
	}
}

// RunOnce runs the scan synchronously and returns the number of findings published
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := s.now()

	findings, err := s.scanner.HighRisk(ctx, portfolio.ScanOptions{
		MinLevel:    compliance.RiskLevel(s.cfg.MinLevel),
		Limit:       s.cfg.Limit,
		Concurrency: s.cfg.Concurrency,
	})

	s.mu.Lock()
	s.stats.LastRun = start
	s.stats.RunCount++
	if err != nil {
		s.stats.ErrorCount++
	} else {
		s.stats.LastFindings = len(findings)
	}
	s.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("risk scan failed: %w", err)
	}

	for _, f := range findings {
		event := compliance.Event{
			ID:             uuid.New().String(),
			Type:           compliance.EventHighRiskDetected,
			OrganizationID: f.OrganizationID,
			EntityType:     "status",
			EntityID:       f.StatusID,
			Actor:          Actor,
			OccurredAt:     s.now().UTC(),
			Details: map[string]interface{}{
				"framework_id":  f.FrameworkID,
				"risk_score":    f.RiskScore,
				"risk_level":    string(f.RiskLevel),
				"critical_gaps": f.CriticalGaps,
				"high_gaps":     f.HighGaps,
			},
		}
		if err := s.sink.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish risk finding",
				zap.String("status_id", f.StatusID),
				zap.Error(err))
		}
	}

	s.logger.Info("Risk scan completed",
		zap.Int("findings", len(findings)),
		zap.Duration("execution_time", s.now().Sub(start)))
	return len(findings), nil
}

// Stats returns a snapshot of the job history
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	if s.entryID != 0 {
		st.NextRun = s.cron.Entry(s.entryID).Next
	}
	return st
}

func (s *Scheduler) execute() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Scheduled risk scan failed", zap.Error(err))
	}
}
