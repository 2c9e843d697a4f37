package usage

import (
	"context"
	"sort"
	"time"

	"github.com/kailas-cloud/aiorch/internal/usecase/budget"
)

// Period selects the budget window of a report.
type Period string

const (
	// PeriodDay reports the current UTC day.
	PeriodDay Period = "day"
	// PeriodMonth reports the current UTC month.
	PeriodMonth Period = "month"
)

// BudgetReader provides read-only access to token budget state.
type BudgetReader interface {
	Snapshot() budget.Snapshot
}

// Report is the usage of one provider budget within a period.
type Report struct {
	Provider    string `json:"provider"`
	Kind        string `json:"kind"`
	Period      Period `json:"period"`
	PeriodStart int64  `json:"period_start_ms"`
	PeriodEnd   int64  `json:"period_end_ms"`
	Limit       int64  `json:"tokens_limit"` // 0 = unlimited
	Used        int64  `json:"tokens_used"`
	Remaining   int64  `json:"tokens_remaining"` // -1 = unlimited
	Exhausted   bool   `json:"exhausted"`
}

// Service handles usage reporting.
type Service struct {
	readers []BudgetReader
	now     func() time.Time
}

// New creates a Service. With no readers every report is empty (unlimited mode).
func New(readers ...BudgetReader) *Service {
	return &Service{readers: readers, now: func() time.Time { return time.Now().UTC() }}
}

// GetReport builds one report per tracked budget for the given period,
// ordered by provider then kind.
func (s *Service) GetReport(_ context.Context, period Period) []Report {
	now := s.now()
	var start, end time.Time
	switch period {
	case PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	default:
		period = PeriodDay
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
	}

	reports := make([]Report, 0, len(s.readers))
	for _, br := range s.readers {
		snap := br.Snapshot()
		limit, used := snap.DailyLimit, snap.DailyUsed
		if period == PeriodMonth {
			limit, used = snap.MonthlyLimit, snap.MonthlyUsed
		}
		remaining := int64(-1)
		if limit > 0 {
			remaining = max(0, limit-used)
		}
		reports = append(reports, Report{
			Provider:    snap.Provider,
			Kind:        string(snap.Kind),
			Period:      period,
			PeriodStart: start.UnixMilli(),
			PeriodEnd:   end.UnixMilli(),
			Limit:       limit,
			Used:        used,
			Remaining:   remaining,
			Exhausted:   limit > 0 && remaining == 0,
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Provider != reports[j].Provider {
			return reports[i].Provider < reports[j].Provider
		}
		return reports[i].Kind < reports[j].Kind
	})
	return reports
}
