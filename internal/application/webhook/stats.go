package webhook

import (
	stdsync "sync"
	"time"

	"github.com/storefront/backend/internal/domain/shared"
)

// Counters is a success/failure tally
type Counters struct {
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

// StatsSnapshot is the read-only view of the call counters
type StatsSnapshot struct {
	Today Counters `json:"today"`
	Month Counters `json:"month"`
}

// CallStats tracks today's and this month's call tallies, one instance per
// surface (inbound webhooks, outbound API requests). Rollover
// is an explicit clock check performed on every record and snapshot, not a
// side effect hidden in reads.
type CallStats struct {
	mu    stdsync.Mutex
	clock shared.Clock

	dayStart   time.Time // midnight of the day the Today tally covers
	monthStart time.Time // first of the month the Month tally covers
	todayTally Counters
	monthTally Counters
}

// NewCallStats creates call stats on the given clock
func NewCallStats(clock shared.Clock) *CallStats {
	if clock == nil {
		clock = shared.SystemClock
	}
	s := &CallStats{clock: clock}
	now := clock()
	s.dayStart = startOfDay(now)
	s.monthStart = startOfMonth(now)
	return s
}

// Record tallies one call
func (s *CallStats) Record(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(s.clock())
	if success {
		s.todayTally.Success++
		s.monthTally.Success++
	} else {
		s.todayTally.Failure++
		s.monthTally.Failure++
	}
}

// Snapshot returns the current tallies
func (s *CallStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(s.clock())
	return StatsSnapshot{Today: s.todayTally, Month: s.monthTally}
}

// rollover resets tallies whose period has passed. Caller holds the lock.
func (s *CallStats) rollover(now time.Time) {
	if day := startOfDay(now); !day.Equal(s.dayStart) {
		s.dayStart = day
		s.todayTally = Counters{}
	}
	if month := startOfMonth(now); !month.Equal(s.monthStart) {
		s.monthStart = month
		s.monthTally = Counters{}
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
