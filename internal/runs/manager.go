package runs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trigger says what started a sync run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// DefaultMaxRuns bounds the in-memory history.
const DefaultMaxRuns = 500

// Run is one recorded sync attempt.
type Run struct {
	ID         string     `json:"id"`
	Trigger    Trigger    `json:"trigger"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Finished reports whether the run has a final status.
func (r Run) Finished() bool {
	return r.Status == StatusDone || r.Status == StatusError
}

// Manager keeps recent sync runs in memory and fans updates out to
// subscribers.
type Manager struct {
	mu          sync.RWMutex
	runs        map[string]*Run
	subscribers map[chan Run]struct{}
	maxRuns     int
	logger      *zap.Logger
	now         func() time.Time
}

// NewManager returns a manager keeping at most maxRuns finished runs.
func NewManager(maxRuns int, logger *zap.Logger) *Manager {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		runs:        make(map[string]*Run),
		subscribers: make(map[chan Run]struct{}),
		maxRuns:     maxRuns,
		logger:      logger.Named("runs"),
		now:         time.Now,
	}
}

// Start records a new running sync.
func (m *Manager) Start(trigger Trigger) Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	started := m.now().UTC()
	run := &Run{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Status:    StatusRunning,
		StartedAt: &started,
	}
	m.runs[run.ID] = run
	m.broadcast(*run)
	return *run
}

// Finish closes a run with the outcome of the sync. Unknown IDs return false.
func (m *Manager) Finish(id string, runErr error) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}

	finished := m.now().UTC()
	run.FinishedAt = &finished
	if runErr != nil {
		run.Status = StatusError
		run.Error = runErr.Error()
	} else {
		run.Status = StatusDone
	}
	m.broadcast(*run)
	m.prune()
	return *run, true
}

// Track runs fn as a recorded sync and returns its error.
func (m *Manager) Track(ctx context.Context, trigger Trigger, fn func(context.Context) error) (Run, error) {
	run := m.Start(trigger)
	err := fn(ctx)
	finished, _ := m.Finish(run.ID, err)
	return finished, err
}

// Get returns the run with id.
func (m *Manager) Get(id string) (Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// List returns up to limit runs, newest first. limit <= 0 means all.
func (m *Manager) List(limit int) []Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, *run)
	}
	sortNewestFirst(out)

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Subscribe returns a channel of run updates and a cancel func that
// closes it.
func (m *Manager) Subscribe() (<-chan Run, func()) {
	ch := make(chan Run, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// broadcast must be called with mu held.
func (m *Manager) broadcast(run Run) {
	for ch := range m.subscribers {
		select {
		case ch <- run:
		default:
			m.logger.Debug("dropping run update for slow subscriber", zap.String("run_id", run.ID))
		}
	}
}

// prune drops the oldest finished runs above maxRuns. Must be called with
// mu held.
func (m *Manager) prune() {
	excess := len(m.runs) - m.maxRuns
	if excess <= 0 {
		return
	}

	finished := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		if run.Finished() {
			finished = append(finished, *run)
		}
	}
	sortNewestFirst(finished)

	for i := len(finished) - 1; i >= 0 && excess > 0; i-- {
		delete(m.runs, finished[i].ID)
		excess--
	}
}

func sortNewestFirst(runs []Run) {
	sort.Slice(runs, func(i, j int) bool {
		a, b := runs[i].StartedAt, runs[j].StartedAt
		if a == nil || b == nil || a.Equal(*b) {
			return runs[i].ID > runs[j].ID
		}
		return a.After(*b)
	})
}
