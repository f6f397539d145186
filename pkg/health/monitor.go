package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/Nyukimin/toolrouter/pkg/logger"
)

// Result is the last outcome of one check.
type Result struct {
	OK        bool      `json:"ok"`
	Detail    string    `json:"detail"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor runs named checks on demand or on a cron schedule and keeps the
// latest result of each.
type Monitor struct {
	mu      sync.RWMutex
	names   []string
	checks  map[string]CheckFunc
	results map[string]Result
	timeout time.Duration
}

// NewMonitor creates a monitor. Each check run is bounded by timeout.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		checks:  make(map[string]CheckFunc),
		results: make(map[string]Result),
		timeout: timeout,
	}
}

// Add registers a check, replacing any check with the same name.
func (m *Monitor) Add(name string, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checks[name]; !ok {
		m.names = append(m.names, name)
	}
	m.checks[name] = fn
}

// RunAll runs every check concurrently and stores the results.
func (m *Monitor) RunAll(ctx context.Context) map[string]Result {
	m.mu.RLock()
	checks := make(map[string]CheckFunc, len(m.checks))
	for k, v := range m.checks {
		checks[k] = v
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	out := make(map[string]Result, len(checks))
	for name, fn := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := m.runOne(ctx, fn)
			mu.Lock()
			out[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	m.mu.Lock()
	for k, v := range out {
		m.results[k] = v
	}
	m.mu.Unlock()

	for _, name := range sortedKeys(out) {
		if !out[name].OK {
			logger.WarnCF("health", "health.check_failed", map[string]interface{}{
				"check":  name,
				"detail": out[name].Detail,
			})
		}
	}
	return out
}

func (m *Monitor) runOne(ctx context.Context, fn CheckFunc) (res Result) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res = Result{OK: false, Detail: fmt.Sprintf("check panic: %v", r), CheckedAt: time.Now()}
		}
	}()
	ok, detail := fn(ctx)
	return Result{OK: ok, Detail: detail, CheckedAt: time.Now()}
}

// Snapshot returns the latest results. Checks that never ran are absent.
func (m *Monitor) Snapshot() map[string]Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Result, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}
	return out
}

// Names lists checks in registration order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.names...)
}

// Healthy reports whether every recorded result is ok.
func (m *Monitor) Healthy() bool {
	for _, r := range m.Snapshot() {
		if !r.OK {
			return false
		}
	}
	return true
}

// Start runs all checks once, then on every tick of the cron expression until
// ctx is done. It returns an error only for an invalid expression.
func (m *Monitor) Start(ctx context.Context, schedule string) error {
	gron := gronx.New()
	if !gron.IsValid(schedule) {
		return fmt.Errorf("invalid health schedule %q", schedule)
	}

	m.RunAll(ctx)
	go func() {
		for {
			next, err := gronx.NextTickAfter(schedule, time.Now(), false)
			if err != nil {
				logger.ErrorCF("health", "health.schedule_failed", map[string]interface{}{
					"schedule": schedule,
					"error":    err.Error(),
				})
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				m.RunAll(ctx)
			}
		}
	}()

	logger.InfoCF("health", "health.scheduled", map[string]interface{}{
		"schedule": schedule,
		"checks":   len(m.Names()),
	})
	return nil
}

func sortedKeys(m map[string]Result) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
