package task

import (
	"sync"
	"time"
)

// Forever marks a task that never runs out of iterations.
const Forever int64 = -1

// Scheduler is a cooperative runner: tasks only fire from Execute, one after the other,
// on the goroutine that calls it. Enable and Disable may be called from any goroutine.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	tasks    []*Task
	observer func(name string)
}

func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// SetObserver registers a hook called before every callback fires.
func (s *Scheduler) SetObserver(observer func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = observer
}

// NewTask schedules a disabled task; it fires every interval once enabled, at most
// iterations times.
func (s *Scheduler) NewTask(name string, interval time.Duration, iterations int64, callback func()) *Task {
	t := &Task{
		name:       name,
		scheduler:  s,
		interval:   interval,
		iterations: iterations,
		remaining:  iterations,
		callback:   callback,
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t
}

// Execute fires every task that is due and returns how many callbacks ran.
func (s *Scheduler) Execute() int {
	now := s.clock.Now()
	s.mu.Lock()
	due := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.enabled && !now.Before(t.nextRun) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	fired := 0
	for _, t := range due {
		if t.run(now) {
			fired++
		}
	}
	return fired
}

// NextDue returns the earliest time an enabled task wants to fire.
func (s *Scheduler) NextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next time.Time
	found := false
	for _, t := range s.tasks {
		if !t.enabled {
			continue
		}
		if !found || t.nextRun.Before(next) {
			next = t.nextRun
			found = true
		}
	}
	return next, found
}

// DisableAll stops every task, used right before the radio goes down.
func (s *Scheduler) DisableAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		t.enabled = false
		t.generation++
	}
}

// Task is one periodic callback with an optional iteration bound.
type Task struct {
	name       string
	scheduler  *Scheduler
	interval   time.Duration
	iterations int64
	remaining  int64
	runCounter int64
	callback   func()
	enabled    bool
	nextRun    time.Time
	generation uint64
}

func (t *Task) Name() string {
	return t.name
}

// Enable arms the task to fire on the next Execute, restoring its iteration budget.
func (t *Task) Enable() {
	t.EnableDelayed(0)
}

// EnableDelayed arms the task to fire for the first time once delay has elapsed,
// regardless of its interval.
func (t *Task) EnableDelayed(delay time.Duration) {
	s := t.scheduler
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	t.enabled = true
	t.remaining = t.iterations
	t.runCounter = 0
	t.nextRun = now.Add(delay)
	t.generation++
}

// Disable is immediate and idempotent.
func (t *Task) Disable() {
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.enabled {
		return
	}
	t.enabled = false
	t.generation++
}

func (t *Task) IsEnabled() bool {
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.enabled
}

// IsLastIteration is true inside the callback of the final permitted firing.
func (t *Task) IsLastIteration() bool {
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.remaining == 0
}

func (t *Task) SetIterations(iterations int64) {
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	t.iterations = iterations
	t.remaining = iterations
}

// SetInterval takes effect from the next firing.
func (t *Task) SetInterval(interval time.Duration) {
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	t.interval = interval
}

func (t *Task) Interval() time.Duration {
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.interval
}

func (t *Task) RunCounter() int64 {
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.runCounter
}

func (t *Task) run(now time.Time) bool {
	s := t.scheduler
	s.mu.Lock()
	if !t.enabled || now.Before(t.nextRun) {
		s.mu.Unlock()
		return false
	}
	if t.remaining == 0 {
		t.enabled = false
		s.mu.Unlock()
		return false
	}
	if t.remaining > 0 {
		t.remaining--
	}
	t.runCounter++
	generation := t.generation
	scheduled := t.nextRun
	callback := t.callback
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer(t.name)
	}
	callback()

	s.mu.Lock()
	defer s.mu.Unlock()
	// the callback re-armed or disabled the task itself
	if t.generation != generation || !t.enabled {
		return true
	}
	if t.remaining == 0 {
		t.enabled = false
		return true
	}
	next := scheduled.Add(t.interval)
	if !next.After(now) {
		next = now.Add(t.interval)
	}
	t.nextRun = next
	return true
}
