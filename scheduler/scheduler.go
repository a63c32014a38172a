// Package scheduler runs named periodic and one-shot background tasks.
// It carries operational reporting only; state reconciliation is driven
// by reachability transitions, never by timers.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is a scheduled task body.
type TaskFn func()

// Scheduler owns a set of named tickers and delayed one-shots. Names are
// unique per kind; registering an existing name replaces the old task.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]chan struct{}
	timers  map[string]*time.Timer
	logger  *zap.Logger
	done    chan struct{}
}

// New creates an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickers: map[string]chan struct{}{},
		timers:  map[string]*time.Timer{},
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// AddTicker runs fn every interval until the task is removed or the
// scheduler stops. A panicking run is logged and the ticker keeps going.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop, ok := s.tickers[name]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.tickers[name] = stop

	go func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				s.run(name, fn)
			case <-stop:
				return
			case <-s.done:
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered",
		zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay. Re-registering the name cancels the
// earlier pending run.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
	s.timers[name] = time.AfterFunc(delay, func() {
		defer func() {
			s.mu.Lock()
			delete(s.timers, name)
			s.mu.Unlock()
		}()
		s.run(name, fn)
	})
}

func (s *Scheduler) run(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name), zap.Any("recover", r))
		}
	}()
	fn()
}

// Remove cancels the named ticker or pending delay, if any.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.tickers[name]; ok {
		close(stop)
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Stop cancels every task. Safe to call more than once.
func (s *Scheduler) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// ListTickers returns the names of the registered ticker tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	return names
}
