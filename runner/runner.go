// Package runner implements the Consumer Runner / Supervisor (C10)
// and its graceful-drain counterpart (C11): one goroutine per (queue x
// chain) task, restarted with capped exponential backoff on failure,
// all stopped by a shared shutdown broadcast channel.
package runner

import (
	"context"
	"math/rand"
	"sync"
	"time"

	ilog "github.com/omniwallet/chain-indexer/internal/log"
)

var logger = ilog.NewModuleLogger(ilog.Runner)

// maxBackoff caps the supervisor's restart delay at 30s (§4.6).
const maxBackoff = 30 * time.Second

const baseBackoff = 500 * time.Millisecond

// drainTimeout bounds how long shutdown waits for an in-flight task to
// finish its current message (§5: "bounded by a drain timeout of 30s").
const drainTimeout = 30 * time.Second

// Task is one long-running unit the supervisor keeps alive: a Block
// Parser instance or one (queue x chain) consumer loop.
type Task struct {
	Name string
	Run  func(ctx context.Context, shutdown <-chan struct{}) error
}

// Supervisor restarts every registered Task with exponential backoff
// on failure until shutdown is closed, then waits (bounded by
// drainTimeout) for all tasks to return.
type Supervisor struct {
	tasks    []Task
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	status map[string]string
}

func New() *Supervisor {
	return &Supervisor{shutdown: make(chan struct{}), status: map[string]string{}}
}

// Add registers t; it only takes effect for tasks added before Start.
func (s *Supervisor) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// Start launches one goroutine per registered task.
func (s *Supervisor) Start(ctx context.Context) {
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.supervise(ctx, t)
	}
}

func (s *Supervisor) supervise(ctx context.Context, t Task) {
	defer s.wg.Done()
	attempt := 0
	for {
		select {
		case <-s.shutdown:
			s.setStatus(t.Name, "stopped")
			return
		default:
		}

		s.setStatus(t.Name, "running")
		err := s.runOnce(ctx, t)
		if err == nil {
			s.setStatus(t.Name, "stopped")
			return
		}

		attempt++
		s.setStatus(t.Name, "restarting")
		logger.Error("task failed, restarting", "task", t.Name, "attempt", attempt, "err", err)

		select {
		case <-s.shutdown:
			return
		case <-time.After(backoff(attempt)):
		}
	}
}

// runOnce recovers a panic from t.Run so one misbehaving task never
// takes the supervisor goroutine down with it.
func (s *Supervisor) runOnce(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "task", t.Name, "recover", r)
			err = errPanic{t.Name}
		}
	}()
	return t.Run(ctx, s.shutdown)
}

type errPanic struct{ task string }

func (e errPanic) Error() string { return "runner: task " + e.task + " panicked" }

func backoff(attempt int) time.Duration {
	d := baseBackoff * time.Duration(1<<uint(attempt))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d/2 + jitter
}

// Shutdown closes the shutdown channel (idempotent) and waits up to
// drainTimeout for every task to return (§4.6, §5's C11 graceful
// drain).
func (s *Supervisor) Shutdown() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		logger.Warn("shutdown: drain timeout exceeded, exiting anyway")
	}
}

// Status returns a snapshot of every task's last reported state, for
// the /status HTTP endpoint.
func (s *Supervisor) Status() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

func (s *Supervisor) setStatus(name, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[name] = state
}
