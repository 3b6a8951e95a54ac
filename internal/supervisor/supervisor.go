package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"connectivity/internal/constants"
	"connectivity/internal/logger"
	apperrors "connectivity/pkg/errors"
	"connectivity/pkg/metrics"
)

var (
	// ErrUnexpectedExit marks a task that returned nil while the process
	// was still meant to be running.
	ErrUnexpectedExit = errors.New("task exited unexpectedly")
	ErrGraceExceeded  = errors.New("tasks did not stop within shutdown grace")
)

// ExitError is the first abnormal task exit, which brings the process down.
type ExitError struct {
	Task string
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor runs long-lived tasks together. The first task to exit, for
// any reason, stops all of them.
type Supervisor struct {
	tasks  []Task
	grace  time.Duration
	logger logger.Logger

	mu    sync.Mutex
	first error
}

func New(grace time.Duration, log logger.Logger) *Supervisor {
	if grace <= 0 {
		grace = constants.DefaultShutdownGrace
	}
	return &Supervisor{
		grace:  grace,
		logger: log.Named("supervisor"),
	}
}

func (s *Supervisor) Add(name string, run func(ctx context.Context) error) {
	s.tasks = append(s.tasks, Task{Name: name, Run: run})
}

// Run blocks until every task has returned or the shutdown grace period
// has passed. It returns nil when ctx ended the run and every task stopped
// in time, and the first abnormal exit otherwise.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.tasks) == 0 {
		return errors.New("supervisor has no tasks")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		task := task
		g.Go(func() error {
			return s.runTask(ctx, gctx, task)
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return s.firstExit()
	case <-gctx.Done():
	}

	s.logger.InfowCtx(ctx, "Shutting down tasks", "grace", s.grace)

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-done:
		return s.firstExit()
	case <-timer.C:
		s.logger.ErrorwCtx(ctx, "Tasks still running after shutdown grace", "grace", s.grace)
		if err := s.firstExit(); err != nil {
			return err
		}
		return ErrGraceExceeded
	}
}

func (s *Supervisor) runTask(parent, ctx context.Context, task Task) error {
	s.logger.InfowCtx(ctx, "Task started", "task", task.Name)

	err := s.call(ctx, task)
	if parent.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		metrics.IncTaskExit(task.Name, "shutdown")
		s.logger.InfowCtx(ctx, "Task stopped", "task", task.Name)
		return nil
	}

	exit := &ExitError{Task: task.Name, Err: err}
	reason := "error"
	if err == nil {
		exit.Err = ErrUnexpectedExit
		reason = "unexpected"
	}
	metrics.IncTaskExit(task.Name, reason)

	if s.record(exit) {
		s.logger.ErrorwCtx(ctx, "Task exited, stopping all tasks",
			"task", task.Name,
			"error", exit.Err,
		)
	} else {
		s.logger.InfowCtx(ctx, "Task stopped", "task", task.Name, "error", exit.Err)
	}
	return exit
}

func (s *Supervisor) call(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
		}
	}()
	return task.Run(ctx)
}

// record keeps exit if it is the first abnormal one.
func (s *Supervisor) record(exit error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.first != nil {
		return false
	}
	s.first = exit
	return true
}

func (s *Supervisor) firstExit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.first
}
