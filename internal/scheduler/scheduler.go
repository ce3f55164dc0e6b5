// Package scheduler runs reconciliation tasks side by side.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Task is the part of task.Task the scheduler drives.
type Task interface {
	Name() string
	Run(ctx context.Context) error
	Cycle(ctx context.Context) error
	Healthy() error
}

// Scheduler owns a fixed set of tasks.
type Scheduler struct {
	tasks []Task
	log   logr.Logger
}

// New returns a scheduler for tasks.
func New(log logr.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks, log: log}
}

// Run starts every task in its own goroutine and blocks until all of them
// have returned. A task that stops on its own does not affect the others.
// The returned error joins the errors of tasks that stopped on their own.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.tasks) == 0 {
		return fmt.Errorf("scheduler: no tasks configured")
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, t := range s.tasks {
		g.Go(func() error {
			if err := t.Run(ctx); err != nil {
				s.log.Error(err, "task stopped", "task", t.Name())
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	s.log.Info("started tasks", "count", len(s.tasks))
	_ = g.Wait()
	s.log.Info("all tasks stopped")
	return errors.Join(errs...)
}

// Once runs a single cycle of every task concurrently.
func (s *Scheduler) Once(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, t := range s.tasks {
		g.Go(func() error {
			if err := t.Cycle(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Check is a healthz.Checker that fails once any task has stopped.
func (s *Scheduler) Check(_ *http.Request) error {
	var errs []error
	for _, t := range s.tasks {
		if err := t.Healthy(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
