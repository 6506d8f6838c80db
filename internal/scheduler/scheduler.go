// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler arms one timer per active sync and re-arms it after each
// run. Jobs are keyed by connection and sync name; replacing a job cancels
// the old timer before the new one is armed.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tombee/conduit/internal/executor"
	"github.com/tombee/conduit/internal/log"
)

// SyncExecutor runs one sync; satisfied by the execution core.
type SyncExecutor interface {
	ExecuteSync(ctx context.Context, connectionID, syncName string) (*executor.SyncResult, error)
}

// Job is the scheduling state for one connection/sync pair.
type Job struct {
	// ID is "<connectionID>:<syncName>".
	ID string `json:"id"`

	ConnectionID string `json:"connectionId"`
	SyncName     string `json:"syncName"`

	// Interval between runs.
	Interval time.Duration `json:"interval"`

	// NextRun is when the armed timer fires.
	NextRun time.Time `json:"nextRun"`

	// IsActive is false once the job is cancelled; a fired timer for an
	// inactive job does not run or re-arm.
	IsActive bool `json:"isActive"`

	// LastRun and LastResult reflect the most recent completed run.
	LastRun    time.Time            `json:"lastRun,omitempty"`
	LastResult *executor.SyncResult `json:"lastResult,omitempty"`
}

// JobID derives the scheduler key for a connection's sync.
func JobID(connectionID, syncName string) string {
	return connectionID + ":" + syncName
}

type entry struct {
	job   *Job
	timer *time.Timer
}

// Scheduler owns the timer per active sync.
type Scheduler struct {
	executor SyncExecutor
	logger   *slog.Logger

	mu        sync.Mutex
	jobs      map[string]*entry
	destroyed bool
}

// New creates a scheduler that runs syncs through the given executor.
func New(exec SyncExecutor, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		executor: exec,
		logger:   log.WithComponent(logger, "scheduler"),
		jobs:     make(map[string]*entry),
	}
}

// Schedule arms (or replaces) the job for a connection's sync. Replacing an
// existing job cancels its timer first; the new job starts a fresh interval
// and does not inherit the old run history.
func (s *Scheduler) Schedule(connectionID, syncName string, interval time.Duration) *Job {
	id := JobID(connectionID, syncName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil
	}

	if old, exists := s.jobs[id]; exists {
		old.timer.Stop()
		old.job.IsActive = false
	}

	job := &Job{
		ID:           id,
		ConnectionID: connectionID,
		SyncName:     syncName,
		Interval:     interval,
		NextRun:      time.Now().Add(interval),
		IsActive:     true,
	}
	e := &entry{job: job}
	e.timer = time.AfterFunc(interval, func() { s.fire(id) })
	s.jobs[id] = e

	s.logger.Info("sync scheduled",
		log.JobKey, id,
		"interval", interval.String(),
	)
	return snapshot(job)
}

// Cancel stops the job for a connection's sync. Returns false if no such job
// exists.
func (s *Scheduler) Cancel(connectionID, syncName string) bool {
	id := JobID(connectionID, syncName)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[id]
	if !exists {
		return false
	}

	e.timer.Stop()
	e.job.IsActive = false
	delete(s.jobs, id)

	s.logger.Info("sync cancelled", log.JobKey, id)
	return true
}

// CancelForConnection stops every job belonging to the connection.
func (s *Scheduler) CancelForConnection(connectionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for id, e := range s.jobs {
		if e.job.ConnectionID == connectionID {
			e.timer.Stop()
			e.job.IsActive = false
			delete(s.jobs, id)
			cancelled++
		}
	}
	return cancelled
}

// ExecuteNow runs the job immediately without disturbing its timer. The run
// updates the job's history exactly like a timer-fired run.
func (s *Scheduler) ExecuteNow(ctx context.Context, connectionID, syncName string) (*executor.SyncResult, error) {
	result, err := s.executor.ExecuteSync(ctx, connectionID, syncName)
	if err != nil {
		return nil, err
	}

	id := JobID(connectionID, syncName)
	s.mu.Lock()
	if e, exists := s.jobs[id]; exists {
		e.job.LastRun = result.Timestamp
		e.job.LastResult = result
	}
	s.mu.Unlock()

	return result, nil
}

// fire runs one scheduled sync and re-arms the timer. The job may have been
// cancelled or replaced between the timer firing and the lock being taken;
// in that case the run is skipped.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, exists := s.jobs[id]
	if !exists || !e.job.IsActive || s.destroyed {
		s.mu.Unlock()
		return
	}
	connectionID := e.job.ConnectionID
	syncName := e.job.SyncName
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled sync panicked", "panic", r, log.JobKey, id)
			s.rearm(id, e)
		}
	}()

	result, err := s.executor.ExecuteSync(context.Background(), connectionID, syncName)

	s.mu.Lock()
	// Only record against the entry this run started from; a replacement
	// job armed mid-run keeps its own history and timer.
	if cur, exists := s.jobs[id]; exists && cur == e && e.job.IsActive {
		if err != nil {
			// Connection or sync vanished mid-flight; the engine will
			// cancel the job, until then keep the timer armed.
			s.logger.Error("scheduled sync failed", log.Error(err), log.JobKey, id)
		} else {
			e.job.LastRun = result.Timestamp
			e.job.LastResult = result
		}
	}
	s.mu.Unlock()

	s.rearm(id, e)
}

// rearm schedules the next run for a still-active job. The run's entry must
// still be the registered one; a replaced entry's run does not re-arm, its
// replacement already carries a live timer.
func (s *Scheduler) rearm(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.jobs[id]
	if !exists || cur != e || !e.job.IsActive || s.destroyed {
		return
	}

	e.job.NextRun = time.Now().Add(e.job.Interval)
	e.timer = time.AfterFunc(e.job.Interval, func() { s.fire(id) })
}

// Job returns a snapshot of one job, or nil.
func (s *Scheduler) Job(connectionID, syncName string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[JobID(connectionID, syncName)]
	if !exists {
		return nil
	}
	return snapshot(e.job)
}

// Jobs returns snapshots of all jobs sorted by ID.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, snapshot(e.job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// JobsForConnection returns snapshots of the connection's jobs sorted by ID.
func (s *Scheduler) JobsForConnection(connectionID string) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, e := range s.jobs {
		if e.job.ConnectionID == connectionID {
			out = append(out, snapshot(e.job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Destroy cancels every job and refuses further scheduling. Idempotent.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.destroyed = true

	for id, e := range s.jobs {
		e.timer.Stop()
		e.job.IsActive = false
		delete(s.jobs, id)
	}
	s.logger.Info("scheduler destroyed")
}

func snapshot(j *Job) *Job {
	copied := *j
	return &copied
}
