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

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/conduit/internal/executor"
	"github.com/tombee/conduit/internal/log"
)

// fakeExecutor records sync invocations.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeExecutor) ExecuteSync(ctx context.Context, connectionID, syncName string) (*executor.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, JobID(connectionID, syncName))
	if f.err != nil {
		return nil, f.err
	}
	return &executor.SyncResult{
		Success:   true,
		Data:      "ok",
		Timestamp: time.Now().UTC(),
	}, nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduleFiresAndRearms(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, log.New(nil))
	defer s.Destroy()

	job := s.Schedule("conn-1", "users", 20*time.Millisecond)
	require.NotNil(t, job)
	assert.Equal(t, "conn-1:users", job.ID)
	assert.True(t, job.IsActive)

	// The timer re-arms after each run.
	waitFor(t, func() bool { return exec.count() >= 2 })

	got := s.Job("conn-1", "users")
	require.NotNil(t, got)
	assert.False(t, got.LastRun.IsZero())
	require.NotNil(t, got.LastResult)
	assert.True(t, got.LastResult.Success)
}

func TestScheduleReplacesExistingJob(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, log.New(nil))
	defer s.Destroy()

	s.Schedule("conn-1", "users", time.Hour)
	replaced := s.Schedule("conn-1", "users", 10*time.Millisecond)
	require.NotNil(t, replaced)

	waitFor(t, func() bool { return exec.count() >= 1 })

	// Only one job exists for the pair.
	jobs := s.JobsForConnection("conn-1")
	require.Len(t, jobs, 1)
	assert.Equal(t, 10*time.Millisecond, jobs[0].Interval)
}

func TestCancel(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, log.New(nil))
	defer s.Destroy()

	s.Schedule("conn-1", "users", 10*time.Millisecond)
	require.True(t, s.Cancel("conn-1", "users"))
	assert.False(t, s.Cancel("conn-1", "users"))

	before := exec.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, exec.count(), "cancelled job must not fire")
	assert.Nil(t, s.Job("conn-1", "users"))
}

func TestCancelForConnection(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, log.New(nil))
	defer s.Destroy()

	s.Schedule("conn-1", "users", time.Hour)
	s.Schedule("conn-1", "channels", time.Hour)
	s.Schedule("conn-2", "users", time.Hour)

	assert.Equal(t, 2, s.CancelForConnection("conn-1"))
	assert.Empty(t, s.JobsForConnection("conn-1"))
	assert.Len(t, s.JobsForConnection("conn-2"), 1)
}

func TestExecuteNow(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, log.New(nil))
	defer s.Destroy()

	s.Schedule("conn-1", "users", time.Hour)

	result, err := s.ExecuteNow(context.Background(), "conn-1", "users")
	require.NoError(t, err)
	assert.True(t, result.Success)

	job := s.Job("conn-1", "users")
	require.NotNil(t, job)
	assert.False(t, job.LastRun.IsZero())

	// The timer is untouched; the next scheduled run stays in the future.
	assert.True(t, job.NextRun.After(time.Now().Add(30*time.Minute)))
}

func TestExecuteNowWithoutJob(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, log.New(nil))
	defer s.Destroy()

	// On-demand execution does not require a scheduled job.
	result, err := s.ExecuteNow(context.Background(), "conn-1", "users")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecuteNowPropagatesError(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("no such connection")}
	s := New(exec, log.New(nil))
	defer s.Destroy()

	_, err := s.ExecuteNow(context.Background(), "ghost", "users")
	require.Error(t, err)
}

func TestExecutorErrorKeepsTimerArmed(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("transient")}
	s := New(exec, log.New(nil))
	defer s.Destroy()

	s.Schedule("conn-1", "users", 10*time.Millisecond)
	waitFor(t, func() bool { return exec.count() >= 2 })

	job := s.Job("conn-1", "users")
	require.NotNil(t, job)
	assert.True(t, job.IsActive)
}

// gatedExecutor blocks its first run until released and tracks whether two
// runs were ever in flight at once.
type gatedExecutor struct {
	entered chan struct{}
	release chan struct{}

	mu         sync.Mutex
	calls      int
	inFlight   int
	overlapped bool
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedExecutor) ExecuteSync(ctx context.Context, connectionID, syncName string) (*executor.SyncResult, error) {
	g.mu.Lock()
	g.calls++
	g.inFlight++
	if g.inFlight > 1 {
		g.overlapped = true
	}
	first := g.calls == 1
	g.mu.Unlock()

	if first {
		close(g.entered)
		<-g.release
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return &executor.SyncResult{Success: true, Data: "ok", Timestamp: time.Now().UTC()}, nil
}

func (g *gatedExecutor) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gatedExecutor) sawOverlap() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.overlapped
}

func TestReplaceMidRunKeepsSingleTimerChain(t *testing.T) {
	exec := newGatedExecutor()
	s := New(exec, log.New(nil))
	defer s.Destroy()

	s.Schedule("conn-1", "users", 10*time.Millisecond)
	<-exec.entered

	// Replace the job while its first run is still in flight; the stale
	// run must not re-arm on top of the replacement's timer.
	require.NotNil(t, s.Schedule("conn-1", "users", 50*time.Millisecond))
	close(exec.release)

	time.Sleep(300 * time.Millisecond)
	s.Destroy()

	assert.False(t, exec.sawOverlap(), "two runs of the same job were in flight")
	// A single 50ms chain fits at most six runs in the window (plus the
	// released stale run); a leaked second chain roughly doubles that.
	assert.LessOrEqual(t, exec.count(), 8)
}

func TestReplaceMidRunDropsStaleResult(t *testing.T) {
	exec := newGatedExecutor()
	s := New(exec, log.New(nil))
	defer s.Destroy()

	s.Schedule("conn-1", "users", 10*time.Millisecond)
	<-exec.entered

	require.NotNil(t, s.Schedule("conn-1", "users", time.Hour))
	close(exec.release)

	// The stale run finishes against the replaced entry; the fresh job's
	// history stays untouched.
	time.Sleep(50 * time.Millisecond)
	job := s.Job("conn-1", "users")
	require.NotNil(t, job)
	assert.True(t, job.LastRun.IsZero())
	assert.Nil(t, job.LastResult)
}

func TestJobsSorted(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, log.New(nil))
	defer s.Destroy()

	s.Schedule("b", "users", time.Hour)
	s.Schedule("a", "users", time.Hour)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a:users", jobs[0].ID)
	assert.Equal(t, "b:users", jobs[1].ID)
}

func TestDestroy(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, log.New(nil))

	s.Schedule("conn-1", "users", 10*time.Millisecond)
	s.Destroy()
	s.Destroy() // idempotent

	assert.Empty(t, s.Jobs())
	assert.Nil(t, s.Schedule("conn-1", "users", time.Hour))

	before := exec.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, exec.count())
}
