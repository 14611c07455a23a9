package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/craft-console/backend/internal/model"
)

// fakeRecorder captures run history calls in memory.
type fakeRecorder struct {
	mu       sync.Mutex
	started  []*model.Run
	finished map[string]model.RunStatus
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{finished: make(map[string]model.RunStatus)}
}

func (f *fakeRecorder) Create(ctx context.Context, run *model.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, run)
	return nil
}

func (f *fakeRecorder) Finish(ctx context.Context, id string, status model.RunStatus, exitCode *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[id] = status
	return nil
}

func (f *fakeRecorder) finishedStatus(id string) (model.RunStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.finished[id]
	return status, ok
}

func newTestSupervisor(t *testing.T, cfg Config) *Supervisor {
	t.Helper()
	if cfg.StopTimeout == 0 {
		// Keep force-kill fallbacks fast in tests
		cfg.StopTimeout = 200 * time.Millisecond
	}
	return New(cfg, nil, nil, zap.NewNop().Sugar())
}

// drain consumes the outbound channel so emit never blocks, returning a
// function that fetches received lines.
func drain(s *Supervisor) func() []model.LogLine {
	var mu sync.Mutex
	var lines []model.LogLine
	go func() {
		for line := range s.Lines() {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		}
	}()
	return func() []model.LogLine {
		mu.Lock()
		defer mu.Unlock()
		return append([]model.LogLine(nil), lines...)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartStopIdempotence(t *testing.T) {
	s := newTestSupervisor(t, Config{Command: "cat"})
	drain(s)

	ctx := context.Background()

	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("expected running after start")
	}

	// Starting a running server is a no-op success
	if err := s.Start(ctx, nil); err != nil {
		t.Errorf("second start should be a no-op, got %v", err)
	}
	if s.State() != StateRunning {
		t.Errorf("expected running state, got %s", s.State())
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("expected stopped after stop")
	}

	// Stopping a stopped server is a no-op success
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
}

func TestSendCommandNotRunning(t *testing.T) {
	s := newTestSupervisor(t, Config{Command: "cat"})

	err := s.SendCommand("list")
	if !errors.Is(err, model.ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestSendCommandReachesStdin(t *testing.T) {
	// cat echoes its stdin, so a delivered command comes back as a stdout line
	s := newTestSupervisor(t, Config{Command: "cat"})
	received := drain(s)

	ctx := context.Background()
	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop(ctx)

	if err := s.SendCommand("foo"); err != nil {
		t.Fatalf("send command failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, line := range received() {
			if line.Source == model.SourceStdout && line.Text == "foo" {
				return true
			}
		}
		return false
	}, "command bytes never surfaced on stdout")
}

func TestStartSpawnError(t *testing.T) {
	s := newTestSupervisor(t, Config{Command: "/nonexistent/game-server"})

	err := s.Start(context.Background(), nil)

	var spawnErr *model.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("expected stopped state after failed spawn, got %s", s.State())
	}
	if s.IsRunning() {
		t.Error("expected not running after failed spawn")
	}
}

func TestStartWithoutCommand(t *testing.T) {
	s := newTestSupervisor(t, Config{})

	if err := s.Start(context.Background(), nil); !errors.Is(err, model.ErrCommandRequired) {
		t.Errorf("expected ErrCommandRequired, got %v", err)
	}
}

func TestStderrLinesAreTagged(t *testing.T) {
	s := newTestSupervisor(t, Config{
		Command: "sh",
		Args:    []string{"-c", "echo started; echo broken 1>&2; cat"},
	})
	received := drain(s)

	ctx := context.Background()
	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop(ctx)

	waitFor(t, 2*time.Second, func() bool {
		var sawOut, sawErr bool
		for _, line := range received() {
			if line.Source == model.SourceStdout && line.Text == "started" {
				sawOut = true
			}
			if line.Source == model.SourceStderr && line.Text == "broken" {
				sawErr = true
			}
		}
		return sawOut && sawErr
	}, "did not observe tagged stdout and stderr lines")
}

func TestGracefulStop(t *testing.T) {
	// The script exits as soon as it reads the stop command, exercising the
	// graceful path without hitting the kill fallback.
	s := newTestSupervisor(t, Config{
		Command:     "sh",
		Args:        []string{"-c", "read line; exit 0"},
		StopTimeout: 5 * time.Second,
	})
	drain(s)

	ctx := context.Background()
	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Stop(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stop failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("graceful stop did not complete")
	}

	if s.IsRunning() {
		t.Error("expected stopped after graceful stop")
	}
}

func TestStopKillFallback(t *testing.T) {
	// cat ignores the stop command, forcing the timeout + kill path
	s := newTestSupervisor(t, Config{Command: "cat", StopTimeout: 100 * time.Millisecond})
	drain(s)

	ctx := context.Background()
	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("expected stopped state, got %s", s.State())
	}
}

func TestNaturalExitResetsState(t *testing.T) {
	s := newTestSupervisor(t, Config{Command: "sh", Args: []string{"-c", "echo bye"}})
	drain(s)

	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return s.State() == StateStopped
	}, "state never reset after natural exit")

	// A fresh start works after an unsolicited exit
	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return s.State() == StateStopped
	}, "state never reset after second natural exit")
}

func TestRunHistoryRecorded(t *testing.T) {
	recorder := newFakeRecorder()
	s := New(Config{
		Command:     "sh",
		Args:        []string{"-c", "exit 0"},
		StopTimeout: 200 * time.Millisecond,
	}, nil, recorder, zap.NewNop().Sugar())
	drain(s)

	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	recorder.mu.Lock()
	if len(recorder.started) != 1 {
		recorder.mu.Unlock()
		t.Fatalf("expected 1 recorded start, got %d", len(recorder.started))
	}
	run := recorder.started[0]
	recorder.mu.Unlock()

	if run.Command != "sh" {
		t.Errorf("expected recorded command sh, got %q", run.Command)
	}
	if run.PID == nil {
		t.Error("expected recorded pid")
	}

	waitFor(t, 2*time.Second, func() bool {
		status, ok := recorder.finishedStatus(run.ID)
		return ok && status == model.RunStatusExited
	}, "run exit never recorded")
}

func TestStartOverride(t *testing.T) {
	recorder := newFakeRecorder()
	s := New(Config{Command: "/nonexistent/game-server", StopTimeout: 200 * time.Millisecond},
		nil, recorder, zap.NewNop().Sugar())
	drain(s)

	ctx := context.Background()
	err := s.Start(ctx, &StartOverride{Command: "cat"})
	if err != nil {
		t.Fatalf("start with override failed: %v", err)
	}
	defer s.Stop(ctx)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.started) != 1 || recorder.started[0].Command != "cat" {
		t.Errorf("expected override command to be recorded, got %+v", recorder.started)
	}
}
