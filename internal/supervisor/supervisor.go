// Package supervisor owns the game server subprocess lifecycle. It spawns the
// process with piped stdio, splits stdout/stderr into console lines, forwards
// them to a single outbound channel, and injects commands into stdin.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craft-console/backend/internal/console"
	"github.com/craft-console/backend/internal/model"
)

const (
	// DefaultStopCommand is written to the server's stdin to request a
	// graceful shutdown. "stop" is the console convention for Minecraft-style
	// servers.
	DefaultStopCommand = "stop"

	// DefaultStopTimeout bounds how long Stop waits for a graceful exit
	// before force-killing the process.
	DefaultStopTimeout = 30 * time.Second

	// lineBacklog is the capacity of the outbound line channel. The hub
	// drains it continuously; the buffer only absorbs bursts.
	lineBacklog = 1024
)

// State is the lifecycle state of the supervised process.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds the process configuration for the supervised server.
type Config struct {
	// Command is the server executable.
	Command string

	// Args are passed to the executable.
	Args []string

	// Workdir is the working directory for the process.
	Workdir string

	// StopCommand is written to stdin on Stop. Defaults to DefaultStopCommand.
	StopCommand string

	// StopTimeout bounds the graceful-stop wait. Defaults to DefaultStopTimeout.
	StopTimeout time.Duration
}

// StartOverride optionally overrides the configured command and working
// directory for a single run.
type StartOverride struct {
	Command string
	Workdir string
}

// RunRecorder persists run history. The supervisor tolerates a nil recorder.
type RunRecorder interface {
	Create(ctx context.Context, run *model.Run) error
	Finish(ctx context.Context, id string, status model.RunStatus, exitCode *int) error
}

// handle wraps one live subprocess. There is never more than one.
type handle struct {
	runID string
	cmd   *exec.Cmd
	stdin io.WriteCloser

	// done is closed by reap once Wait has returned.
	done     chan struct{}
	exitCode int
	waitErr  error
}

// Supervisor manages zero or one game server process.
type Supervisor struct {
	log        *zap.SugaredLogger
	cfg        Config
	recorder   RunRecorder
	scrollback *console.Buffer

	lines chan model.LogLine

	mu     sync.Mutex
	state  State
	handle *handle
}

// New creates a Supervisor. scrollback and recorder may be nil.
func New(cfg Config, scrollback *console.Buffer, recorder RunRecorder, log *zap.SugaredLogger) *Supervisor {
	if cfg.StopCommand == "" {
		cfg.StopCommand = DefaultStopCommand
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Supervisor{
		log:        log,
		cfg:        cfg,
		recorder:   recorder,
		scrollback: scrollback,
		lines:      make(chan model.LogLine, lineBacklog),
	}
}

// Lines returns the outbound channel of captured console lines. It is drained
// by a single consumer (the broadcast hub).
func (s *Supervisor) Lines() <-chan model.LogLine {
	return s.lines
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether a process is alive. It is conservatively true for
// every state except stopped, so a server mid-shutdown still counts as running.
func (s *Supervisor) IsRunning() bool {
	return s.State() != StateStopped
}

// Start spawns the game server process. It is a no-op (and returns nil) if the
// server is already starting or running. A failed spawn leaves the state at
// stopped and returns a *model.SpawnError.
func (s *Supervisor) Start(ctx context.Context, override *StartOverride) error {
	command := s.cfg.Command
	workdir := s.cfg.Workdir
	if override != nil {
		if override.Command != "" {
			command = override.Command
		}
		if override.Workdir != "" {
			workdir = override.Workdir
		}
	}
	if command == "" {
		return model.ErrCommandRequired
	}

	s.mu.Lock()
	switch s.state {
	case StateRunning, StateStarting:
		s.mu.Unlock()
		s.log.Debugw("start requested while already up", "state", s.state)
		return nil
	case StateStopping:
		s.mu.Unlock()
		return model.ErrStopInProgress
	}
	s.state = StateStarting
	s.mu.Unlock()

	cmd := exec.Command(command, s.cfg.Args...)
	cmd.Dir = workdir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return s.failStart(command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.failStart(command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.failStart(command, err)
	}

	if err := cmd.Start(); err != nil {
		return s.failStart(command, err)
	}

	pid := cmd.Process.Pid
	run := &model.Run{
		ID:        uuid.New().String(),
		Command:   command,
		Workdir:   workdir,
		PID:       &pid,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if s.recorder != nil {
		if err := s.recorder.Create(ctx, run); err != nil {
			s.log.Warnw("failed to record run start", "runID", run.ID, "error", err)
		}
	}

	h := &handle{
		runID: run.ID,
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.handle = h
	s.state = StateRunning
	s.mu.Unlock()

	s.log.Infow("game server started", "pid", pid, "command", command, "workdir", workdir)

	go readLines(stdout, model.SourceStdout, s.emit, s.log)
	go readLines(stderr, model.SourceStderr, s.emit, s.log)
	go s.reap(h)

	return nil
}

func (s *Supervisor) failStart(command string, err error) error {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	return &model.SpawnError{Command: command, Err: err}
}

// Stop shuts the game server down. It writes the stop command to stdin, waits
// up to StopTimeout for a graceful exit, and force-kills on timeout or when
// stdin is unusable. It is a no-op if the server is already stopped. Write and
// wait failures are logged, never propagated; the handle is always dropped so
// the state machine cannot wedge in stopping.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped || s.handle == nil {
		s.mu.Unlock()
		return nil
	}
	h := s.handle
	s.state = StateStopping
	s.mu.Unlock()

	if _, err := io.WriteString(h.stdin, s.cfg.StopCommand+"\n"); err != nil {
		s.log.Warnw("failed to write stop command, killing process", "error", err)
		s.kill(h)
	}

	select {
	case <-h.done:
	case <-time.After(s.cfg.StopTimeout):
		s.log.Warnw("graceful stop timed out, killing process", "timeout", s.cfg.StopTimeout)
		s.kill(h)
		<-h.done
	case <-ctx.Done():
		s.log.Warnw("stop canceled, killing process", "error", ctx.Err())
		s.kill(h)
		<-h.done
	}

	if err := h.stdin.Close(); err != nil {
		s.log.Debugw("failed to close stdin", "error", err)
	}

	s.dropHandle(h)
	s.log.Infow("game server stopped", "runID", h.runID)
	return nil
}

// SendCommand writes a console command to the server's stdin, followed by a
// newline. It fails with model.ErrNotRunning unless the server is running.
func (s *Supervisor) SendCommand(command string) error {
	s.mu.Lock()
	if s.state != StateRunning || s.handle == nil {
		s.mu.Unlock()
		return model.ErrNotRunning
	}
	h := s.handle
	s.mu.Unlock()

	if _, err := io.WriteString(h.stdin, command+"\n"); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

// emit pushes one captured line into the scrollback buffer and the outbound
// channel.
func (s *Supervisor) emit(line model.LogLine) {
	if s.scrollback != nil {
		s.scrollback.Append(line.Render())
	}
	s.lines <- line
}

func (s *Supervisor) kill(h *handle) {
	if h.cmd.Process == nil {
		return
	}
	if err := h.cmd.Process.Kill(); err != nil {
		s.log.Debugw("kill failed", "error", err)
	}
}

// reap waits for the process to exit, records the outcome, and resets the
// state machine when the server died on its own (crash or in-game stop).
func (s *Supervisor) reap(h *handle) {
	err := h.cmd.Wait()
	h.waitErr = err
	h.exitCode = h.cmd.ProcessState.ExitCode()
	close(h.done)

	status := model.RunStatusExited
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			s.log.Warnw("unexpected wait error", "runID", h.runID, "error", err)
			status = model.RunStatusFailed
		}
	}

	if s.recorder != nil {
		exitCode := h.exitCode
		if err := s.recorder.Finish(context.Background(), h.runID, status, &exitCode); err != nil {
			s.log.Warnw("failed to record run exit", "runID", h.runID, "error", err)
		}
	}

	s.log.Infow("game server process exited", "runID", h.runID, "exitCode", h.exitCode)

	// If Stop owns the shutdown it drops the handle itself; only reset here
	// on an unsolicited exit.
	s.mu.Lock()
	if s.handle == h && s.state == StateRunning {
		s.handle = nil
		s.state = StateStopped
	}
	s.mu.Unlock()
}

// dropHandle clears the handle set by Start if it is still current.
func (s *Supervisor) dropHandle(h *handle) {
	s.mu.Lock()
	if s.handle == h {
		s.handle = nil
		s.state = StateStopped
	}
	s.mu.Unlock()
}
