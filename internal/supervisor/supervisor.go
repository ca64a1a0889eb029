// Package supervisor implements the callable API spec.md §6 documents for
// the database side of the collector: start/restart the collector process,
// hold the pipe's write-stable read end across restarts, and rate-limit
// respawns. The enclosing database engine that would embed this contract
// is itself out of scope (spec.md §1); this package implements the
// contract standalone, forking cmd/collectord rather than an in-process
// goroutine, so a producer's pipe handle survives a collector crash.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/dbaudit/collector/internal/clock"
	"github.com/dbaudit/collector/internal/logging"
)

// respawnCooldown is the minimum interval between forks, per spec.md §6.
const respawnCooldown = 60 * time.Second

// Supervisor owns the collector child process and the pipe its producers
// write into. The pipe's read end is created once and handed to every
// collector incarnation in turn; producers that already hold the write end
// keep writing into the same pipe across a restart.
type Supervisor struct {
	mu sync.Mutex

	command func() *exec.Cmd
	clock   clock.Clock
	log     *logging.Logger

	pipeRead  *os.File
	pipeWrite *os.File

	cmd          *exec.Cmd
	lastStart    time.Time
	cooldownOver bool

	doneCh  chan struct{}
	waitErr error
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithClock overrides the default real clock, for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// New creates a Supervisor that launches the collector by invoking
// command() for each incarnation; command must return a fresh *exec.Cmd
// each call (exec.Cmd is single-use).
func New(command func() *exec.Cmd, opts ...Option) *Supervisor {
	s := &Supervisor{
		command: command,
		clock:   &clock.RealClock{},
		log:     logging.Default().WithComponent("supervisor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteEnd returns the pipe's write end, valid once Start has been called
// at least once. Producers dup or inherit this descriptor; it does not
// change across restarts.
func (s *Supervisor) WriteEnd() *os.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeWrite
}

// Start is the supervisor entry point (spec.md §6's `start()`): on first
// call it creates the pipe and forks the collector; on a later call within
// the 60s respawn cooldown it is a no-op; otherwise, if the previously
// forked process has exited, it forks a replacement reusing the same pipe.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !s.lastStart.IsZero() && !s.cooldownOver && now.Sub(s.lastStart) < respawnCooldown {
		s.log.Debug("respawn cooldown active, skipping start", "elapsed", now.Sub(s.lastStart))
		return nil
	}

	if s.pipeRead == nil {
		r, w, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("supervisor: create pipe: %w", err)
		}
		s.pipeRead, s.pipeWrite = r, w
	}

	if s.cmd != nil && !s.exited() {
		return nil
	}

	cmd := s.command()
	cmd.ExtraFiles = append(cmd.ExtraFiles, s.pipeRead)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: start collector: %w", err)
	}

	s.cmd = cmd
	s.lastStart = now
	s.cooldownOver = false
	s.doneCh = make(chan struct{})
	done := s.doneCh
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
		close(done)
	}()

	s.log.Info("collector started", "pid", cmd.Process.Pid)
	return nil
}

// AllowImmediateRestart clears the respawn cooldown (spec.md §6's
// `allow_immediate_restart()`), used when the caller knows the previous
// incarnation exited deliberately (e.g. after a config change requiring a
// full restart rather than SIGHUP).
func (s *Supervisor) AllowImmediateRestart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldownOver = true
}

// exited reports whether the current child process has already exited,
// without blocking.
func (s *Supervisor) exited() bool {
	if s.doneCh == nil {
		return true
	}
	select {
	case <-s.doneCh:
		return true
	default:
		return false
	}
}

// Signal sends sig to the running collector, a no-op if none is running.
func (s *Supervisor) Signal(sig syscall.Signal) error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}

// Wait blocks until the current collector incarnation exits or ctx is
// canceled, returning the process's wait error (nil on a clean exit).
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	cmd, done := s.cmd, s.doneCh
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}
	select {
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
