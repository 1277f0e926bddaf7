package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
)

// newCommand creates an exec.Cmd with process group isolation.
// Cancelling ctx kills the whole group, so children spawned by the agent
// go down with it.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	return cmd
}

// executeCommand runs cmd, feeding it stdin and collecting stdout and stderr.
//
// Both output pipes are drained concurrently before cmd.Wait so that output
// larger than the pipe buffer cannot deadlock the child. stdin is written from
// its own goroutine and closed so the child observes end-of-input.
//
// Failures to start are returned as *Error with KindSpawn, stream failures as
// KindIO. A non-zero exit is returned as the *exec.ExitError from Wait,
// wrapped, with the collected output.
func executeCommand(cmd *exec.Cmd, stdin []byte, pm *ProcessManager) (stdout []byte, stderr []byte, err error) {
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, &Error{Kind: KindIO, Err: fmt.Errorf("failed to create stdin pipe: %w", err)}
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, &Error{Kind: KindIO, Err: fmt.Errorf("failed to create stdout pipe: %w", err)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, &Error{Kind: KindIO, Err: fmt.Errorf("failed to create stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, &Error{Kind: KindSpawn, Err: err}
	}

	if pm != nil {
		pm.Track(cmd)
		defer pm.Untrack(cmd)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	var stdoutErr, stderrErr, stdinErr error

	wg.Add(3)

	go func() {
		defer wg.Done()
		_, stdinErr = stdinPipe.Write(stdin)
		if cerr := stdinPipe.Close(); stdinErr == nil {
			stdinErr = cerr
		}
	}()

	go func() {
		defer wg.Done()
		_, stdoutErr = io.Copy(&stdoutBuf, stdoutPipe)
	}()

	go func() {
		defer wg.Done()
		_, stderrErr = io.Copy(&stderrBuf, stderrPipe)
	}()

	wg.Wait()

	waitErr := cmd.Wait()

	stdout = stdoutBuf.Bytes()
	stderr = stderrBuf.Bytes()

	if waitErr != nil {
		return stdout, stderr, fmt.Errorf("command failed: %w", waitErr)
	}

	// A child that exits without reading its input leaves a broken pipe
	// behind; that is not a failure of the run.
	if stdinErr != nil && !errors.Is(stdinErr, syscall.EPIPE) && !errors.Is(stdinErr, io.ErrClosedPipe) {
		return stdout, stderr, &Error{Kind: KindIO, Err: fmt.Errorf("failed to write prompt: %w", stdinErr)}
	}
	if err := errors.Join(stdoutErr, stderrErr); err != nil {
		return stdout, stderr, &Error{Kind: KindIO, Err: err}
	}

	return stdout, stderr, nil
}

// killProcessGroup kills the entire process group associated with the command.
// This ensures all child processes are terminated, not just the immediate subprocess.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}

	// Negative pid addresses the group.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process group: %w", err)
	}

	return nil
}

// ProcessManager tracks all running agent processes so they can be
// terminated together on shutdown.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates a new ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a subprocess for tracking.
// Should be called after cmd.Start() when cmd.Process is available.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess from tracking.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates all tracked subprocesses.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}

	return errors.Join(errs...)
}

// Count returns the number of currently tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
