package backend

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"time"
)

// Agent runs one prompt through an external agent and reports its output.
//
// A process that ran to completion returns an Output and a nil error, even
// when it exited non-zero. Only spawn, stream and deadline failures are
// returned as errors, always as *Error.
type Agent interface {
	Invoke(ctx context.Context, inv Invocation) (Output, error)
}

// killGrace bounds how long Wait keeps reading after the process group was
// killed.
const killGrace = 2 * time.Second

// CLIAgent invokes a command-line agent as a subprocess in its own process
// group. The prompt is delivered on stdin.
type CLIAgent struct {
	procMgr *ProcessManager
	args    []string
}

// NewCLIAgent creates a CLIAgent. The ProcessManager is optional; when set,
// running processes are tracked so they can be killed on shutdown.
// args are passed to every invocation.
func NewCLIAgent(procMgr *ProcessManager, args ...string) *CLIAgent {
	return &CLIAgent{procMgr: procMgr, args: args}
}

// Invoke implements Agent.
func (a *CLIAgent) Invoke(ctx context.Context, inv Invocation) (Output, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := newCommand(ctx, inv.Path, a.args...)
	cmd.Dir = inv.WorkDir
	cmd.Env = mergeEnv(os.Environ(), inv.Env)
	cmd.WaitDelay = killGrace

	stdout, stderr, err := executeCommand(cmd, []byte(inv.Prompt), a.procMgr)

	if ctxErr := ctx.Err(); ctxErr != nil && cmd.Process != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return Output{}, &Error{Kind: KindTimeout, Timeout: inv.Timeout, Err: ctxErr}
		}
		return Output{}, &Error{Kind: KindIO, Err: ctxErr}
	}

	out := Output{
		Success: err == nil,
		Stdout:  string(stdout),
		Stderr:  string(stderr),
	}
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}

	var be *Error
	if errors.As(err, &be) {
		return Output{}, be
	}
	return Output{}, &Error{Kind: KindIO, Err: err}
}

// mergeEnv appends overrides to base in a stable order. Later entries win
// for duplicate keys in os/exec.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := append([]string(nil), base...)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
