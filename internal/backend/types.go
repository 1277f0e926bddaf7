package backend

import "time"

// Invocation describes one run of the external agent.
type Invocation struct {
	Path    string            // executable
	Prompt  string            // written to stdin, which is then closed
	Env     map[string]string // added on top of the parent environment
	WorkDir string
	Timeout time.Duration // zero means no deadline beyond ctx
}

// Output is what a finished agent process produced.
type Output struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
}
