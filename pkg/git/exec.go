package git

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 5 * time.Minute

// Executor runs git commands. Tests substitute a fake.
type Executor interface {
	// Run executes git with args in dir and returns combined output.
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// ExecExecutor runs the git binary with os/exec.
type ExecExecutor struct {
	Binary  string        // defaults to "git"
	Timeout time.Duration // per command; zero means DefaultTimeout
}

// Run executes a command and returns combined output.
//
// Terminal prompts are disabled: git fails instead of asking for
// credentials, which are expected to come from the user's git config.
func (e *ExecExecutor) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := e.Binary
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	out, err := cmd.CombinedOutput()
	if err != nil && ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, err
}
