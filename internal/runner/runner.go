// Package runner provides the actions the engine invokes to execute a
// task. The engine treats a Runner as an opaque callable; what "running
// a task" means is decided entirely here.
package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// Runner executes a single task attempt and returns its output.
// This abstraction allows mocking task execution in tests.
type Runner interface {
	// Run executes the task's action. The returned output is stored on
	// the execution record whether or not err is nil.
	Run(ctx context.Context, task *models.Task) (output string, err error)

	// Name identifies the runner in logs and run summaries.
	Name() string
}

// CommandRunner executes a task's embedded shell command through "sh -c".
// Tasks without a command succeed immediately with no output.
type CommandRunner struct {
	// WorkDir is the working directory for commands. Empty means the
	// process working directory.
	WorkDir string
	// Timeout bounds a single attempt. Zero means no limit.
	Timeout time.Duration
}

// NewCommandRunner creates a CommandRunner rooted at workDir.
func NewCommandRunner(workDir string, timeout time.Duration) *CommandRunner {
	return &CommandRunner{WorkDir: workDir, Timeout: timeout}
}

// Run executes the task's command and returns combined stdout/stderr.
func (r *CommandRunner) Run(ctx context.Context, task *models.Task) (string, error) {
	command := strings.TrimSpace(task.Command)
	if command == "" {
		return "", nil
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return string(output), fmt.Errorf("command timed out after %s: %w", r.Timeout, context.DeadlineExceeded)
		}
		return string(output), fmt.Errorf("run command: %w", err)
	}
	return string(output), nil
}

// Name identifies the runner.
func (r *CommandRunner) Name() string {
	return "command"
}

// NoopRunner completes every task without doing anything. Useful for
// dry runs and for backlogs that only track work done elsewhere.
type NoopRunner struct{}

// Run does nothing and succeeds.
func (r *NoopRunner) Run(ctx context.Context, task *models.Task) (string, error) {
	return "", nil
}

// Name identifies the runner.
func (r *NoopRunner) Name() string {
	return "noop"
}

// Verify implementations satisfy Runner at compile time.
var (
	_ Runner = (*CommandRunner)(nil)
	_ Runner = (*NoopRunner)(nil)
)
