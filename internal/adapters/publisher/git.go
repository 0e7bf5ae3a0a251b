package publisher

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes git subcommands against one working tree.
type Runner interface {
	Run(ctx context.Context, stdin []byte, args ...string) (string, error)
}

// ExecRunner runs the git binary with "-C <dir>" prepended to every call.
type ExecRunner struct {
	dir    string
	binary string
}

// NewExecRunner returns a runner targeting dir.
func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{dir: dir, binary: "git"}
}

// Dir returns the working tree directory.
func (r *ExecRunner) Dir() string {
	return r.dir
}

// Run executes git and returns stdout. Stderr is captured separately and
// included in the error on failure.
func (r *ExecRunner) Run(ctx context.Context, stdin []byte, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, fullArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
