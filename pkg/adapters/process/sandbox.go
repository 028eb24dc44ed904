// Package process runs generated analysis code in short-lived subprocesses.
// It is the out-of-process alternative to the yaegi sandbox for deployments
// whose plans target another interpreter, typically python3; pair it with a
// prompt library that generates matching step code.
//
// The interpreter is fixed at construction and plan content can never choose
// the binary. Each step runs in its own process with a scratch working
// directory and a scrubbed environment, so steps cannot see host secrets or
// each other's files across invocations.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// Defaults when no interpreter is configured.
const (
	DefaultCommand   = "python3"
	DefaultScriptExt = ".py"

	// stderrTail bounds how much captured stderr lands in an exec error.
	stderrTail = 2048

	// killGrace bounds how long a finished-or-killed step may keep its
	// pipes open before Run abandons them.
	killGrace = 2 * time.Second
)

// Sandbox implements ports.Sandbox by executing each plan step as a
// subprocess: step code goes to a script file, input arrives on stdin,
// output is read from stdout.
type Sandbox struct {
	command string
	args    []string
	ext     string
	env     []string
	logger  *slog.Logger
}

// Option configures the Sandbox.
type Option func(*Sandbox)

// WithInterpreter sets the interpreter command and its leading arguments.
// The script path is appended as the final argument.
func WithInterpreter(command string, args ...string) Option {
	return func(s *Sandbox) {
		if command != "" {
			s.command = command
			s.args = args
		}
	}
}

// WithScriptExt sets the extension of the per-step script files.
func WithScriptExt(ext string) Option {
	return func(s *Sandbox) {
		if ext != "" {
			s.ext = ext
		}
	}
}

// WithEnv adds environment variables to the step processes. The base
// environment carries only PATH and a scratch HOME.
func WithEnv(env map[string]string) Option {
	return func(s *Sandbox) {
		for k, v := range env {
			s.env = append(s.env, k+"="+v)
		}
	}
}

// WithLogger configures the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) {
		if l != nil {
			s.logger = l
		}
	}
}

// FromConfig applies a registered interpreter wholesale.
func FromConfig(ic InterpreterConfig) Option {
	return func(s *Sandbox) {
		WithInterpreter(ic.Command, ic.Args...)(s)
		WithScriptExt(ic.Ext)(s)
		WithEnv(ic.Env)(s)
	}
}

// New builds a Sandbox. Without options it runs python3.
func New(opts ...Option) *Sandbox {
	s := &Sandbox{
		command: DefaultCommand,
		ext:     DefaultScriptExt,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the plan's steps in order. Step 1 receives the dataset as CSV
// on stdin, step k receives step k-1's stdout, and the last step's stdout is
// the plan's output. Faults never escape as Go errors; they come back as a
// structured exec error naming the failing step.
//
// limits.WallClock caps the whole plan; a step running past it is killed.
// limits.MemoryBytes is not enforced here.
func (s *Sandbox) Run(ctx context.Context, plan *domain.Plan, dataset *domain.Dataset, limits ports.ResourceLimits) *domain.ExecutionResult {
	started := time.Now()

	if plan.Empty() {
		return &domain.ExecutionResult{
			Duration: time.Since(started),
			Err:      &domain.ExecError{Kind: domain.ExecErrEmptyPlan, Message: "plan has no steps"},
		}
	}

	if limits.WallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.WallClock)
		defer cancel()
	}

	scratch, err := os.MkdirTemp("", "quarry-sandbox-*")
	if err != nil {
		return &domain.ExecutionResult{
			Duration: time.Since(started),
			Err:      &domain.ExecError{Kind: domain.ExecErrEval, Message: "create scratch dir: " + err.Error()},
		}
	}
	defer os.RemoveAll(scratch)

	input := dataset.CSV()
	for i, step := range plan.Steps {
		out, execErr := s.runStep(ctx, scratch, i+1, step.Code, input, limits)
		if execErr != nil {
			execErr.Step = i + 1
			s.logger.Debug("sandbox step failed",
				"step", execErr.Step, "kind", execErr.Kind, "error", execErr.Message)
			return &domain.ExecutionResult{
				Steps:    i,
				Duration: time.Since(started),
				Err:      execErr,
			}
		}
		s.logger.Debug("sandbox step finished", "step", i+1, "output_bytes", len(out))
		input = out
	}

	return &domain.ExecutionResult{
		OK:       true,
		Output:   input,
		Steps:    len(plan.Steps),
		Duration: time.Since(started),
	}
}

// runStep writes one step's code to a script file and executes it. The
// returned error carries every field except Step.
func (s *Sandbox) runStep(ctx context.Context, scratch string, num int, code, input string, limits ports.ResourceLimits) (string, *domain.ExecError) {
	if strings.TrimSpace(code) == "" {
		return "", &domain.ExecError{Kind: domain.ExecErrEval, Message: "step has no code"}
	}
	if err := ctx.Err(); err != nil {
		return "", &domain.ExecError{Kind: domain.ExecErrTimeout, Message: err.Error()}
	}

	script := filepath.Join(scratch, fmt.Sprintf("step_%d%s", num, s.ext))
	if err := os.WriteFile(script, []byte(code), 0o600); err != nil {
		return "", &domain.ExecError{Kind: domain.ExecErrEval, Message: "write step script: " + err.Error()}
	}

	cmd := exec.CommandContext(ctx, s.command, append(append([]string{}, s.args...), script)...)
	cmd.Dir = scratch
	cmd.Stdin = strings.NewReader(input)
	isolateStep(cmd)
	// A process that escapes the group kill still cannot pin the stdout
	// pipe open past the deadline.
	cmd.WaitDelay = killGrace

	// Scrubbed environment: steps must not see host secrets.
	cmd.Env = append([]string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + scratch,
		fmt.Sprintf("QUARRY_STEP=%d", num),
	}, s.env...)

	stdout := &capWriter{max: limits.MaxOutputBytes}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// The deadline expiring is a timeout no matter how the process died.
	if ctx.Err() != nil {
		return "", &domain.ExecError{Kind: domain.ExecErrTimeout, Message: ctx.Err().Error()}
	}
	if stdout.overflow {
		return "", &domain.ExecError{
			Kind:    domain.ExecErrOutputLimit,
			Message: fmt.Sprintf("step output exceeds %d bytes", limits.MaxOutputBytes),
		}
	}
	if err != nil {
		if errors.Is(err, exec.ErrWaitDelay) {
			return "", &domain.ExecError{
				Kind:    domain.ExecErrRuntime,
				Message: "step left background processes holding its output pipe",
			}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := fmt.Sprintf("exit status %d", exitErr.ExitCode())
			if tail := tailString(stderr.String(), stderrTail); tail != "" {
				msg += ": " + tail
			}
			return "", &domain.ExecError{Kind: domain.ExecErrRuntime, Message: msg}
		}
		// The interpreter itself could not be started.
		return "", &domain.ExecError{Kind: domain.ExecErrEval, Message: err.Error()}
	}

	return strings.TrimSuffix(stdout.String(), "\n"), nil
}

// capWriter buffers up to max bytes and flags anything beyond instead of
// growing without bound under a runaway step.
type capWriter struct {
	buf      bytes.Buffer
	max      int
	overflow bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	n := len(p)
	if w.max > 0 {
		if room := w.max - w.buf.Len(); n > room {
			w.overflow = true
			p = p[:room]
		}
	}
	w.buf.Write(p)
	// Report full consumption so the child never sees a write error.
	return n, nil
}

func (w *capWriter) String() string { return w.buf.String() }

func tailString(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
