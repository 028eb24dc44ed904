// Package yaegi runs generated analysis code inside the Yaegi Go
// interpreter. Each plan step executes in a fresh interpreter that only sees
// whitelisted stdlib packages, so nothing a step does can leak into the host
// process or into the next invocation.
package yaegi

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// defaultImports is the stdlib surface analysis code may use. Anything that
// can reach the filesystem, the network, the process table or unsafe memory
// stays off the list.
var defaultImports = []string{
	"bytes",
	"encoding/csv",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

// Sandbox implements ports.Sandbox on top of the interpreter.
type Sandbox struct {
	allowed map[string]bool
	logger  *slog.Logger
}

// Option configures the Sandbox.
type Option func(*Sandbox)

// WithLogger configures the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithExtraImports whitelists additional stdlib packages.
func WithExtraImports(pkgs ...string) Option {
	return func(s *Sandbox) {
		for _, p := range pkgs {
			s.allowed[p] = true
		}
	}
}

// New builds a Sandbox with the default import whitelist.
func New(opts ...Option) *Sandbox {
	s := &Sandbox{
		allowed: make(map[string]bool, len(defaultImports)),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, p := range defaultImports {
		s.allowed[p] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllowedImports returns the whitelist in sorted order.
func (s *Sandbox) AllowedImports() []string {
	out := make([]string, 0, len(s.allowed))
	for p := range s.allowed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Run executes the plan's steps in order. Step 1 receives the dataset as
// CSV, step k receives step k-1's output, and the last step's output is the
// plan's output. Faults never escape as Go errors; they come back as a
// structured exec error naming the failing step.
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

	input := dataset.CSV()
	for i, step := range plan.Steps {
		out, execErr := s.runStep(ctx, step.Code, input, limits)
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

// runStep evaluates one step's code in a fresh interpreter and calls its
// RunStep function. The returned error carries every field except Step.
func (s *Sandbox) runStep(ctx context.Context, code, input string, limits ports.ResourceLimits) (string, *domain.ExecError) {
	src := wrap(code)

	if execErr := s.checkImports(src); execErr != nil {
		return "", execErr
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", &domain.ExecError{Kind: domain.ExecErrEval, Message: "load stdlib symbols: " + err.Error()}
	}
	if _, err := i.Eval(src); err != nil {
		return "", &domain.ExecError{Kind: domain.ExecErrEval, Message: err.Error()}
	}

	v, err := i.Eval("main.RunStep")
	if err != nil {
		return "", &domain.ExecError{
			Kind:    domain.ExecErrEval,
			Message: "code must define RunStep(input string) (string, error)",
		}
	}
	fn, ok := v.Interface().(func(string) (string, error))
	if !ok {
		return "", &domain.ExecError{
			Kind:    domain.ExecErrEval,
			Message: "RunStep has the wrong signature, want func(string) (string, error)",
		}
	}

	type outcome struct {
		out string
		err error
	}
	// Buffered so an abandoned step can still deliver and exit after a
	// timeout; the interpreter cannot be preempted.
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := fn(input)
		ch <- outcome{out: out, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return "", &domain.ExecError{Kind: domain.ExecErrRuntime, Message: o.err.Error()}
		}
		if limits.MaxOutputBytes > 0 && len(o.out) > limits.MaxOutputBytes {
			return "", &domain.ExecError{
				Kind:    domain.ExecErrOutputLimit,
				Message: fmt.Sprintf("step output is %d bytes, limit is %d", len(o.out), limits.MaxOutputBytes),
			}
		}
		return o.out, nil
	case <-ctx.Done():
		return "", &domain.ExecError{Kind: domain.ExecErrTimeout, Message: ctx.Err().Error()}
	}
}

// checkImports parses the step source and rejects imports outside the
// whitelist before any code runs.
func (s *Sandbox) checkImports(src string) *domain.ExecError {
	f, err := parser.ParseFile(token.NewFileSet(), "step.go", src, parser.ImportsOnly)
	if err != nil {
		return &domain.ExecError{Kind: domain.ExecErrEval, Message: err.Error()}
	}

	var forbidden []string
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			path = imp.Path.Value
		}
		if !s.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return &domain.ExecError{
			Kind:    domain.ExecErrForbiddenImport,
			Message: "forbidden imports: " + strings.Join(forbidden, ", "),
		}
	}
	return nil
}

// wrap normalizes generated code into a package main source file.
func wrap(code string) string {
	code = stripFences(code)
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}

// stripFences drops a surrounding markdown code fence if the model left one
// in despite the contract.
func stripFences(code string) string {
	trimmed := strings.TrimSpace(code)
	if !strings.HasPrefix(trimmed, "```") {
		return code
	}
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		return code
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
