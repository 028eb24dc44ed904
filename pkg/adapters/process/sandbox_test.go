package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// shSandbox builds a sandbox around /bin/sh so the tests carry no
// interpreter dependency beyond POSIX.
func shSandbox(t *testing.T) *Sandbox {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("sh-based sandbox tests need a POSIX shell")
	}
	return New(WithInterpreter("sh"), WithScriptExt(".sh"))
}

func plan(codes ...string) *domain.Plan {
	p := &domain.Plan{AnalysisType: domain.AnalysisDescriptive}
	for i, code := range codes {
		p.Steps = append(p.Steps, domain.Step{Number: i + 1, Description: "step", Code: code})
	}
	return p
}

func TestRunChainsStepOutputs(t *testing.T) {
	s := shSandbox(t)
	dataset := &domain.Dataset{Columns: []string{"word"}, Rows: [][]string{{"hello"}}}

	// Step 1 drops the CSV header; step 2 upcases step 1's output.
	res := s.Run(context.Background(), plan(
		`tail -n 1`,
		`tr '[:lower:]' '[:upper:]'`,
	), dataset, ports.ResourceLimits{WallClock: 10 * time.Second})

	require.Nil(t, res.Err)
	assert.True(t, res.OK)
	assert.Equal(t, "HELLO", res.Output)
	assert.Equal(t, 2, res.Steps)
}

func TestRunReportsFailingStepWithStderr(t *testing.T) {
	s := shSandbox(t)

	res := s.Run(context.Background(), plan(
		`cat`,
		`echo boom >&2; exit 3`,
	), nil, ports.ResourceLimits{WallClock: 10 * time.Second})

	require.NotNil(t, res.Err)
	assert.False(t, res.OK)
	assert.Equal(t, domain.ExecErrRuntime, res.Err.Kind)
	assert.Equal(t, 2, res.Err.Step)
	assert.Contains(t, res.Err.Message, "exit status 3")
	assert.Contains(t, res.Err.Message, "boom")
	assert.Equal(t, 1, res.Steps, "only the first step completed")
}

func TestRunKillsStepPastWallClock(t *testing.T) {
	s := shSandbox(t)

	start := time.Now()
	res := s.Run(context.Background(), plan(`sleep 5`), nil,
		ports.ResourceLimits{WallClock: 150 * time.Millisecond})

	require.NotNil(t, res.Err)
	assert.Equal(t, domain.ExecErrTimeout, res.Err.Kind)
	assert.Less(t, time.Since(start), 3*time.Second, "the step must be killed, not awaited")
}

func TestRunKillsOrphanedStepChildren(t *testing.T) {
	s := shSandbox(t)

	// The step itself exits at once but leaves a child holding stdout; Run
	// must kill the child at the deadline rather than wait it out.
	start := time.Now()
	res := s.Run(context.Background(), plan(`sleep 5 &`), nil,
		ports.ResourceLimits{WallClock: 150 * time.Millisecond})

	require.NotNil(t, res.Err)
	assert.Equal(t, domain.ExecErrTimeout, res.Err.Kind)
	assert.Less(t, time.Since(start), 3*time.Second, "children of the step must die with it")
}

func TestRunCapsStepOutput(t *testing.T) {
	s := shSandbox(t)

	res := s.Run(context.Background(), plan(`head -c 4096 /dev/zero | tr '\0' 'x'`), nil,
		ports.ResourceLimits{WallClock: 10 * time.Second, MaxOutputBytes: 256})

	require.NotNil(t, res.Err)
	assert.Equal(t, domain.ExecErrOutputLimit, res.Err.Kind)
}

func TestRunEmptyPlan(t *testing.T) {
	s := shSandbox(t)

	res := s.Run(context.Background(), &domain.Plan{}, nil, ports.ResourceLimits{})
	require.NotNil(t, res.Err)
	assert.Equal(t, domain.ExecErrEmptyPlan, res.Err.Kind)
}

func TestRunMissingInterpreter(t *testing.T) {
	s := New(WithInterpreter("quarry-no-such-interpreter"))

	res := s.Run(context.Background(), plan(`print("hi")`), nil,
		ports.ResourceLimits{WallClock: 5 * time.Second})

	require.NotNil(t, res.Err)
	assert.Equal(t, domain.ExecErrEval, res.Err.Kind)
}

func TestRunScrubsHostEnvironment(t *testing.T) {
	s := shSandbox(t)
	t.Setenv("QUARRY_TEST_SECRET", "leaked")

	res := s.Run(context.Background(), plan(`printf '%s' "got:${QUARRY_TEST_SECRET}"`), nil,
		ports.ResourceLimits{WallClock: 10 * time.Second})

	require.Nil(t, res.Err)
	assert.Equal(t, "got:", res.Output)
}

func TestRunPassesConfiguredEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh-based sandbox tests need a POSIX shell")
	}
	s := New(
		WithInterpreter("sh"),
		WithScriptExt(".sh"),
		WithEnv(map[string]string{"ANALYSIS_MODE": "batch"}),
	)

	res := s.Run(context.Background(), plan(`printf '%s' "$ANALYSIS_MODE"`), nil,
		ports.ResourceLimits{WallClock: 10 * time.Second})

	require.Nil(t, res.Err)
	assert.Equal(t, "batch", res.Output)
}

func TestLoadInterpreters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "interpreters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
interpreters:
  - name: python
    command: python3
    args: ["-I"]
    ext: .py
    env:
      PYTHONDONTWRITEBYTECODE: "1"
  - name: nameless
    command: ""
`), 0o644))

	reg, err := LoadInterpreters(path)
	require.NoError(t, err)
	require.Len(t, reg, 1, "entries without a command are dropped")

	py := reg["python"]
	assert.Equal(t, "python3", py.Command)
	assert.Equal(t, []string{"-I"}, py.Args)
	assert.Equal(t, ".py", py.Ext)
	assert.Equal(t, "1", py.Env["PYTHONDONTWRITEBYTECODE"])
}

func TestLoadInterpretersMissingFile(t *testing.T) {
	reg, err := LoadInterpreters(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, reg)
}
