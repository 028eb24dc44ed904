package ports

import (
	"context"
	"time"

	"github.com/quarrydata/quarry/pkg/domain"
)

// ResourceLimits bound one sandbox invocation.
type ResourceLimits struct {
	// WallClock caps the whole plan's execution time.
	WallClock time.Duration
	// MaxOutputBytes caps each step's output. Oversized output fails the
	// step rather than ballooning memory.
	MaxOutputBytes int
	// MemoryBytes is advisory; enforcement depends on the implementation.
	MemoryBytes int64
}

// Sandbox is the isolation contract around generated-code execution.
//
// Guarantees implementations must provide: the executed code cannot affect
// state outside the sandbox except through the returned result; each
// invocation runs in a freshly scoped environment with no leakage between
// invocations; any fault inside the sandbox is converted to a structured
// exec error on the result, so Run never fails outward; results are
// all-or-nothing per plan, and a failure at step k reports k and discards
// the output of steps before it.
type Sandbox interface {
	Run(ctx context.Context, plan *domain.Plan, dataset *domain.Dataset, limits ResourceLimits) *domain.ExecutionResult
}
