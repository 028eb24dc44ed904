package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarrydata/quarry/pkg/schema"
)

// InvokeRequest carries one structured model call. Contract constrains the
// response; Out receives the validated, typed result.
type InvokeRequest struct {
	// Name identifies the call for logs and metrics; by convention it is the
	// calling node's identifier.
	Name        string
	System      string
	User        string
	Temperature float64
	Contract    *schema.Contract
	Out         any
}

// CompleteRequest carries one free-text model call (response nodes, which
// produce prose rather than structured documents).
type CompleteRequest struct {
	Name        string
	System      string
	User        string
	Temperature float64
}

// ModelClient is the language-model collaborator. Implementations must be
// schema-validating: a response that fails to parse against the request's
// contract surfaces as *schema.ViolationError, never as a partially
// populated result. Transport-level failures surface as *ModelError.
type ModelClient interface {
	Invoke(ctx context.Context, req InvokeRequest) error
	Complete(ctx context.Context, req CompleteRequest) (string, error)
}

// ModelErrorKind classifies transport-level model faults.
type ModelErrorKind string

const (
	ModelTimeout     ModelErrorKind = "timeout"
	ModelTransport   ModelErrorKind = "transport"
	ModelRateLimited ModelErrorKind = "rate_limited"
)

// ModelError is a recoverable collaborator fault. Nodes convert it into
// their own outcome vocabulary; it never crosses the executor boundary.
type ModelError struct {
	Kind ModelErrorKind
	Err  error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// IsModelFault reports whether err is a recoverable model fault, as opposed
// to a schema violation (which is fatal to the run).
func IsModelFault(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}
