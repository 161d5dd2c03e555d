package graph

import "errors"

// ErrMaxStepsExceeded is matched by EngineErrors with code MAX_STEPS_EXCEEDED.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNodeTimeout is matched by EngineErrors with code NODE_TIMEOUT.
var ErrNodeTimeout = errors.New("node exceeded its timeout")

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// Engine error codes.
const (
	CodeMissingReducer   = "MISSING_REDUCER"
	CodeMissingStore     = "MISSING_STORE"
	CodeNoStartNode      = "NO_START_NODE"
	CodeNodeNotFound     = "NODE_NOT_FOUND"
	CodeDuplicateNode    = "DUPLICATE_NODE"
	CodeMaxStepsExceeded = "MAX_STEPS_EXCEEDED"
	CodeStoreError       = "STORE_ERROR"
	CodeNoRoute          = "NO_ROUTE"
	CodeNodeTimeout      = "NODE_TIMEOUT"
	CodeInvalidPolicy    = "INVALID_POLICY"
)

// EngineError reports a problem with graph configuration or with the run
// itself, as opposed to a failure inside a node (see NodeError).
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match the code-specific sentinels.
func (e *EngineError) Is(target error) bool {
	switch target {
	case ErrMaxStepsExceeded:
		return e.Code == CodeMaxStepsExceeded
	case ErrNodeTimeout:
		return e.Code == CodeNodeTimeout
	case ErrInvalidRetryPolicy:
		return e.Code == CodeInvalidPolicy
	}
	return false
}
