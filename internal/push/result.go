package push

import "fmt"

type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultExpired ResultKind = "expired"
	ResultFailed  ResultKind = "failed"
)

// Result is the outcome of one delivery attempt. Provider failures are
// values, not errors: the caller decides what each kind means for the
// subscription and the log entry.
type Result struct {
	Kind       ResultKind
	Reason     string
	Retryable  bool
	HTTPStatus int
}

func Success() Result {
	return Result{Kind: ResultSuccess}
}

// Expired means the subscription is gone for good and should not be used again.
func Expired(reason string) Result {
	return Result{Kind: ResultExpired, Reason: reason}
}

func Failed(reason string, retryable bool, httpStatus int) Result {
	return Result{Kind: ResultFailed, Reason: reason, Retryable: retryable, HTTPStatus: httpStatus}
}

func (r Result) OK() bool { return r.Kind == ResultSuccess }

func (r Result) String() string {
	switch r.Kind {
	case ResultSuccess:
		return "success"
	case ResultExpired:
		return fmt.Sprintf("expired: %s", r.Reason)
	default:
		return fmt.Sprintf("failed (status=%d, retryable=%t): %s", r.HTTPStatus, r.Retryable, r.Reason)
	}
}
