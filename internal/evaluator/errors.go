package evaluator

// #region kinds

// ErrorKind classifies an infrastructure failure reaching the evaluator.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "evaluator_unavailable"
	KindTimeout     ErrorKind = "evaluator_timeout"
)

// #endregion

// #region error

// Error is a typed evaluator failure. Callers decide whether to retry.
type Error struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrUnavailable = &Error{Kind: KindUnavailable}
	ErrTimeout     = &Error{Kind: KindTimeout}
)

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func unavailable(detail string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Detail: detail, Cause: cause}
}

func timeout(detail string, cause error) *Error {
	return &Error{Kind: KindTimeout, Detail: detail, Cause: cause}
}

// #endregion
