// Package errs defines the error taxonomy of the model trainer.
//
// Every error raised at a component boundary is an *Error carrying its kind
// (one of the sentinel values below), an Origin describing where it was
// raised and what input it was raised for, and the underlying cause.
// errors.Is matches both the kind and the cause.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTraining reports that a single trial failed to fit or score.
	ErrTraining = errors.New("training failed")
	// ErrNoViableModel reports that no candidate produced a usable trial.
	ErrNoViableModel = errors.New("no viable model")
	// ErrBelowAccuracyThreshold reports a gate rejection on test score.
	ErrBelowAccuracyThreshold = errors.New("below accuracy threshold")
	// ErrOverfitUnderfit reports a gate rejection on the train/test gap.
	ErrOverfitUnderfit = errors.New("overfit/underfit threshold exceeded")
	// ErrPersistence reports an artifact read or write failure.
	ErrPersistence = errors.New("persistence failed")
	// ErrInvalidInput reports malformed datasets or configuration.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSearchAborted reports a search stopped by cancellation or its
	// deadline before every trial ran.
	ErrSearchAborted = errors.New("search aborted")
)

// Origin locates an error: the component and operation that raised it and
// the offending input (family and params, file path, scores).
type Origin struct {
	Component string
	Operation string
	Input     string
}

func (o Origin) String() string {
	var b strings.Builder
	b.WriteString(o.Component)
	if o.Operation != "" {
		b.WriteString(".")
		b.WriteString(o.Operation)
	}
	if o.Input != "" {
		b.WriteString(" [")
		b.WriteString(o.Input)
		b.WriteString("]")
	}
	return b.String()
}

// Error is a tagged error with origin metadata.
type Error struct {
	Kind   error
	Origin Origin
	Err    error
}

// New builds an *Error of the given kind. cause may be nil.
func New(kind error, origin Origin, cause error) *Error {
	return &Error{Kind: kind, Origin: origin, Err: cause}
}

// Newf builds an *Error whose cause is a formatted message.
func Newf(kind error, origin Origin, format string, args ...any) *Error {
	return New(kind, origin, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Origin, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Origin, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// OriginOf returns the origin of the first *Error in err's chain.
func OriginOf(err error) (Origin, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Origin, true
	}
	return Origin{}, false
}
