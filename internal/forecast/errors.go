package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why an instrument (or a whole run) failed.
type ErrorKind string

const (
	KindInsufficientData ErrorKind = "insufficient_data"
	KindDegenerateScale  ErrorKind = "degenerate_scale"
	KindShapeMismatch    ErrorKind = "shape_mismatch"
	KindNoViableModel    ErrorKind = "no_viable_model"
	KindCancelled        ErrorKind = "cancelled"
	KindConfig           ErrorKind = "config"
	KindMissingColumn    ErrorKind = "missing_column"
	KindInternal         ErrorKind = "internal"
)

// InsufficientDataError means a series is too short for the requested stage.
type InsufficientDataError struct {
	Stage State
	Have  int
	Need  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data at %s: have %d rows, need %d", e.Stage, e.Have, e.Need)
}

// DegenerateScaleError reports columns whose interquartile range is zero.
// It is a warning: the scaler falls back to scale=1 for those columns.
type DegenerateScaleError struct {
	Role    Role
	Columns []int
}

func (e *DegenerateScaleError) Error() string {
	cols := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		cols[i] = fmt.Sprint(c)
	}
	role := string(e.Role)
	if role == "" {
		role = "block"
	}
	return fmt.Sprintf("degenerate scale in %s: zero IQR in columns [%s], scale set to 1", role, strings.Join(cols, ","))
}

// ShapeMismatchError means two blocks that must agree on column count do not.
type ShapeMismatchError struct {
	What string
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch in %s: want %d columns, got %d", e.What, e.Want, e.Got)
}

// NoViableModelError means every candidate failed to fit or predict.
type NoViableModelError struct {
	Failures []CandidateFailure
}

func (e *NoViableModelError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Name + ": " + f.Err.Error()
	}
	return fmt.Sprintf("no viable model (%d candidates failed): %s", len(e.Failures), strings.Join(parts, "; "))
}

// ConfigError is a run-level configuration problem.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// MissingColumnError means an observation lacks a required column.
type MissingColumnError struct {
	Symbol string
	Column string
	Row    int
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing column %q at row %d", e.Symbol, e.Column, e.Row)
}

// KindOf classifies err. Wrapped errors are unwrapped.
func KindOf(err error) ErrorKind {
	var (
		insufficient *InsufficientDataError
		degenerate   *DegenerateScaleError
		shape        *ShapeMismatchError
		noModel      *NoViableModelError
		cfg          *ConfigError
		missing      *MissingColumnError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &insufficient):
		return KindInsufficientData
	case errors.As(err, &shape):
		return KindShapeMismatch
	case errors.As(err, &noModel):
		return KindNoViableModel
	case errors.As(err, &missing):
		return KindMissingColumn
	case errors.As(err, &cfg):
		return KindConfig
	case errors.As(err, &degenerate):
		return KindDegenerateScale
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}

// IsRunLevel reports whether err must abort a whole run.
func IsRunLevel(err error) bool {
	k := KindOf(err)
	return k == KindConfig || k == KindMissingColumn
}

// InstrumentError ties a per-instrument failure to the last state the
// instrument reached.
type InstrumentError struct {
	Symbol  string
	Reached State
	Err     error
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("%s (after %s): %v", e.Symbol, e.Reached, e.Err)
}

func (e *InstrumentError) Unwrap() error { return e.Err }
