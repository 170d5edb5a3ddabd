package respiration

import "fmt"

// Stage identifies a pipeline stage in structural failures.
type Stage string

const (
	StageCrop       Stage = "crop"
	StageInitialize Stage = "initialize"
	StageRefine     Stage = "refine"
	StageExtract    Stage = "extract"
	StageDetrend    Stage = "detrend"
)

// StageError wraps a failure with the pipeline stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("respiration stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// UnknownMethodError is the configuration error raised for an unrecognized
// estimation method. It is returned before any volume processing happens.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown respiration estimation method %q", e.Method)
}
