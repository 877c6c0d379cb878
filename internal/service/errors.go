package service

import (
	"errors"
	"fmt"
)

// ErrTaskInFlight is returned when a task is requested while another one is
// already running against the portal session.
var ErrTaskInFlight = errors.New("another portal task is already running")

// Kind names the stage a task failed in. Every task failure maps to exactly
// one kind, so operators and the UI can tell a login problem from a ledger
// write problem without reading stack traces.
type Kind string

const (
	KindOpenBrowser    Kind = "open_browser"
	KindLogin          Kind = "login"
	KindLotSubmission  Kind = "lot_submission"
	KindDownload       Kind = "download"
	KindCrossRefUpdate Kind = "cross_ref_update"
	KindLedgerUpdate   Kind = "ledger_update"
)

// TaskError is a task failure tagged with its stage.
type TaskError struct {
	Kind Kind
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &TaskError{Kind: kind, Err: err}
}

// KindOf extracts the stage from a task error, or empty for errors that did
// not come out of a task run.
func KindOf(err error) Kind {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
