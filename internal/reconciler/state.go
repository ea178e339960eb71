package reconciler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is a sandbox lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBooting       State = "booting"
	StateReady         State = "ready"
	StateMounting      State = "mounting"
	StateInstalling    State = "installing"
	StateStarting      State = "starting"
	StateServing       State = "serving"
	StateFailed        State = "failed"
)

// Source records which signal declared the dev server ready.
type Source string

const (
	SourceNotification Source = "server-ready"
	SourceOutput       Source = "output"
	SourceTimeout      Source = "timeout"
)

// Status is a snapshot of the reconciler. URL and Source are set only while serving.
type Status struct {
	State      State     `json:"state"`
	URL        string    `json:"url,omitempty"`
	Source     Source    `json:"source,omitempty"`
	Err        *Error    `json:"error,omitempty"`
	Generation uint64    `json:"generation"`
	At         time.Time `json:"at"`
}

// ErrorKind classifies failures.
type ErrorKind string

const (
	KindBoot         ErrorKind = "boot"
	KindMount        ErrorKind = "mount"
	KindPrecondition ErrorKind = "precondition"
	KindInstall      ErrorKind = "install"
	KindStart        ErrorKind = "start"
)

var (
	// ErrSuperseded is returned by a run that a newer one replaced.
	ErrSuperseded = errors.New("reconcile superseded by a newer run")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("reconciler closed")
	// ErrNotFailed is returned by Retry outside the failed state.
	ErrNotFailed = errors.New("nothing to retry")
)

// Error is a failed transition. Output holds the tail of the process output
// when a process was involved.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Output  []string  `json:"output,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail renders the error with its captured output.
func (e *Error) Detail() string {
	if len(e.Output) == 0 {
		return e.Error()
	}
	return e.Error() + "\n" + strings.Join(e.Output, "\n")
}

// IsKind reports whether err is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == kind
}
