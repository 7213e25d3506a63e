package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an app key does not resolve to an enabled row.
var ErrNotFound = errors.New("app not found or disabled")

// IncompleteSecretError names the first required secret field that is empty.
// Raised before any remote mutation happens.
type IncompleteSecretError struct {
	AppKey string
	Field  string
}

func (e *IncompleteSecretError) Error() string {
	return fmt.Sprintf("app %q is missing required secret field %q", e.AppKey, e.Field)
}

// RemoteUnreachableError wraps a failure to reach the managed host. The whole
// run fails; no partial writes are left behind.
type RemoteUnreachableError struct {
	Host string
	Err  error
}

func (e *RemoteUnreachableError) Error() string {
	return fmt.Sprintf("remote host %s unreachable: %v", e.Host, e.Err)
}

func (e *RemoteUnreachableError) Unwrap() error { return e.Err }

// ConfirmationRequiredError gates destructive operations behind --force.
type ConfirmationRequiredError struct {
	Operation string
	AppKey    string
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("%s of %q is destructive and irreversible: pass --force to confirm", e.Operation, e.AppKey)
}

// StepError carries the failing step name and a stderr excerpt across
// component boundaries.
type StepError struct {
	Step   string
	Detail string
	Err    error
}

func (e *StepError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("step %q failed: %s", e.Step, e.Detail)
	}
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
