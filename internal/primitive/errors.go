package primitive

import (
	"errors"
	"fmt"
)

// Reason classifies why a primitive call failed.
type Reason uint8

const (
	ReasonUnknown Reason = iota
	ReasonNotFound
	ReasonAccessDenied
	ReasonAlreadySuspended
	ReasonUnsupported
	// ReasonTransient failures may succeed if issued again once.
	ReasonTransient
)

var reasonNames = [...]string{
	ReasonUnknown:          "unknown",
	ReasonNotFound:         "not_found",
	ReasonAccessDenied:     "access_denied",
	ReasonAlreadySuspended: "already_suspended",
	ReasonUnsupported:      "unsupported",
	ReasonTransient:        "transient",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

// Op names the primitive that failed.
type Op uint8

const (
	OpSnapshot Op = iota
	OpSuspend
	OpResume
	OpTrimWorkingSet
	OpReadValue
	OpWriteValue
	OpDeleteValue
	OpListSubKeys
	OpActivePowerPlan
	OpSetPowerPlan
)

var opNames = [...]string{
	OpSnapshot:        "snapshot",
	OpSuspend:         "suspend",
	OpResume:          "resume",
	OpTrimWorkingSet:  "trim_working_set",
	OpReadValue:       "read_value",
	OpWriteValue:      "write_value",
	OpDeleteValue:     "delete_value",
	OpListSubKeys:     "list_subkeys",
	OpActivePowerPlan: "active_power_plan",
	OpSetPowerPlan:    "set_power_plan",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Failure is the typed error returned by every primitive.
type Failure struct {
	Op     Op
	Target string
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s %s: %s", f.Op, f.Target, f.Reason)
	}
	return fmt.Sprintf("%s %s: %s: %v", f.Op, f.Target, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Fail builds a *Failure.
func Fail(op Op, target string, reason Reason, err error) *Failure {
	return &Failure{Op: op, Target: target, Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from err. Errors that are not a
// *Failure report ReasonUnknown; nil reports ReasonUnknown as well.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonUnknown
}

// IsNotFound reports whether err means the target no longer exists.
func IsNotFound(err error) bool { return err != nil && ReasonOf(err) == ReasonNotFound }

// IsTransient reports whether err may clear up on a single retry.
func IsTransient(err error) bool { return err != nil && ReasonOf(err) == ReasonTransient }

// MarshalText renders the reason by name in JSON results.
func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// MarshalText renders the op by name in JSON results.
func (o Op) MarshalText() ([]byte, error) { return []byte(o.String()), nil }
