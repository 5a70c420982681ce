// Package action defines the contract shared by every background action a
// task can run: its lifecycle status, its configuration and the controller
// interface hosts drive it through.
package action

import (
	"fmt"
)

// Status is the lifecycle state of an action. The values are ordered; an
// action only moves forward, except for the jump to Cancelled or Failed.
type Status int

const (
	Idle Status = iota
	RequestingPermission
	PermissionGranted
	Starting
	Running
	WaitingToStop
	ProcessingResults
	Stopping
	Finished
	Cancelled
	Failed
)

var statusNames = [...]string{
	Idle:                 "idle",
	RequestingPermission: "requestingPermission",
	PermissionGranted:    "permissionGranted",
	Starting:             "starting",
	Running:              "running",
	WaitingToStop:        "waitingToStop",
	ProcessingResults:    "processingResults",
	Stopping:             "stopping",
	Finished:             "finished",
	Cancelled:            "cancelled",
	Failed:               "failed",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsTerminal reports whether no further transition is expected.
func (s Status) IsTerminal() bool {
	return s >= Finished
}

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts a status name back to its value.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return Idle, NewValidationError(InvalidValue, fmt.Sprintf("unknown status '%s'", name))
}
