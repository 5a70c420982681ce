package action

import (
	"context"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

// Controller is implemented by every recorder a task session drives.
//
// Start and Stop block until the action completes or ctx is done; when ctx
// ends first the action is cancelled. Exactly one of the returned values is
// meaningful: a non-nil error, or a usable result.
type Controller interface {
	Identifier() string
	Configuration() Configuration
	Status() Status
	Err() error
	Result() result.Data

	RequestPermissions(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) (result.Data, error)
	Cancel()

	MoveTo(stepPath string)
	Pause()
	Resume()
	IsPaused() bool

	// Subscribe registers o and returns a function that removes it.
	Subscribe(o Observer) (unsubscribe func())
}

// StatusEvent is delivered whenever a controller changes status.
type StatusEvent struct {
	Identifier string
	From       Status
	To         Status
	Err        error
	Time       time.Time
}

// StepEvent is delivered when a controller is moved to a new step.
type StepEvent struct {
	Identifier string
	StepPath   string
	Time       time.Time
}

// Observer receives controller events. Events for one controller arrive
// on a single goroutine in the order they happened.
type Observer interface {
	StatusChanged(StatusEvent)
	StepChanged(StepEvent)
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	OnStatus func(StatusEvent)
	OnStep   func(StepEvent)
}

func (o ObserverFuncs) StatusChanged(e StatusEvent) {
	if o.OnStatus != nil {
		o.OnStatus(e)
	}
}

func (o ObserverFuncs) StepChanged(e StepEvent) {
	if o.OnStep != nil {
		o.OnStep(e)
	}
}

// Delegate is told when a controller fails on its own, outside of a call
// made by the host.
type Delegate interface {
	DidFail(c Controller, err error)
}

// DelegateFunc adapts a function to Delegate.
type DelegateFunc func(c Controller, err error)

func (f DelegateFunc) DidFail(c Controller, err error) { f(c, err) }
