// Package observe turns recorder lifecycle changes into events that can be
// stored, traced or streamed to clients.
package observe

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSession Kind = "session"
	KindStatus  Kind = "status"
	KindStep    Kind = "step"
	KindResult  Kind = "result"
	KindError   Kind = "error"
	KindCustom  Kind = "custom"
)

type Event struct {
	ID         string         `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"sessionId,omitempty"`
	Recorder   string         `json:"recorder,omitempty"`
	Kind       Kind           `json:"kind"`
	From       string         `json:"from,omitempty"`
	To         string         `json:"to,omitempty"`
	StepPath   string         `json:"stepPath,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
