package observe

import (
	"context"
	"log/slog"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

// Bridge returns an observer that forwards recorder events of one session
// to sink.
func Bridge(sessionID string, sink Sink) action.Observer {
	return &bridge{sessionID: sessionID, sink: sink}
}

type bridge struct {
	sessionID string
	sink      Sink
}

func (b *bridge) emit(e Event) {
	e.SessionID = b.sessionID
	e.Normalize()
	if err := b.sink.Emit(context.Background(), e); err != nil {
		slog.Warn("Failed to emit event", "kind", e.Kind, "recorder", e.Recorder, "error", err)
	}
}

func (b *bridge) StatusChanged(e action.StatusEvent) {
	b.emit(FromStatusEvent(e))
}

func (b *bridge) StepChanged(e action.StepEvent) {
	b.emit(Event{
		Timestamp: e.Time,
		Recorder:  e.Identifier,
		Kind:      KindStep,
		StepPath:  e.StepPath,
	})
}

// FromStatusEvent converts a status change. A failure becomes an error
// event.
func FromStatusEvent(e action.StatusEvent) Event {
	out := Event{
		Timestamp: e.Time,
		Recorder:  e.Identifier,
		Kind:      KindStatus,
		From:      e.From.String(),
		To:        e.To.String(),
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
		if e.To == action.Failed {
			out.Kind = KindError
		}
	}
	return out
}

// FromResult describes a result handed back by a recorder.
func FromResult(sessionID, recorder string, data result.Data) Event {
	e := Event{
		Timestamp: data.EndDate(),
		SessionID: sessionID,
		Recorder:  recorder,
		Kind:      KindResult,
		Message:   data.Identifier(),
		Attributes: map[string]any{
			"resultType": data.Type(),
		},
	}
	if f, ok := data.(result.File); ok {
		e.Attributes["path"] = f.RelativePath
		e.Attributes["sampleCount"] = f.SampleCount
	}
	e.Normalize()
	return e
}
