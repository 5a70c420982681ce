// Package audio measures microphone levels and records them as audio level
// samples.
package audio

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Level is the averaged and peak power of one metering interval in dBFS.
type Level struct {
	Average float64
	Peak    float64
}

// Meter reports a Level once per interval until stopped.
type Meter interface {
	Start(ctx context.Context, interval time.Duration, sink func(Level)) error
	Stop() error
}

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeAuto     BackendType = "auto"
)

// NewMeter creates a meter for the named backend reading from source. An
// empty source uses the default input.
func NewMeter(backend, source string) (Meter, error) {
	switch determineBackend(backend) {
	case BackendTypePipeWire:
		return NewPipeWireMeter(source), nil
	}
	return nil, fmt.Errorf("unsupported audio backend: %s", backend)
}

// ListSources lists the capture sources of the named backend.
func ListSources(backend string) ([]string, error) {
	switch determineBackend(backend) {
	case BackendTypePipeWire:
		return NewPipeWire().ListSources()
	}
	return nil, fmt.Errorf("unsupported audio backend: %s", backend)
}

func determineBackend(name string) BackendType {
	switch strings.ToLower(name) {
	case "", string(BackendTypeAuto), string(BackendTypePipeWire):
		// Only PipeWire is available
		return BackendTypePipeWire
	}
	return BackendType(name)
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypePipeWire}
}
