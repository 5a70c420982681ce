package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audiosession"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/recorder"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-3 }

func TestComputeLevel(t *testing.T) {
	half := make([]int16, 100)
	for i := range half {
		half[i] = 16384
		if i%2 == 1 {
			half[i] = -16384
		}
	}
	level := ComputeLevel(half)
	if !almostEqual(level.Average, -6.0206) || !almostEqual(level.Peak, -6.0206) {
		t.Errorf("Expected -6.02 dBFS, got %+v", level)
	}

	silent := ComputeLevel(make([]int16, 10))
	if silent.Average != SilenceFloor || silent.Peak != SilenceFloor {
		t.Errorf("Expected silence floor, got %+v", silent)
	}
	if empty := ComputeLevel(nil); empty.Peak != SilenceFloor {
		t.Errorf("Expected silence floor for no samples, got %+v", empty)
	}
}

func pcm(samples ...int16) []byte {
	var buf bytes.Buffer
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func TestMeterPCM(t *testing.T) {
	data := pcm(16384, -16384, 0, 0, 100)
	var levels []Level
	var tee bytes.Buffer

	if err := meterPCM(bytes.NewReader(data), 2, &tee, func(l Level) { levels = append(levels, l) }); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("Expected 2 levels for 2 full frames, got %d", len(levels))
	}
	if !almostEqual(levels[0].Average, -6.0206) {
		t.Errorf("Expected first frame at -6.02 dBFS, got %v", levels[0].Average)
	}
	if levels[1].Peak != SilenceFloor {
		t.Errorf("Expected silent second frame, got %v", levels[1].Peak)
	}
	if !bytes.Equal(tee.Bytes(), data) {
		t.Errorf("Expected tee to receive every byte, got %d of %d", tee.Len(), len(data))
	}
}

func TestWAVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mic.wav")
	w, err := createWAV(path, 8000)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	w.Write(pcm(1, 2, 3))
	if err := w.Close(); err != nil {
		t.Fatalf("Expected no error closing, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 44+6 {
		t.Fatalf("Expected 50 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Errorf("Unexpected header %q", data[:44])
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != 6 {
		t.Errorf("Expected data size 6, got %d", size)
	}
	if size := binary.LittleEndian.Uint32(data[4:8]); size != 42 {
		t.Errorf("Expected chunk size 42, got %d", size)
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", rate)
	}
}

type fakeMeter struct {
	mu       sync.Mutex
	sink     func(Level)
	interval time.Duration
	stopped  bool
}

func (m *fakeMeter) Start(_ context.Context, interval time.Duration, sink func(Level)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink, m.interval = sink, interval
	return nil
}

func (m *fakeMeter) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *fakeMeter) emit(l Level) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	sink(l)
}

type fakeTime struct {
	mu     sync.Mutex
	system float64
}

func (f *fakeTime) Uptime() float64 { return f.SystemUptime() }
func (f *fakeTime) SystemUptime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.system
}
func (f *fakeTime) Now() time.Time { return time.Unix(1611355213, 0).UTC() }
func (f *fakeTime) set(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system = v
}

type nullSession struct{}

func (nullSession) Apply(audiosession.Settings) error { return nil }
func (nullSession) Deactivate() error                 { return nil }
func (nullSession) PlaySilence() error                { return nil }
func (nullSession) StopSilence() error                { return nil }

func TestLevelRecorder(t *testing.T) {
	meter := &fakeMeter{}
	clockSource := &fakeTime{system: 200}
	session := audiosession.NewController(nullSession{}, nil)
	dir := t.TempDir()

	l := NewLevelRecorder(Options{
		Configuration: action.MicrophoneConfiguration{Common: action.Common{ID: "microphone"}, Interval: 0.5},
		Meter:         meter,
		AudioSession:  session,
		Base: recorder.Options{
			OutputDirectory:   dir,
			SectionIdentifier: "tapping",
			InitialStepPath:   "left",
			TimeSource:        clockSource,
			DisableMarkers:    true,
		},
	})
	if got := l.LevelsLoggerIdentifier(); got != "tapping_microphone_levels" {
		t.Errorf("Expected logger tapping_microphone_levels, got %s", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Expected start to succeed, got %v", err)
	}
	if meter.interval != 500*time.Millisecond {
		t.Errorf("Expected 500ms interval, got %s", meter.interval)
	}
	if current := session.Current(); current == nil || current.Category != audiosession.Record {
		t.Errorf("Expected record session while metering, got %+v", current)
	}

	clockSource.set(200.5)
	meter.emit(Level{Average: -41.02, Peak: -35.46})
	l.MoveTo("right")
	clockSource.set(201)
	meter.emit(Level{Average: -30, Peak: -20})

	res, err := l.Stop(ctx)
	if err != nil {
		t.Fatalf("Expected stop to succeed, got %v", err)
	}
	if !meter.stopped {
		t.Error("Expected the meter to be stopped")
	}
	if session.Current() != nil {
		t.Error("Expected the audio session to be released")
	}

	file, ok := res.(result.File)
	if !ok {
		t.Fatalf("Expected a file result, got %T", res)
	}
	if file.Identifier() != "microphone_levels" {
		t.Errorf("Expected identifier microphone_levels, got %s", file.Identifier())
	}
	if file.URL != filepath.Join(dir, "tapping_microphone_levels.json") {
		t.Errorf("Unexpected file %s", file.URL)
	}

	data, err := os.ReadFile(file.URL)
	if err != nil {
		t.Fatal(err)
	}
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 level records, got %d", len(items))
	}
	first, second := items[0], items[1]
	if first["stepPath"] != "left" || second["stepPath"] != "right" {
		t.Errorf("Expected steps left and right, got %v and %v", first["stepPath"], second["stepPath"])
	}
	if first["timestamp"] != 0.5 || first["uptime"] != 200.5 || first["timeInterval"] != 0.5 {
		t.Errorf("Unexpected timing in %v", first)
	}
	if first["average"] != -41.02 || first["peak"] != -35.46 || first["unit"] != "dbFS" {
		t.Errorf("Unexpected level in %v", first)
	}
}
