package motion

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audiosession"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/recorder"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/records"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

type fakeSource struct {
	mu     sync.Mutex
	system float64
}

func (f *fakeSource) Uptime() float64 { return f.SystemUptime() }

func (f *fakeSource) SystemUptime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.system
}

func (f *fakeSource) Now() time.Time {
	return time.Date(2021, 1, 22, 14, 40, 13, 0, time.UTC).Add(time.Duration(f.SystemUptime() * float64(time.Second)))
}

func (f *fakeSource) set(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system = v
}

type fakeSensors struct {
	mu       sync.Mutex
	req      Request
	sink     func(Event)
	startErr error
	stopped  bool
}

func (s *fakeSensors) Start(_ context.Context, req Request, sink func(Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.req, s.sink = req, sink
	return nil
}

func (s *fakeSensors) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeSensors) emit(e Event) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	sink(e)
}

func (s *fakeSensors) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeSession struct{}

func (fakeSession) Apply(audiosession.Settings) error { return nil }
func (fakeSession) Deactivate() error                 { return nil }
func (fakeSession) PlaySilence() error                { return nil }
func (fakeSession) StopSilence() error                { return nil }

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func readItems(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(data, &items))
	return items
}

func TestMotionRecording(t *testing.T) {
	clockSource := &fakeSource{system: 100}
	sensors := &fakeSensors{}
	m := New(Options{
		Configuration: action.MotionConfiguration{
			Common:        action.Common{ID: "motion"},
			RecorderTypes: []action.MotionRecorderType{action.Accelerometer, action.Attitude, action.Gravity},
			Frequency:     50,
		},
		Source: sensors,
		Base: recorder.Options{
			OutputDirectory: t.TempDir(),
			InitialStepPath: "intro",
			TimeSource:      clockSource,
		},
	})
	ctx := testContext(t)
	require.NoError(t, m.Start(ctx))

	assert.Equal(t, records.ZUp, sensors.req.Frame)
	assert.Equal(t, 20*time.Millisecond, sensors.req.Interval)

	sensors.emit(VectorEvent{SystemUptime: 100.1, SensorType: action.Accelerometer, X: 0.1, Y: 0.2, Z: 0.3})
	sensors.emit(VectorEvent{SystemUptime: 100.15, SensorType: action.Gyro, X: 1})
	sensors.emit(DeviceMotionEvent{
		SystemUptime: 100.2,
		Frame:        records.ZUp,
		DeviceMotion: records.DeviceMotion{
			Attitude: records.Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9},
			Gravity:  records.Vector{Z: -1},
			Heading:  -1,
		},
	})

	clockSource.set(100.3)
	m.MoveTo("walk")
	sensors.emit(VectorEvent{SystemUptime: 100.4, SensorType: action.Accelerometer, X: 1})

	m.Pause()
	sensors.emit(VectorEvent{SystemUptime: 100.5, SensorType: action.Accelerometer, X: 2})
	m.Resume()

	res, err := m.Stop(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return m.Status() == action.Finished }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, sensors.isStopped())

	file := res.(result.File)
	assert.Equal(t, records.SchemaBaseURL+"MotionRecord.json", file.JSONSchema)
	items := readItems(t, file.URL)
	require.Len(t, items, 6)

	assert.NotContains(t, items[0], "sensorType", "start marker")
	assert.Equal(t, "intro", items[0]["stepPath"])

	assert.Equal(t, "accelerometer", items[1]["sensorType"])
	assert.Equal(t, "intro", items[1]["stepPath"])
	assert.InDelta(t, 0.1, items[1]["timestamp"], 1e-9)

	assert.Equal(t, "attitude", items[2]["sensorType"])
	assert.Equal(t, "Z-Up", items[2]["referenceCoordinate"])
	assert.Equal(t, 0.9, items[2]["w"])
	assert.NotContains(t, items[2], "heading")
	assert.Equal(t, "gravity", items[3]["sensorType"])

	assert.NotContains(t, items[4], "sensorType")
	assert.Equal(t, "walk", items[4]["stepPath"])
	assert.Equal(t, "walk", items[5]["stepPath"])
	assert.Equal(t, 1.0, items[5]["x"])
}

func TestMagneticFieldUsesNorth(t *testing.T) {
	m := New(Options{
		Configuration: action.MotionConfiguration{
			Common:        action.Common{ID: "motion"},
			RecorderTypes: []action.MotionRecorderType{action.MagneticField},
		},
		Source: &fakeSensors{},
		Base:   recorder.Options{OutputDirectory: t.TempDir()},
	})
	assert.Equal(t, records.NorthWestUp, m.Frame())
}

func TestMotionStartFailure(t *testing.T) {
	boom := errors.New("no sensors")
	m := New(Options{
		Configuration: action.MotionConfiguration{Common: action.Common{ID: "motion"}},
		Source:        &fakeSensors{startErr: boom},
		Base:          recorder.Options{OutputDirectory: t.TempDir(), TimeSource: &fakeSource{}},
	})
	err := m.Start(testContext(t))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, action.Failed, m.Status())
}

func TestMotionCSVWithBackgroundAudio(t *testing.T) {
	sensors := &fakeSensors{}
	audio := audiosession.NewController(fakeSession{}, nil)
	clockSource := &fakeSource{system: 10}
	m := New(Options{
		Configuration: action.MotionConfiguration{
			Common:          action.Common{ID: "motion"},
			BackgroundAudio: true,
			UsesCSVEncoding: true,
		},
		Source:       sensors,
		AudioSession: audio,
		Base:         recorder.Options{OutputDirectory: t.TempDir(), TimeSource: clockSource, InitialStepPath: "a"},
	})
	ctx := testContext(t)
	require.NoError(t, m.Start(ctx))
	assert.True(t, audio.IsSilencePlaying())

	sensors.emit(VectorEvent{SystemUptime: 10.5, SensorType: action.Gyro, X: 1, Y: 2, Z: 3})
	res, err := m.Stop(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return audio.Current() == nil }, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(res.(result.File).URL)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(records.MotionRecord{}.CodingKeys(), ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "10.5,0.5,a,,gyro,"))
}

func TestParseEvent(t *testing.T) {
	e, err := ParseEvent([]byte(`{"uptime": 3.5, "vector": {"sensorType": "gyro", "x": 1, "y": 2, "z": 3}}`))
	require.NoError(t, err)
	assert.Equal(t, VectorEvent{SystemUptime: 3.5, SensorType: action.Gyro, X: 1, Y: 2, Z: 3}, e)

	e, err = ParseEvent([]byte(`{"uptime": 4, "deviceMotion": {"gravity": {"z": -1}, "heading": 90}}`))
	require.NoError(t, err)
	dm := e.(DeviceMotionEvent)
	assert.Equal(t, records.ZUp, dm.Frame)
	assert.Equal(t, -1.0, dm.Gravity.Z)
	assert.Equal(t, 90.0, dm.Heading)

	_, err = ParseEvent([]byte(`{"uptime": 4}`))
	assert.Error(t, err)
	_, err = ParseEvent([]byte(`nope`))
	assert.Error(t, err)
}

func TestReplaySource(t *testing.T) {
	input := strings.Join([]string{
		`{"uptime": 50.0, "vector": {"sensorType": "accelerometer", "x": 1}}`,
		``,
		`{"uptime": 50.25, "vector": {"sensorType": "gyro", "x": 2}}`,
		`{"uptime": 50.5, "deviceMotion": {"gravity": {"z": -1}}}`,
		`{"uptime": 51.0, "vector": {"sensorType": "accelerometer", "x": 3}}`,
	}, "\n")
	src := &ReplaySource{Reader: strings.NewReader(input), TimeSource: &fakeSource{system: 7}}

	var (
		mu     sync.Mutex
		events []Event
	)
	err := src.Start(context.Background(), Request{Types: []action.MotionRecorderType{action.Accelerometer, action.Gravity}}, func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	require.NoError(t, err)

	select {
	case <-src.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}
	require.NoError(t, src.Stop())
	require.NoError(t, src.Err())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, 7.0, events[0].Uptime())
	assert.IsType(t, DeviceMotionEvent{}, events[1])
	assert.Equal(t, 7.5, events[1].Uptime())
	assert.Equal(t, 8.0, events[2].Uptime())

	assert.Error(t, src.Start(context.Background(), Request{}, func(Event) {}), "a source plays once")
}
