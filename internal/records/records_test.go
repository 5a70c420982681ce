package records

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
)

var testZone = time.FixedZone("test", int(-2.5*60*60))

func TestAudioLevelRecordDecode(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "microphone_levels_record.json"))
	require.NoError(t, err)

	var r AudioLevelRecord
	require.NoError(t, json.Unmarshal(data, &r))
	assert.InDelta(t, -41.02, *r.Average, 0.01)
	assert.InDelta(t, -35.46, *r.Peak, 0.01)
	assert.InDelta(t, 1, *r.TimeInterval, 0.01)
	assert.InDelta(t, 1.90, *r.Timestamp, 0.01)
	assert.InDelta(t, 356541.29, *r.Uptime, 0.01)
	assert.Equal(t, "dbFS", r.Unit)
	assert.Equal(t, "Dimensional Change Card Sort", r.StepPath)

	encoded, err := json.Marshal(r)
	require.NoError(t, err)
	var dict map[string]any
	require.NoError(t, json.Unmarshal(encoded, &dict))
	assert.InDelta(t, -41.02, dict["average"], 0.01)
	assert.Equal(t, "dbFS", dict["unit"])
	assert.Equal(t, "2021-01-22T12:10:13.000-02:30", dict["timestampDate"])
}

func TestMarkerKeys(t *testing.T) {
	m := NewMarker(123456789, 0, time.Date(2021, 1, 22, 14, 40, 13, 0, testZone), "foo/baroo")
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var dict map[string]any
	require.NoError(t, json.Unmarshal(data, &dict))
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"uptime", "stepPath", "timestampDate", "timestamp"}, keys)
	assert.Equal(t, "2021-01-22T14:40:13.000-02:30", dict["timestampDate"])
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(NewMarker(1, 0, time.Now(), "a")))
	assert.NoError(t, Validate(NewAudioLevelRecord(1, 2, "a", 1, -40, -30)))

	err := Validate(AudioLevelRecord{StepPath: "a"})
	var verr *action.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, action.UnexpectedNullObject, verr.Kind)

	dated := MotionRecord{StepPath: "a", TimestampDate: NewDate(time.Now())}
	assert.NoError(t, Validate(dated))
}

func roundTrip[T any](t *testing.T, want T) {
	t.Helper()
	data, err := json.Marshal(want)
	require.NoError(t, err)
	var got T
	require.NoError(t, json.Unmarshal(data, &got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	date := time.Date(2021, 1, 22, 14, 40, 13, 250*int(time.Millisecond), testZone)
	device := DeviceMotion{
		Attitude:         Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9},
		Gravity:          Vector{X: 0, Y: 0, Z: -1},
		MagneticField:    Vector{X: 20, Y: -5, Z: 40},
		MagneticAccuracy: 2,
		Heading:          271.5,
	}
	attitude, ok := NewDeviceMotionRecord("walk", device, NorthWestUp, action.Attitude, 10.5, 0.5)
	require.True(t, ok)

	t.Run("marker", func(t *testing.T) { roundTrip(t, NewMarker(356541.29, 0, date, "intro")) })
	t.Run("motion marker", func(t *testing.T) { roundTrip(t, NewMotionMarker(356541.29, 0, date, "intro")) })
	t.Run("vector", func(t *testing.T) {
		roundTrip(t, NewVectorRecord("walk", action.Gyro, Vector{X: 1.5, Y: -2, Z: 0.25}, 11, 1))
	})
	t.Run("attitude", func(t *testing.T) { roundTrip(t, attitude) })
	t.Run("audio", func(t *testing.T) { roundTrip(t, NewAudioLevelRecord(356541.29, 1.9, "card sort", 1, -41.02, -35.46)) })
	t.Run("location", func(t *testing.T) {
		floor := 2
		roundTrip(t, LocationRecord{
			Uptime:             Float(100),
			Timestamp:          Float(3),
			StepPath:           "run",
			TimestampDate:      NewDate(date),
			HorizontalAccuracy: Float(4.5),
			RelativeDistance:   Float(12.3),
			TotalDistance:      Float(40.1),
			Speed:              Float(2.2),
			Floor:              &floor,
		})
	})
}

func TestDeviceMotionMapping(t *testing.T) {
	device := DeviceMotion{
		Attitude:         Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9},
		Gravity:          Vector{X: 0.01, Y: 0.02, Z: -0.99},
		UserAcceleration: Vector{X: 0.5, Y: 0.6, Z: 0.7},
		RotationRate:     Vector{X: 1, Y: 2, Z: 3},
		MagneticField:    Vector{X: 20, Y: -5, Z: 40},
		MagneticAccuracy: 1,
		Heading:          -1,
	}

	att, ok := NewDeviceMotionRecord("a", device, ZUp, action.Attitude, 1, 0)
	require.True(t, ok)
	assert.Equal(t, 0.9, *att.W)
	assert.Equal(t, ZUp, *att.ReferenceCoordinate)
	assert.Equal(t, 1, *att.EventAccuracy)
	assert.Nil(t, att.Heading, "negative heading is dropped for attitude")
	assert.Nil(t, att.TimestampDate)

	mag, ok := NewDeviceMotionRecord("a", device, ZUp, action.MagneticField, 1, 0)
	require.True(t, ok)
	assert.Equal(t, 20.0, *mag.X)
	assert.Equal(t, -1.0, *mag.Heading)
	assert.Nil(t, mag.W)

	rot, ok := NewDeviceMotionRecord("a", device, ZUp, action.RotationRate, 1, 0)
	require.True(t, ok)
	assert.Equal(t, 3.0, *rot.Z)

	user, ok := NewDeviceMotionRecord("a", device, ZUp, action.UserAcceleration, 1, 0)
	require.True(t, ok)
	assert.Equal(t, 0.5, *user.X)

	grav, ok := NewDeviceMotionRecord("a", device, ZUp, action.Gravity, 1, 0)
	require.True(t, ok)
	assert.Equal(t, -0.99, *grav.Z)

	_, ok = NewDeviceMotionRecord("a", device, ZUp, action.Accelerometer, 1, 0)
	assert.False(t, ok)
}

func TestDelimiterValuesAlignWithKeys(t *testing.T) {
	rows := []DelimiterSeparated{
		NewMarker(1, 0, time.Now(), "a"),
		NewMotionMarker(1, 0, time.Now(), "a"),
		NewAudioLevelRecord(1, 0, "a", 1, -40, -30),
		LocationRecord{StepPath: "a"},
	}
	for _, r := range rows {
		assert.Len(t, r.Values(), len(r.CodingKeys()))
	}

	values := NewVectorRecord("walk", action.Accelerometer, Vector{X: 1}, 2, 3).Values()
	assert.Equal(t, []any{2.0, 3.0, "walk", nil, "accelerometer", nil, nil, nil, 1.0, 0.0, 0.0, nil}, values)
}

func TestJSONSchema(t *testing.T) {
	assert.Equal(t, SchemaBaseURL+"MotionRecord.json", JSONSchema(MotionRecord{}))
	assert.Equal(t, SchemaBaseURL+"AudioLevelRecord.json", JSONSchema(&AudioLevelRecord{}))
	assert.Equal(t, SchemaBaseURL+"LocationRecord.json", JSONSchema(LocationRecord{}))
}
