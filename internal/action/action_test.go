package action

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/permission"
)

func TestStatusOrder(t *testing.T) {
	order := []Status{Idle, RequestingPermission, PermissionGranted, Starting, Running,
		WaitingToStop, ProcessingResults, Stopping, Finished, Cancelled, Failed}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i])
	}
	assert.True(t, Finished.IsTerminal())
	assert.True(t, Failed.IsTerminal())
	assert.False(t, Stopping.IsTerminal())
}

func TestStatusText(t *testing.T) {
	data, err := json.Marshal(map[string]Status{"status": WaitingToStop})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"waitingToStop"}`, string(data))

	var decoded map[string]Status
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, WaitingToStop, decoded["status"])

	_, err = ParseStatus("sleeping")
	assert.True(t, errors.Is(err, &ValidationError{Kind: InvalidValue}))
}

func TestDecodeMotionDefaults(t *testing.T) {
	c, err := DecodeConfiguration([]byte(`{"type":"motion","identifier":"motion"}`))
	require.NoError(t, err)
	m, ok := c.(MotionConfiguration)
	require.True(t, ok)
	assert.Equal(t, []MotionRecorderType{Accelerometer, Gyro}, m.Types())
	assert.Equal(t, 100.0, m.SamplingFrequency())
	assert.True(t, m.ShouldDeletePrevious())
	assert.False(t, m.RequiresBackgroundAudio())
	assert.Equal(t, []permission.Type{permission.Motion}, m.Permissions())
}

func TestConfigurationRoundTrip(t *testing.T) {
	no := false
	configs := []Configuration{
		MicrophoneConfiguration{
			Common:          Common{ID: "microphone", StartStep: "countdown", StopStep: "rest"},
			BackgroundAudio: true,
			SaveAudioFile:   true,
		},
		MotionConfiguration{
			Common:          Common{ID: "exampleB"},
			RecorderTypes:   []MotionRecorderType{Gyro, Gravity},
			BackgroundAudio: true,
			Frequency:       200,
			DeletePrevious:  &no,
			UsesCSVEncoding: true,
		},
		DistanceConfiguration{
			Common:               Common{ID: "distance", StartStep: "countdown", StopStep: "rest"},
			MotionStepIdentifier: "run",
		},
		WeatherConfiguration{
			Common: Common{ID: "weather", StartStep: "countdown"},
			Services: []WeatherServiceConfiguration{
				{Identifier: "weather", Provider: ProviderOpenWeather, Key: "ABCD"},
				{Identifier: "airQuality", Provider: ProviderAirNow, Key: "ABCD"},
			},
		},
	}

	for _, want := range configs {
		t.Run(want.Type(), func(t *testing.T) {
			data, err := EncodeConfiguration(want)
			require.NoError(t, err)

			var head map[string]any
			require.NoError(t, json.Unmarshal(data, &head))
			assert.Equal(t, want.Type(), head["type"])

			got, err := DecodeConfiguration(data)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("configuration mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDistanceAlwaysBackground(t *testing.T) {
	c := DistanceConfiguration{Common: Common{ID: "distance"}}
	assert.True(t, c.RequiresBackgroundAudio())
	assert.Equal(t, []permission.Type{permission.Location, permission.Motion}, c.Permissions())
}

func TestDecodeConfigurationErrors(t *testing.T) {
	_, err := DecodeConfiguration([]byte(`{"type":"camera","identifier":"x"}`))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, InvalidType, verr.Kind)

	_, err = DecodeConfiguration([]byte(`{"type":"motion"}`))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, UnexpectedNullObject, verr.Kind)
	assert.Contains(t, verr.Message, "identifier")

	_, err = DecodeConfiguration([]byte(`{"type":"motion","identifier":"m","recorderTypes":["barometer"]}`))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, InvalidValue, verr.Kind)

	_, err = DecodeConfiguration([]byte(`{"type":"weather","identifier":"w","services":[{"identifier":"a","provider":"darkSky","key":"k"}]}`))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, InvalidValue, verr.Kind)

	_, err = DecodeConfiguration([]byte(`{"type":"weather","identifier":"w","services":[
		{"identifier":"a","provider":"airNow","key":"k"},
		{"identifier":"a","provider":"openWeather","key":"k"}]}`))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, NotUniqueIdentifiers, verr.Kind)
}

func TestValidateIdentifiers(t *testing.T) {
	err := ValidateIdentifiers([]Configuration{
		MotionConfiguration{Common: Common{ID: "a"}},
		DistanceConfiguration{Common: Common{ID: "a"}},
	})
	assert.True(t, errors.Is(err, &ValidationError{Kind: NotUniqueIdentifiers}))
}

func TestMotionRecorderTypeIsDeviceMotion(t *testing.T) {
	assert.False(t, Accelerometer.IsDeviceMotion())
	assert.False(t, Gyro.IsDeviceMotion())
	assert.False(t, Magnetometer.IsDeviceMotion())
	assert.True(t, Attitude.IsDeviceMotion())
	assert.True(t, UserAcceleration.IsDeviceMotion())
}
