package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
)

func strPtr(s string) *string { return &s }

func TestMergeConfigs_SelectionAndFallback(t *testing.T) {
	base := &Config{
		Section: "default",
		Steps:   []string{"instructions", "active", "rest"},
		Recorders: []RecorderDefinition{
			{ID: "motion", Type: "motion", StartStepIdentifier: "active", StopStepIdentifier: "rest"},
			{ID: "microphone", Type: "microphone"},
		},
		Output: OutputConfig{Directory: "~/PassiveData", Store: "/var/mpd.db"},
		Sources: SourcesConfig{
			Audio:  AudioSourceConfig{Backend: "pipewire", Source: "mic"},
			Motion: MotionSourceConfig{Replay: "walk.jsonl"},
		},
	}

	profile := &Config{
		Section: "walk",
		Recorders: []RecorderDefinition{
			{ID: "motion", Type: "motion", StopStepIdentifier: "active"},
			{ID: "distance", Type: "distance"},
		},
		Output:  OutputConfig{Directory: "~/Walks"},
		Sources: SourcesConfig{Audio: AudioSourceConfig{Source: "usb"}},
	}

	result := mergeConfigs(base, profile)

	// Only the recorders listed in the profile run
	if len(result.Recorders) != 2 {
		t.Fatalf("Expected 2 recorders, got %d", len(result.Recorders))
	}
	motion := result.Recorders[0]
	if motion.StartStepIdentifier != "active" {
		t.Errorf("Expected start step inherited from base, got %q", motion.StartStepIdentifier)
	}
	if motion.StopStepIdentifier != "active" {
		t.Errorf("Expected profile stop step to win, got %q", motion.StopStepIdentifier)
	}
	if result.Recorders[1].ID != "distance" {
		t.Errorf("Expected distance recorder, got %+v", result.Recorders[1])
	}

	if result.Section != "walk" {
		t.Errorf("Expected section 'walk', got %s", result.Section)
	}
	if len(result.Steps) != 3 {
		t.Errorf("Expected steps inherited from base, got %v", result.Steps)
	}
	if result.Output.Directory != "~/Walks" {
		t.Errorf("Expected directory '~/Walks', got %s", result.Output.Directory)
	}
	if result.Output.Store != "/var/mpd.db" {
		t.Errorf("Expected store inherited, got %s", result.Output.Store)
	}
	if result.Sources.Audio.Backend != "pipewire" || result.Sources.Audio.Source != "usb" {
		t.Errorf("Expected audio backend inherited and source overridden, got %+v", result.Sources.Audio)
	}
	if result.Sources.Motion.Replay != "walk.jsonl" {
		t.Errorf("Expected motion replay inherited, got %q", result.Sources.Motion.Replay)
	}

	if result.Inheritance == nil {
		t.Fatal("Inheritance tracking not initialized")
	}
	if result.Inheritance.Section != "profile-specific" {
		t.Errorf("Expected section to be profile-specific, got %s", result.Inheritance.Section)
	}
	if result.Inheritance.Steps != "inherited" {
		t.Errorf("Expected steps to be inherited, got %s", result.Inheritance.Steps)
	}
	if result.Inheritance.Sources.Audio != "profile-specific" {
		t.Errorf("Expected audio source to be profile-specific, got %s", result.Inheritance.Sources.Audio)
	}
	if result.Inheritance.Sources.Motion != "inherited" {
		t.Errorf("Expected motion source to be inherited, got %s", result.Inheritance.Sources.Motion)
	}
}

func TestMergeConfigs_ProfileOnly(t *testing.T) {
	profile := &Config{
		Section:   "walk",
		Recorders: []RecorderDefinition{{ID: "motion", Type: "motion"}},
	}

	result := mergeConfigs(nil, profile)
	if result.Section != "walk" || len(result.Recorders) != 1 {
		t.Errorf("Expected profile values, got %+v", result)
	}
}

func TestMergeConfigs_EmptyProfile(t *testing.T) {
	base := &Config{
		Section:   "default",
		Recorders: []RecorderDefinition{{ID: "motion", Type: "motion"}},
	}

	result := mergeConfigs(base, &Config{})
	if len(result.Recorders) != 0 {
		t.Errorf("Expected no recorders for an empty profile, got %d", len(result.Recorders))
	}
	if result.Section != "default" {
		t.Errorf("Expected section inherited, got %s", result.Section)
	}
}

func TestConvertProfileToConfig_Overrides(t *testing.T) {
	definitions := &DefinitionsConfig{
		Recorders: []RecorderDefinition{
			{ID: "motion", Type: "motion", StartStepIdentifier: "a", RecorderTypes: []string{"gyro"}},
		},
	}
	profile := &ConfigProfile{
		Section:   "walk",
		Recorders: []RecorderReference{{Ref: "motion", StartStepIdentifier: strPtr("b"), StopStepIdentifier: strPtr("")}},
	}

	cfg, err := convertProfileToConfig(profile, definitions)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	rec := cfg.Recorders[0]
	if rec.StartStepIdentifier != "b" {
		t.Errorf("Expected start step override 'b', got %q", rec.StartStepIdentifier)
	}

	// resolving must not alias the definition
	rec.RecorderTypes[0] = "attitude"
	if definitions.Recorders[0].RecorderTypes[0] != "gyro" {
		t.Error("Expected definition recorder types to be untouched")
	}

	if _, err := convertProfileToConfig(&ConfigProfile{Recorders: []RecorderReference{{Ref: "gps"}}}, definitions); err == nil {
		t.Error("Expected error for missing reference")
	}
	if _, err := convertProfileToConfig(&ConfigProfile{Recorders: []RecorderReference{{}}}, definitions); err == nil {
		t.Error("Expected error for empty ref")
	}
	if _, err := convertProfileToConfig(nil, definitions); err == nil {
		t.Error("Expected error for nil profile")
	}
}

func TestRecorderDefinition_Configuration(t *testing.T) {
	keep := false
	tests := []struct {
		name string
		def  RecorderDefinition
		want string
	}{
		{"microphone", RecorderDefinition{ID: "mic", Type: "microphone", Interval: 0.25, ShouldDeletePrevious: &keep}, action.TypeMicrophone},
		{"motion", RecorderDefinition{ID: "motion", Type: "motion", RecorderTypes: []string{"attitude"}, UsesCSVEncoding: true}, action.TypeMotion},
		{"distance", RecorderDefinition{ID: "gps", Type: "distance", MotionStepIdentifier: "run"}, action.TypeDistance},
		{"weather", RecorderDefinition{ID: "weather", Type: "weather", Services: []WeatherService{{Identifier: "w", Provider: "airNow", Key: "k"}}}, action.TypeWeather},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.def.Configuration()
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if c.Type() != tt.want || c.Identifier() != tt.def.ID {
				t.Errorf("Expected %s '%s', got %s '%s'", tt.want, tt.def.ID, c.Type(), c.Identifier())
			}
		})
	}

	c, _ := RecorderDefinition{ID: "mic", Type: "microphone", ShouldDeletePrevious: &keep}.Configuration()
	if c.(action.MicrophoneConfiguration).ShouldDeletePrevious() {
		t.Error("Expected shouldDeletePrevious=false to be carried over")
	}
	c, _ = RecorderDefinition{ID: "motion", Type: "motion", RecorderTypes: []string{"attitude"}}.Configuration()
	if types := c.(action.MotionConfiguration).Types(); len(types) != 1 || types[0] != action.Attitude {
		t.Errorf("Expected attitude, got %v", types)
	}
}

func TestRecorderDefinition_ConfigurationErrors(t *testing.T) {
	var verr *action.ValidationError

	_, err := RecorderDefinition{ID: "heart", Type: "heartRate"}.Configuration()
	if !errors.As(err, &verr) || verr.Kind != action.InvalidType {
		t.Errorf("Expected invalid type error, got: %v", err)
	}

	_, err = RecorderDefinition{ID: "motion", Type: "motion", RecorderTypes: []string{"compass"}}.Configuration()
	if err == nil {
		t.Error("Expected error for unknown motion recorder type")
	}

	_, err = RecorderDefinition{ID: "weather", Type: "weather", Services: []WeatherService{{Identifier: "w", Provider: "openWeather"}}}.Configuration()
	if err == nil {
		t.Error("Expected error for a service without key")
	}
}

func TestConfigYAML(t *testing.T) {
	cfg := &Config{
		Name:      "walk",
		Recorders: []RecorderDefinition{{ID: "motion", Type: "motion"}},
	}
	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(string(out), "name: walk") || !strings.Contains(string(out), "id: motion") {
		t.Errorf("Unexpected YAML:\n%s", out)
	}
	if _, ok := cfg.Configuration("motion"); ok {
		t.Error("Expected no configuration before resolution")
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/PassiveData", filepath.Join(homeDir, "PassiveData")},
		{"~", homeDir},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}
