package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
)

// EnvPrefix is the prefix of environment overrides, e.g. MPD_ACTIVE_CONFIG.
const EnvPrefix = "MPD"

type DefinitionsConfig struct {
	Recorders []RecorderDefinition `mapstructure:"recorders" yaml:"recorders"`
}

// RecorderDefinition is the file form of a recorder configuration. Only the
// fields of its type are used.
type RecorderDefinition struct {
	ID                      string `mapstructure:"id" yaml:"id" validate:"required"`
	Type                    string `mapstructure:"type" yaml:"type" validate:"required,oneof=microphone motion distance weather"`
	StartStepIdentifier     string `mapstructure:"startStepIdentifier" yaml:"startStepIdentifier,omitempty"`
	StopStepIdentifier      string `mapstructure:"stopStepIdentifier" yaml:"stopStepIdentifier,omitempty"`
	RequiresBackgroundAudio bool   `mapstructure:"requiresBackgroundAudio" yaml:"requiresBackgroundAudio,omitempty"`
	ShouldDeletePrevious    *bool  `mapstructure:"shouldDeletePrevious" yaml:"shouldDeletePrevious,omitempty"`
	UsesCSVEncoding         bool   `mapstructure:"usesCSVEncoding" yaml:"usesCSVEncoding,omitempty"`

	// motion
	RecorderTypes []string `mapstructure:"recorderTypes" yaml:"recorderTypes,omitempty"`
	Frequency     float64  `mapstructure:"frequency" yaml:"frequency,omitempty" validate:"gte=0"`

	// microphone
	Interval      float64 `mapstructure:"interval" yaml:"interval,omitempty" validate:"gte=0"`
	SaveAudioFile bool    `mapstructure:"saveAudioFile" yaml:"saveAudioFile,omitempty"`

	// distance
	MotionStepIdentifier string `mapstructure:"motionStepIdentifier" yaml:"motionStepIdentifier,omitempty"`

	// weather
	Services []WeatherService `mapstructure:"services" yaml:"services,omitempty" validate:"dive"`
}

type WeatherService struct {
	Identifier string `mapstructure:"identifier" yaml:"identifier" validate:"required"`
	Provider   string `mapstructure:"provider" yaml:"provider" validate:"required,oneof=openWeather airNow"`
	// Key may reference the environment, e.g. ${MPD_OPENWEATHER_KEY}.
	Key string `mapstructure:"key" yaml:"key"`
}

type RecorderReference struct {
	Ref                 string  `mapstructure:"ref" yaml:"ref"`
	StartStepIdentifier *string `mapstructure:"startStepIdentifier,omitempty" yaml:"startStepIdentifier,omitempty"`
	StopStepIdentifier  *string `mapstructure:"stopStepIdentifier,omitempty" yaml:"stopStepIdentifier,omitempty"`
}

type GlobalsConfig struct {
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Sources SourcesConfig `mapstructure:"sources" yaml:"sources"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Definitions  *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

type ConfigProfile struct {
	Section   string              `mapstructure:"section" yaml:"section,omitempty"`
	Steps     []string            `mapstructure:"steps" yaml:"steps,omitempty"`
	Recorders []RecorderReference `mapstructure:"recorders" yaml:"recorders"`
	Output    OutputConfig        `mapstructure:"output" yaml:"output,omitempty"`
	Sources   SourcesConfig       `mapstructure:"sources" yaml:"sources,omitempty"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory,omitempty"`
	// Store is the sqlite session index. Defaults to <directory>/sessions.db.
	Store   string `mapstructure:"store" yaml:"store,omitempty"`
	Archive bool   `mapstructure:"archive" yaml:"archive,omitempty"`
}

type SourcesConfig struct {
	Audio    AudioSourceConfig    `mapstructure:"audio" yaml:"audio,omitempty"`
	Motion   MotionSourceConfig   `mapstructure:"motion" yaml:"motion,omitempty"`
	Location LocationSourceConfig `mapstructure:"location" yaml:"location,omitempty"`
}

type AudioSourceConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend,omitempty" validate:"omitempty,oneof=auto pipewire"`
	Source  string `mapstructure:"source" yaml:"source,omitempty"`
}

type MotionSourceConfig struct {
	// Replay is a JSON lines file of recorded motion events.
	Replay   string `mapstructure:"replay" yaml:"replay,omitempty"`
	RealTime bool   `mapstructure:"realtime" yaml:"realtime,omitempty"`
}

type LocationSourceConfig struct {
	GPSD      string   `mapstructure:"gpsd" yaml:"gpsd,omitempty"`
	Latitude  *float64 `mapstructure:"latitude" yaml:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `mapstructure:"longitude" yaml:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// Config is a resolved profile.
type Config struct {
	Name      string               `yaml:"name"`
	Section   string               `yaml:"section,omitempty"`
	Steps     []string             `yaml:"steps,omitempty"`
	Recorders []RecorderDefinition `yaml:"recorders"`
	Output    OutputConfig         `yaml:"output"`
	Sources   SourcesConfig        `yaml:"sources"`

	// Configurations holds one validated configuration per recorder.
	Configurations []action.Configuration `yaml:"-"`

	// Internal field to track inheritance information for the config command
	Inheritance *InheritanceInfo `yaml:"-"`
}

type InheritanceInfo struct {
	Section string // "inherited" or "profile-specific"
	Steps   string
	Output  struct {
		Directory string
		Store     string
	}
	Sources struct {
		Audio    string
		Motion   string
		Location string
	}
}

var defaultConfig = Config{
	Output: OutputConfig{
		Directory: filepath.Join("~", "PassiveData"),
	},
	Sources: SourcesConfig{
		Audio: AudioSourceConfig{Backend: "auto"},
	},
}

// DefaultRootConfig returns a starter file with one motion profile.
func DefaultRootConfig() *RootConfig {
	return &RootConfig{
		ActiveConfig: "default",
		Globals: &GlobalsConfig{
			Output:  defaultConfig.Output,
			Sources: defaultConfig.Sources,
		},
		Definitions: &DefinitionsConfig{
			Recorders: []RecorderDefinition{
				{ID: "motion", Type: action.TypeMotion, RecorderTypes: []string{"accelerometer", "gyro"}, Frequency: 100},
				{ID: "microphone", Type: action.TypeMicrophone, Interval: 1},
			},
		},
		Configs: map[string]*ConfigProfile{
			"default": {
				Section: "default",
				Steps:   []string{"instructions", "active", "rest"},
				Recorders: []RecorderReference{
					{Ref: "motion"},
				},
			},
		},
	}
}

// LoadWithProfile resolves profile, or the file's active_config, into a
// runnable Config.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return rootConfig.Resolve(profile)
}

// Resolve converts a profile of an already validated root config.
func (root *RootConfig) Resolve(profile string) (*Config, error) {
	configName := profile
	if configName == "" {
		configName = root.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := root.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	selectedConfig, err := convertProfileToConfig(selectedProfile, root.Definitions)
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	base := &Config{Output: defaultConfig.Output, Sources: defaultConfig.Sources}
	if root.Globals != nil {
		base.Output = mergeOutput(base.Output, root.Globals.Output)
		base.Sources = mergeSources(base.Sources, root.Globals.Sources)
	}
	if configName != "default" {
		if defaultProfile, exists := root.Configs["default"]; exists {
			defaultResolved, err := convertProfileToConfig(defaultProfile, root.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			base = mergeConfigs(base, defaultResolved)
		}
	}
	selectedConfig = mergeConfigs(base, selectedConfig)
	selectedConfig.Name = configName

	// Global output directory takes priority over profile-specific directory
	if root.Globals != nil && root.Globals.Output.Directory != "" {
		selectedConfig.Output.Directory = root.Globals.Output.Directory
	}
	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	if selectedConfig.Output.Store == "" {
		selectedConfig.Output.Store = filepath.Join(selectedConfig.Output.Directory, "sessions.db")
	}
	selectedConfig.Output.Store = expandPath(selectedConfig.Output.Store)
	selectedConfig.Sources.Motion.Replay = expandPath(selectedConfig.Sources.Motion.Replay)
	if selectedConfig.Section == "" {
		selectedConfig.Section = configName
	}

	if err := validateSteps(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	for i, def := range selectedConfig.Recorders {
		c, err := def.Configuration()
		if err != nil {
			return nil, fmt.Errorf("recorders[%d] '%s': %w", i, def.ID, err)
		}
		selectedConfig.Configurations = append(selectedConfig.Configurations, c)
	}
	if err := action.ValidateIdentifiers(selectedConfig.Configurations); err != nil {
		return nil, err
	}
	return selectedConfig, nil
}

// Configuration converts the definition into a validated recorder
// configuration.
func (d RecorderDefinition) Configuration() (action.Configuration, error) {
	common := action.Common{ID: d.ID, StartStep: d.StartStepIdentifier, StopStep: d.StopStepIdentifier}

	var c action.Configuration
	switch d.Type {
	case action.TypeMicrophone:
		c = action.MicrophoneConfiguration{
			Common:          common,
			BackgroundAudio: d.RequiresBackgroundAudio,
			DeletePrevious:  d.ShouldDeletePrevious,
			SaveAudioFile:   d.SaveAudioFile,
			Interval:        d.Interval,
		}
	case action.TypeMotion:
		types := make([]action.MotionRecorderType, 0, len(d.RecorderTypes))
		for _, t := range d.RecorderTypes {
			types = append(types, action.MotionRecorderType(t))
		}
		c = action.MotionConfiguration{
			Common:          common,
			RecorderTypes:   types,
			BackgroundAudio: d.RequiresBackgroundAudio,
			Frequency:       d.Frequency,
			DeletePrevious:  d.ShouldDeletePrevious,
			UsesCSVEncoding: d.UsesCSVEncoding,
		}
	case action.TypeDistance:
		c = action.DistanceConfiguration{
			Common:               common,
			MotionStepIdentifier: d.MotionStepIdentifier,
			UsesCSVEncoding:      d.UsesCSVEncoding,
		}
	case action.TypeWeather:
		services := make([]action.WeatherServiceConfiguration, 0, len(d.Services))
		for _, s := range d.Services {
			services = append(services, action.WeatherServiceConfiguration{
				Identifier: s.Identifier,
				Provider:   s.Provider,
				Key:        os.ExpandEnv(s.Key),
			})
		}
		c = action.WeatherConfiguration{Common: common, Services: services}
	default:
		return nil, action.NewValidationError(action.InvalidType, fmt.Sprintf("unsupported recorder type '%s'", d.Type))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Configuration returns the configuration with the given identifier.
func (c *Config) Configuration(id string) (action.Configuration, bool) {
	for _, conf := range c.Configurations {
		if conf.Identifier() == id {
			return conf, true
		}
	}
	return nil, false
}

// YAML renders the resolved profile.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	if !v.IsSet("configs." + newActiveConfig) {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// SaveRoot writes root as YAML, refusing to replace an existing file
// unless overwrite is set.
func SaveRoot(configFile string, root *RootConfig, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(configFile); err == nil {
			return fmt.Errorf("config file %s already exists", configFile)
		}
	}
	out, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("error creating config dir: %w", err)
	}
	return os.WriteFile(configFile, out, 0o644)
}

// convertProfileToConfig converts a ConfigProfile to Config by resolving recorder references
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	config := &Config{
		Section: profile.Section,
		Steps:   profile.Steps,
		Output:  profile.Output,
		Sources: profile.Sources,
	}

	for i, ref := range profile.Recorders {
		if ref.Ref == "" {
			return nil, fmt.Errorf("recorders[%d]: 'ref' is required", i)
		}

		definition := findDefinition(definitions, ref.Ref)
		if definition == nil {
			return nil, fmt.Errorf("recorders[%d]: reference '%s' not found in definitions", i, ref.Ref)
		}

		resolved := *definition
		resolved.RecorderTypes = slices.Clone(definition.RecorderTypes)
		resolved.Services = slices.Clone(definition.Services)
		if ref.StartStepIdentifier != nil {
			resolved.StartStepIdentifier = *ref.StartStepIdentifier
		}
		if ref.StopStepIdentifier != nil {
			resolved.StopStepIdentifier = *ref.StopStepIdentifier
		}
		config.Recorders = append(config.Recorders, resolved)
	}

	return config, nil
}

func findDefinition(definitions *DefinitionsConfig, id string) *RecorderDefinition {
	if definitions == nil {
		return nil
	}
	for i := range definitions.Recorders {
		if definitions.Recorders[i].ID == id {
			return &definitions.Recorders[i]
		}
	}
	return nil
}

// mergeConfigs follows the selection and fallback model: only the
// recorders listed by the profile run, listed recorders without step
// bounds inherit them from the base recorder with the same id, and every
// other setting falls back to the base.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{Inheritance: &InheritanceInfo{}}

	if base != nil {
		result.Section = base.Section
		result.Steps = base.Steps
		result.Output = base.Output
		result.Sources = base.Sources

		result.Inheritance.Section = "inherited"
		result.Inheritance.Steps = "inherited"
		result.Inheritance.Output.Directory = "inherited"
		result.Inheritance.Output.Store = "inherited"
		result.Inheritance.Sources.Audio = "inherited"
		result.Inheritance.Sources.Motion = "inherited"
		result.Inheritance.Sources.Location = "inherited"
	}

	if profile == nil {
		return result
	}

	if profile.Section != "" {
		result.Section = profile.Section
		result.Inheritance.Section = "profile-specific"
	}
	if len(profile.Steps) > 0 {
		result.Steps = profile.Steps
		result.Inheritance.Steps = "profile-specific"
	}
	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		result.Inheritance.Output.Directory = "profile-specific"
	}
	if profile.Output.Store != "" {
		result.Output.Store = profile.Output.Store
		result.Inheritance.Output.Store = "profile-specific"
	}
	// Archive is enabled when any level enables it
	result.Output.Archive = result.Output.Archive || profile.Output.Archive

	if profile.Sources.Audio != (AudioSourceConfig{}) {
		result.Sources.Audio = mergeSources(result.Sources, profile.Sources).Audio
		result.Inheritance.Sources.Audio = "profile-specific"
	}
	if profile.Sources.Motion != (MotionSourceConfig{}) {
		result.Sources.Motion = profile.Sources.Motion
		result.Inheritance.Sources.Motion = "profile-specific"
	}
	if profile.Sources.Location.GPSD != "" || profile.Sources.Location.Latitude != nil {
		result.Sources.Location = profile.Sources.Location
		result.Inheritance.Sources.Location = "profile-specific"
	}

	result.Recorders = make([]RecorderDefinition, 0, len(profile.Recorders))
	for _, rec := range profile.Recorders {
		if base != nil {
			for _, baseRec := range base.Recorders {
				if baseRec.ID != rec.ID {
					continue
				}
				if rec.StartStepIdentifier == "" {
					rec.StartStepIdentifier = baseRec.StartStepIdentifier
				}
				if rec.StopStepIdentifier == "" {
					rec.StopStepIdentifier = baseRec.StopStepIdentifier
				}
				break
			}
		}
		result.Recorders = append(result.Recorders, rec)
	}

	return result
}

func mergeOutput(base, over OutputConfig) OutputConfig {
	if over.Directory != "" {
		base.Directory = over.Directory
	}
	if over.Store != "" {
		base.Store = over.Store
	}
	base.Archive = base.Archive || over.Archive
	return base
}

func mergeSources(base, over SourcesConfig) SourcesConfig {
	if over.Audio.Backend != "" {
		base.Audio.Backend = over.Audio.Backend
	}
	if over.Audio.Source != "" {
		base.Audio.Source = over.Audio.Source
	}
	if over.Motion != (MotionSourceConfig{}) {
		base.Motion = over.Motion
	}
	if over.Location.GPSD != "" || over.Location.Latitude != nil {
		base.Location = over.Location
	}
	return base
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}

// validateSteps checks that every step bound names a step of the profile.
func validateSteps(config *Config) error {
	if len(config.Steps) == 0 {
		return nil
	}
	for i, rec := range config.Recorders {
		for _, bound := range []struct{ name, value string }{
			{"startStepIdentifier", rec.StartStepIdentifier},
			{"stopStepIdentifier", rec.StopStepIdentifier},
			{"motionStepIdentifier", rec.MotionStepIdentifier},
		} {
			if bound.value != "" && !slices.Contains(config.Steps, bound.value) {
				return fmt.Errorf("recorders[%d] '%s': %s '%s' is not one of the steps %v",
					i, rec.ID, bound.name, bound.value, config.Steps)
			}
		}
	}
	return nil
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := rootConfig.Validate(); err != nil {
		return nil, err
	}
	return &rootConfig, nil
}

// Validate checks definitions, references and source settings.
func (root *RootConfig) Validate() error {
	if err := validateDefinitions(root.Definitions); err != nil {
		return fmt.Errorf("invalid definitions: %w", err)
	}
	if root.Globals != nil {
		if err := validateStruct("globals.sources", root.Globals.Sources); err != nil {
			return err
		}
	}
	if len(root.Configs) == 0 {
		return fmt.Errorf("configs section cannot be empty")
	}
	for configName, configProfile := range root.Configs {
		if configProfile == nil {
			return fmt.Errorf("invalid config '%s': profile is empty", configName)
		}
		if err := validateRecorderReferences(configProfile.Recorders, root.Definitions); err != nil {
			return fmt.Errorf("invalid config '%s': %w", configName, err)
		}
		if err := validateStruct("sources", configProfile.Sources); err != nil {
			return fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}
	return nil
}

func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return fmt.Errorf("definitions section is required")
	}

	if len(definitions.Recorders) == 0 {
		return fmt.Errorf("definitions.recorders cannot be empty")
	}

	seenIDs := make(map[string]bool)
	for i, def := range definitions.Recorders {
		prefix := fmt.Sprintf("definitions.recorders[%d]", i)
		if def.ID == "" {
			return fmt.Errorf("%s: 'id' is required", prefix)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("%s: duplicate ID '%s'", prefix, def.ID)
		}
		seenIDs[def.ID] = true

		if err := validateStruct(prefix, def); err != nil {
			return err
		}
		if def.Type == action.TypeWeather && len(def.Services) == 0 {
			return fmt.Errorf("%s: 'services' is required for weather recorders", prefix)
		}
	}

	return nil
}

func validateRecorderReferences(refs []RecorderReference, definitions *DefinitionsConfig) error {
	seen := make(map[string]bool)
	for i, ref := range refs {
		prefix := fmt.Sprintf("recorders[%d]", i)

		if ref.Ref == "" {
			return fmt.Errorf("%s: 'ref' is required", prefix)
		}
		if findDefinition(definitions, ref.Ref) == nil {
			return fmt.Errorf("%s: references undefined recorder definition '%s'", prefix, ref.Ref)
		}
		if seen[ref.Ref] {
			return fmt.Errorf("%s: recorder '%s' is listed twice", prefix, ref.Ref)
		}
		seen[ref.Ref] = true
	}
	return nil
}

var structValidator struct {
	once     sync.Once
	validate *validator.Validate
}

func lazyValidator() *validator.Validate {
	structValidator.once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator.validate = v
	})
	return structValidator.validate
}

// validateStruct reports the first struct tag violation as
// "<prefix>.<field>: ..." using file key names.
func validateStruct(prefix string, v any) error {
	err := lazyValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s.%s: value is required", prefix, field)
	case "oneof":
		return fmt.Errorf("%s.%s: must be one of [%s], got: %v", prefix, field, fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s.%s: failed '%s=%s', got: %v", prefix, field, fe.Tag(), fe.Param(), fe.Value())
	}
}
