package records

import (
	"time"
)

// DecibelFullScale is the unit of audio level records.
const DecibelFullScale = "dbFS"

// AudioLevelRecord is the averaged and peak microphone level over one
// metering interval.
type AudioLevelRecord struct {
	Uptime        *float64 `json:"uptime,omitempty"`
	Timestamp     *float64 `json:"timestamp,omitempty"`
	StepPath      string   `json:"stepPath,omitempty"`
	TimestampDate *Date    `json:"timestampDate,omitempty"`
	TimeInterval  *float64 `json:"timeInterval,omitempty"`
	Average       *float64 `json:"average,omitempty"`
	Peak          *float64 `json:"peak,omitempty"`
	Unit          string   `json:"unit,omitempty"`
}

func NewAudioLevelRecord(uptime, timestamp float64, stepPath string, interval, average, peak float64) AudioLevelRecord {
	return AudioLevelRecord{
		Uptime:       Float(uptime),
		Timestamp:    Float(timestamp),
		StepPath:     stepPath,
		TimeInterval: Float(interval),
		Average:      Float(average),
		Peak:         Float(peak),
		Unit:         DecibelFullScale,
	}
}

func (r AudioLevelRecord) SampleStepPath() string          { return r.StepPath }
func (r AudioLevelRecord) SampleTimestampDate() *time.Time { return dateTime(r.TimestampDate) }
func (r AudioLevelRecord) SampleTimestamp() *float64       { return r.Timestamp }
func (AudioLevelRecord) isSampleRecord()                   {}

func (AudioLevelRecord) CodingKeys() []string {
	return []string{"uptime", "timestamp", "stepPath", "timestampDate", "timeInterval", "average", "peak", "unit"}
}

func (r AudioLevelRecord) Values() []any {
	return []any{
		floatValue(r.Uptime), floatValue(r.Timestamp), stringValue(r.StepPath), dateValue(r.TimestampDate),
		floatValue(r.TimeInterval), floatValue(r.Average), floatValue(r.Peak), stringValue(r.Unit),
	}
}
