package records

import (
	"time"
)

// LocationRecord is a distance recorder sample. Latitude and longitude are
// only filled in when the host allows raw coordinates to be stored.
type LocationRecord struct {
	Uptime                 *float64 `json:"uptime,omitempty"`
	Timestamp              *float64 `json:"timestamp,omitempty"`
	StepPath               string   `json:"stepPath,omitempty"`
	TimestampDate          *Date    `json:"timestampDate,omitempty"`
	HorizontalAccuracy     *float64 `json:"horizontalAccuracy,omitempty"`
	RelativeDistance       *float64 `json:"relativeDistance,omitempty"`
	Latitude               *float64 `json:"latitude,omitempty"`
	Longitude              *float64 `json:"longitude,omitempty"`
	VerticalAccuracy       *float64 `json:"verticalAccuracy,omitempty"`
	Altitude               *float64 `json:"altitude,omitempty"`
	TotalDistance          *float64 `json:"totalDistance,omitempty"`
	Course                 *float64 `json:"course,omitempty"`
	BearingRelativeToStart *float64 `json:"bearingRelativeToStart,omitempty"`
	Speed                  *float64 `json:"speed,omitempty"`
	Floor                  *int     `json:"floor,omitempty"`
}

func (r LocationRecord) SampleStepPath() string          { return r.StepPath }
func (r LocationRecord) SampleTimestampDate() *time.Time { return dateTime(r.TimestampDate) }
func (r LocationRecord) SampleTimestamp() *float64       { return r.Timestamp }
func (LocationRecord) isSampleRecord()                   {}

// NewLocationMarker builds the location log variant of a step marker.
func NewLocationMarker(uptime, timestamp float64, date time.Time, stepPath string) LocationRecord {
	return LocationRecord{
		Uptime:        Float(uptime),
		Timestamp:     Float(timestamp),
		StepPath:      stepPath,
		TimestampDate: NewDate(date),
	}
}

func (LocationRecord) CodingKeys() []string {
	return []string{"uptime", "timestamp", "stepPath", "timestampDate", "horizontalAccuracy",
		"relativeDistance", "latitude", "longitude", "verticalAccuracy", "altitude",
		"totalDistance", "course", "bearingRelativeToStart", "speed", "floor"}
}

func (r LocationRecord) Values() []any {
	return []any{
		floatValue(r.Uptime), floatValue(r.Timestamp), stringValue(r.StepPath), dateValue(r.TimestampDate),
		floatValue(r.HorizontalAccuracy), floatValue(r.RelativeDistance), floatValue(r.Latitude),
		floatValue(r.Longitude), floatValue(r.VerticalAccuracy), floatValue(r.Altitude),
		floatValue(r.TotalDistance), floatValue(r.Course), floatValue(r.BearingRelativeToStart),
		floatValue(r.Speed), intValue(r.Floor),
	}
}
