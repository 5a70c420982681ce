package records

import (
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
)

// ReferenceFrame describes the attitude reference frame.
type ReferenceFrame string

const (
	// ZUp has a vertical Z axis and an arbitrary X axis.
	ZUp ReferenceFrame = "Z-Up"
	// NorthWestUp has a vertical Z axis and X pointing to magnetic north.
	NorthWestUp ReferenceFrame = "North-West-Up"
)

// Vector is a three axis measurement.
type Vector struct {
	X, Y, Z float64
}

// Quaternion is an attitude measurement.
type Quaternion struct {
	X, Y, Z, W float64
}

// DeviceMotion is one fused motion reading.
type DeviceMotion struct {
	Attitude         Quaternion
	Gravity          Vector
	UserAcceleration Vector
	RotationRate     Vector
	MagneticField    Vector
	MagneticAccuracy int
	// Heading is in degrees; negative when the frame has no north.
	Heading float64
}

// MotionRecord is a motion sample. A record without SensorType is a step
// marker written into a motion log.
type MotionRecord struct {
	Uptime              *float64                   `json:"uptime,omitempty"`
	Timestamp           *float64                   `json:"timestamp,omitempty"`
	StepPath            string                     `json:"stepPath,omitempty"`
	TimestampDate       *Date                      `json:"timestampDate,omitempty"`
	SensorType          *action.MotionRecorderType `json:"sensorType,omitempty"`
	EventAccuracy       *int                       `json:"eventAccuracy,omitempty"`
	ReferenceCoordinate *ReferenceFrame            `json:"referenceCoordinate,omitempty"`
	Heading             *float64                   `json:"heading,omitempty"`
	X                   *float64                   `json:"x,omitempty"`
	Y                   *float64                   `json:"y,omitempty"`
	Z                   *float64                   `json:"z,omitempty"`
	W                   *float64                   `json:"w,omitempty"`
}

func (r MotionRecord) SampleStepPath() string          { return r.StepPath }
func (r MotionRecord) SampleTimestampDate() *time.Time { return dateTime(r.TimestampDate) }
func (r MotionRecord) SampleTimestamp() *float64       { return r.Timestamp }
func (MotionRecord) isSampleRecord()                   {}

// IsMarker reports whether the record marks a step transition.
func (r MotionRecord) IsMarker() bool {
	return r.SensorType == nil
}

// NewMotionMarker builds the motion log variant of a step marker.
func NewMotionMarker(uptime, timestamp float64, date time.Time, stepPath string) MotionRecord {
	return MotionRecord{
		Uptime:        Float(uptime),
		Timestamp:     Float(timestamp),
		StepPath:      stepPath,
		TimestampDate: NewDate(date),
	}
}

// NewVectorRecord builds a record for a raw sensor reading.
func NewVectorRecord(stepPath string, sensorType action.MotionRecorderType, v Vector, uptime, timestamp float64) MotionRecord {
	return MotionRecord{
		Uptime:     Float(uptime),
		Timestamp:  Float(timestamp),
		StepPath:   stepPath,
		SensorType: &sensorType,
		X:          Float(v.X),
		Y:          Float(v.Y),
		Z:          Float(v.Z),
	}
}

// NewDeviceMotionRecord extracts the reading for sensorType from a fused
// device motion sample. It returns false for raw sensor types.
func NewDeviceMotionRecord(stepPath string, data DeviceMotion, frame ReferenceFrame, sensorType action.MotionRecorderType, uptime, timestamp float64) (MotionRecord, bool) {
	r := MotionRecord{
		Uptime:     Float(uptime),
		Timestamp:  Float(timestamp),
		StepPath:   stepPath,
		SensorType: &sensorType,
	}

	var v Vector
	switch sensorType {
	case action.Attitude:
		q := data.Attitude
		v = Vector{X: q.X, Y: q.Y, Z: q.Z}
		r.W = Float(q.W)
		r.ReferenceCoordinate = &frame
		accuracy := data.MagneticAccuracy
		r.EventAccuracy = &accuracy
		if data.Heading >= 0 {
			r.Heading = Float(data.Heading)
		}
	case action.Gravity:
		v = data.Gravity
	case action.MagneticField:
		v = data.MagneticField
		accuracy := data.MagneticAccuracy
		r.EventAccuracy = &accuracy
		r.Heading = Float(data.Heading)
	case action.RotationRate:
		v = data.RotationRate
	case action.UserAcceleration:
		v = data.UserAcceleration
	default:
		return MotionRecord{}, false
	}
	r.X, r.Y, r.Z = Float(v.X), Float(v.Y), Float(v.Z)
	return r, true
}

func (MotionRecord) CodingKeys() []string {
	return []string{"uptime", "timestamp", "stepPath", "timestampDate", "sensorType",
		"eventAccuracy", "referenceCoordinate", "heading", "x", "y", "z", "w"}
}

func (r MotionRecord) Values() []any {
	var sensor, frame any
	if r.SensorType != nil {
		sensor = string(*r.SensorType)
	}
	if r.ReferenceCoordinate != nil {
		frame = string(*r.ReferenceCoordinate)
	}
	return []any{
		floatValue(r.Uptime), floatValue(r.Timestamp), stringValue(r.StepPath), dateValue(r.TimestampDate),
		sensor, intValue(r.EventAccuracy), frame, floatValue(r.Heading),
		floatValue(r.X), floatValue(r.Y), floatValue(r.Z), floatValue(r.W),
	}
}
