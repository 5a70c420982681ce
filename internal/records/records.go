// Package records defines the sample shapes written to recorder log files.
package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
)

// DateFormat is the ISO 8601 layout used for every date in a log file.
const DateFormat = "2006-01-02T15:04:05.000-07:00"

// Date is a time encoded with DateFormat.
type Date struct {
	time.Time
}

// NewDate returns a pointer suitable for an optional timestampDate.
func NewDate(t time.Time) *Date {
	return &Date{Time: t}
}

func (d Date) String() string {
	return d.Time.Format(DateFormat)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	for _, layout := range []string{DateFormat, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return action.NewValidationError(action.InvalidValue, fmt.Sprintf("cannot parse date '%s'", s))
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return action.NewValidationError(action.InvalidValue, fmt.Sprintf("date must be a string, got %s", s))
	}
	return d.UnmarshalText([]byte(unquoted))
}

// Equal lets go-cmp compare dates by instant.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// SampleRecord is implemented by every sample shape.
type SampleRecord interface {
	SampleStepPath() string
	SampleTimestampDate() *time.Time
	SampleTimestamp() *float64

	isSampleRecord()
}

// DelimiterSeparated is implemented by records that can be written as
// rows of a delimiter separated file. Values align with CodingKeys; nil
// means an empty cell.
type DelimiterSeparated interface {
	CodingKeys() []string
	Values() []any
}

// Validate checks that a record carries a date or a relative timestamp.
func Validate(r SampleRecord) error {
	if r.SampleTimestampDate() == nil && r.SampleTimestamp() == nil {
		return action.NewValidationError(action.UnexpectedNullObject,
			"Expected either timestamp or timestampDate to be non-nil")
	}
	return nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func dateTime(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func dateValue(d *Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func floatValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringValue(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Marker is written to a log file at every step transition.
type Marker struct {
	Uptime        float64  `json:"uptime"`
	StepPath      string   `json:"stepPath"`
	TimestampDate *Date    `json:"timestampDate,omitempty"`
	Timestamp     *float64 `json:"timestamp,omitempty"`
}

// NewMarker builds a marker with both a date and a relative timestamp.
func NewMarker(uptime, timestamp float64, date time.Time, stepPath string) Marker {
	return Marker{
		Uptime:        uptime,
		StepPath:      stepPath,
		TimestampDate: NewDate(date),
		Timestamp:     Float(timestamp),
	}
}

func (m Marker) SampleStepPath() string          { return m.StepPath }
func (m Marker) SampleTimestampDate() *time.Time { return dateTime(m.TimestampDate) }
func (m Marker) SampleTimestamp() *float64       { return m.Timestamp }
func (Marker) isSampleRecord()                   {}

func (Marker) CodingKeys() []string {
	return []string{"uptime", "stepPath", "timestampDate", "timestamp"}
}

func (m Marker) Values() []any {
	return []any{m.Uptime, stringValue(m.StepPath), dateValue(m.TimestampDate), floatValue(m.Timestamp)}
}
