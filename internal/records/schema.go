package records

// SchemaBaseURL is the root of the published JSON schemas for log files.
const SchemaBaseURL = "https://bridgedigitalhealth.github.io/MobilePassiveData-SDK/schemas/v1/"

// JSONSchema returns the schema URL of a log file made of r samples, or ""
// when none is published.
func JSONSchema(r SampleRecord) string {
	switch r.(type) {
	case MotionRecord, *MotionRecord:
		return SchemaBaseURL + "MotionRecord.json"
	case AudioLevelRecord, *AudioLevelRecord:
		return SchemaBaseURL + "AudioLevelRecord.json"
	case LocationRecord, *LocationRecord:
		return SchemaBaseURL + "LocationRecord.json"
	case Marker, *Marker:
		return SchemaBaseURL + "RecordMarker.json"
	default:
		return ""
	}
}
