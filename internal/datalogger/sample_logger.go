package datalogger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/records"
)

// ContentTypeJSON is the content type of JSON sample logs.
const ContentTypeJSON = "application/json"

// Format describes a delimiter separated encoding.
type Format struct {
	Separator      string
	Extension      string
	ContentType    string
	IncludesHeader bool
}

// CSV is the comma separated format with a header row.
var CSV = Format{Separator: ",", Extension: "csv", ContentType: "text/csv", IncludesHeader: true}

// Options configures a SampleLogger.
type Options struct {
	// Format selects delimiter separated output. Nil writes JSON.
	Format *Format
	// CodingKeys is the header row of a delimiter separated file.
	CodingKeys []string
	// RootObject wraps JSON samples in {"startDate": ..., "items": [...]}.
	RootObject bool
	StartDate  time.Time
}

// Extension returns the file extension for the configured encoding.
func (o Options) Extension() string {
	if o.Format != nil {
		return o.Format.Extension
	}
	return "json"
}

// SampleLogger encodes sample records into a Logger.
type SampleLogger struct {
	*Logger
	opts    Options
	trailer []byte
}

// NewSampleLogger creates the file at path and writes the opening framing.
func NewSampleLogger(identifier, path string, opts Options) (*SampleLogger, error) {
	var initial, trailer []byte
	contentType := ContentTypeJSON

	switch {
	case opts.Format != nil:
		contentType = opts.Format.ContentType
		if opts.Format.IncludesHeader {
			if len(opts.CodingKeys) == 0 {
				return nil, fmt.Errorf("delimiter separated log %s needs coding keys for its header", identifier)
			}
			initial = []byte(strings.Join(opts.CodingKeys, opts.Format.Separator) + "\n")
		}
	case opts.RootObject:
		start, err := json.Marshal(records.Date{Time: opts.StartDate})
		if err != nil {
			return nil, err
		}
		initial = []byte(`{"startDate":` + string(start) + `,"items":[`)
		trailer = []byte("]}")
	default:
		initial = []byte("[")
		trailer = []byte("]")
	}

	l, err := New(identifier, path, initial)
	if err != nil {
		return nil, err
	}
	l.contentType = contentType
	return &SampleLogger{Logger: l, opts: opts, trailer: trailer}, nil
}

// WriteSample validates, encodes and appends one record.
func (s *SampleLogger) WriteSample(r records.SampleRecord) error {
	return s.WriteSamples([]records.SampleRecord{r})
}

// WriteSamples appends a batch as a single write. Each record counts as
// one sample.
func (s *SampleLogger) WriteSamples(batch []records.SampleRecord) error {
	if len(batch) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for i, r := range batch {
		if err := records.Validate(r); err != nil {
			return err
		}
		if s.opts.Format != nil {
			row, err := encodeRow(r, s.opts.Format.Separator)
			if err != nil {
				return err
			}
			buf.WriteString(row)
			buf.WriteByte('\n')
			continue
		}
		if i > 0 || s.SampleCount() > 0 {
			buf.WriteString(",\n")
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode sample: %w", err)
		}
		buf.Write(data)
	}
	return s.write(buf.Bytes(), len(batch))
}

// Close writes the closing framing and releases the file, once.
func (s *SampleLogger) Close() error {
	return s.closeWith(s.trailer)
}

func encodeRow(r records.SampleRecord, separator string) (string, error) {
	ds, ok := r.(records.DelimiterSeparated)
	if !ok {
		return "", fmt.Errorf("%T cannot be encoded as a delimiter separated row", r)
	}
	values := ds.Values()
	cells := make([]string, len(values))
	for i, v := range values {
		cell, err := formatCell(v)
		if err != nil {
			return "", fmt.Errorf("%s: %w", ds.CodingKeys()[i], err)
		}
		if strings.Contains(cell, separator) {
			return "", fmt.Errorf("%s: a delimited string encoding cannot encode a string that contains the delimiter: '%s'", ds.CodingKeys()[i], separator)
		}
		cells[i] = cell
	}
	return strings.Join(cells, separator), nil
}

func formatCell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return "", fmt.Errorf("a delimited string encoding cannot encode a nested array or dictionary")
	}
	return fmt.Sprint(v), nil
}
