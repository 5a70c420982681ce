package datalogger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/records"
)

var start = time.Date(2021, 1, 22, 14, 40, 13, 0, time.UTC)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestLoggerWriteAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.txt")
	l, err := New("raw", path, []byte("head\n"))
	require.NoError(t, err)

	require.NoError(t, l.Write([]byte("one\n")))
	require.NoError(t, l.Write([]byte("two\n")))
	assert.Equal(t, 2, l.SampleCount())

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.True(t, l.IsClosed())
	assert.ErrorIs(t, l.Write([]byte("three\n")), ErrClosed)
	assert.Equal(t, 2, l.SampleCount())

	assert.Equal(t, "head\none\ntwo\n", readFile(t, path))
}

func TestNewFailsForMissingDirectory(t *testing.T) {
	_, err := New("x", filepath.Join(t.TempDir(), "missing", "x.json"), nil)
	assert.Error(t, err)
}

func TestSampleLoggerRootArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.json")
	l, err := NewSampleLogger("levels", path, Options{})
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, l.ContentType())

	require.NoError(t, l.WriteSample(records.NewMarker(10, 0, start, "intro")))
	require.NoError(t, l.WriteSamples([]records.SampleRecord{
		records.NewAudioLevelRecord(11, 1, "intro", 1, -40, -30),
		records.NewAudioLevelRecord(12, 2, "intro", 1, -41, -31),
	}))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, 3, l.SampleCount())

	content := readFile(t, path)
	assert.True(t, strings.HasPrefix(content, "["))
	assert.True(t, strings.HasSuffix(content, "]"))
	assert.Equal(t, 1, strings.Count(content, "]"), "closing bracket written once")

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(content), &items))
	require.Len(t, items, 3)
	assert.Equal(t, "intro", items[0]["stepPath"])
	assert.Equal(t, -41.0, items[2]["average"])
}

func TestSampleLoggerRootObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motion.json")
	l, err := NewSampleLogger("motion", path, Options{RootObject: true, StartDate: start})
	require.NoError(t, err)
	require.NoError(t, l.WriteSample(records.NewMarker(10, 0, start, "intro")))
	require.NoError(t, l.Close())

	content := readFile(t, path)
	assert.True(t, strings.HasPrefix(content, `{"startDate":"2021-01-22T14:40:13.000+00:00","items":[`))
	assert.True(t, strings.HasSuffix(content, "]}"))

	var doc struct {
		StartDate string           `json:"startDate"`
		Items     []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(content), &doc))
	assert.Len(t, doc.Items, 1)
}

func TestSampleLoggerEmptyFileIsValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	l, err := NewSampleLogger("empty", path, Options{})
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.Equal(t, "[]", readFile(t, path))
}

func TestSampleLoggerCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.csv")
	keys := records.AudioLevelRecord{}.CodingKeys()
	l, err := NewSampleLogger("levels", path, Options{Format: &CSV, CodingKeys: keys})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", l.ContentType())

	require.NoError(t, l.WriteSample(records.NewAudioLevelRecord(356541.29, 1.9, "card sort", 1, -41.02, -35.46)))
	require.NoError(t, l.Close())

	lines := strings.Split(strings.TrimSpace(readFile(t, path)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "uptime,timestamp,stepPath,timestampDate,timeInterval,average,peak,unit", lines[0])
	assert.Equal(t, "356541.29,1.9,card sort,,1,-41.02,-35.46,dbFS", lines[1])
}

func TestSampleLoggerCSVRejectsSeparator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.csv")
	l, err := NewSampleLogger("levels", path, Options{Format: &CSV, CodingKeys: records.Marker{}.CodingKeys()})
	require.NoError(t, err)
	defer l.Close()

	err = l.WriteSample(records.NewAudioLevelRecord(1, 1, "a,b", 1, -1, -1))
	assert.ErrorContains(t, err, "delimiter")
	assert.Equal(t, 0, l.SampleCount())
}

type nestedRecord struct {
	records.Marker
}

func (nestedRecord) CodingKeys() []string { return []string{"items"} }
func (nestedRecord) Values() []any        { return []any{[]int{1, 2}} }

func TestFormatCellRejectsNested(t *testing.T) {
	_, err := encodeRow(nestedRecord{records.NewMarker(1, 0, start, "a")}, ",")
	assert.ErrorContains(t, err, "nested")
}

func TestSampleLoggerCSVNeedsKeys(t *testing.T) {
	_, err := NewSampleLogger("x", filepath.Join(t.TempDir(), "x.csv"), Options{Format: &CSV})
	assert.Error(t, err)
}

func TestSampleLoggerRejectsInvalidRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.json")
	l, err := NewSampleLogger("x", path, Options{})
	require.NoError(t, err)
	defer l.Close()

	err = l.WriteSample(records.AudioLevelRecord{StepPath: "a"})
	var verr *action.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, l.SampleCount())
}

func TestPrepareFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	path, err := PrepareFile(dir, "motion", "json", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "motion.json"), path)
	assert.FileExists(t, filepath.Join(dir, lockFileName))

	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	again, err := PrepareFile(dir, "motion", "json", true)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.NoFileExists(t, path)

	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
	unique, err := PrepareFile(dir, "motion", "json", false)
	require.NoError(t, err)
	assert.NotEqual(t, path, unique)
	assert.True(t, strings.HasPrefix(filepath.Base(unique), "motion-"))
	assert.FileExists(t, path)
}
