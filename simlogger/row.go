package simlogger

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/simlogger/spatialmath"
)

const (
	// Separator is the CSV column separator.
	Separator = ';'
	// TimestampLayout formats the timestamp column and timestamped file names.
	TimestampLayout = "2006-01-02_15-04-05"
	floatPrecision  = 6
)

// Header is the first line of every telemetry file.
var Header = []string{
	"Timestamp (%Y-%m-%d_%H-%M-%S)",
	"Frame",
	"CoppeliaSim - Step Size (ms)",
	"CoppeliaSim - Simulation Time (ms)",
	"CoppeliaSim - Real Time (ms)",
	"OS - System Time (ms)",
	"CoppeliaSim - RTF",
	"OS - RTF",
	"CoppeliaSim - Render FPS (Hz)",
	"OS - Plugin FPS (Hz)",
	"Active Objects",
	"Collision Count",
}

// ObjectState is one entry of the active objects column.
type ObjectState struct {
	Alias string                       `json:"alias"`
	Pose  [spatialmath.PoseLen]float64 `json:"pose"`
}

// Row is one telemetry sample.
type Row struct {
	Timestamp time.Time
	// Frame is the number of primary ticks since the session started.
	Frame        int
	StepSizeMS   float64
	SimTimeMS    float64
	RealTimeMS   float64
	SystemTimeMS int64
	// RenderFPS is nil when the host does not report a render rate.
	RenderFPS  *float64
	PluginFPS  float64
	Objects    []ObjectState
	Collisions int
}

// SimRTF is the real time factor as seen by the host clock.
func (r Row) SimRTF() (float64, bool) {
	if r.RealTimeMS <= 0 {
		return 0, false
	}
	return r.SimTimeMS / r.RealTimeMS, true
}

// OSRTF is the real time factor against wall time elapsed since the session started.
func (r Row) OSRTF() (float64, bool) {
	if r.SystemTimeMS <= 0 {
		return 0, false
	}
	return r.SimTimeMS / float64(r.SystemTimeMS), true
}

// Fields returns the CSV columns of the row, in Header order.
func (r Row) Fields() ([]string, error) {
	objects, err := EncodeObjects(r.Objects)
	if err != nil {
		return nil, err
	}
	renderFPS := ""
	if r.RenderFPS != nil {
		renderFPS = formatFloat(*r.RenderFPS)
	}
	return []string{
		r.Timestamp.Format(TimestampLayout),
		strconv.Itoa(r.Frame),
		formatFloat(r.StepSizeMS),
		formatFloat(r.SimTimeMS),
		formatFloat(r.RealTimeMS),
		strconv.FormatInt(r.SystemTimeMS, 10),
		formatOptional(r.SimRTF()),
		formatOptional(r.OSRTF()),
		renderFPS,
		formatFloat(r.PluginFPS),
		objects,
		strconv.Itoa(r.Collisions),
	}, nil
}

// EncodeObjects serializes the active objects column. An empty scene is "[]".
func EncodeObjects(objects []ObjectState) (string, error) {
	if len(objects) == 0 {
		return "[]", nil
	}
	out, err := json.Marshal(objects)
	if err != nil {
		return "", errors.Wrap(err, "encoding active objects")
	}
	return string(out), nil
}

type rawObject struct {
	Alias string    `json:"alias"`
	Pose  []float64 `json:"pose"`
}

// DecodeObjects parses the active objects column. An empty array decodes to nil.
func DecodeObjects(column string) ([]ObjectState, error) {
	var raw []rawObject
	if err := json.Unmarshal([]byte(column), &raw); err != nil {
		return nil, errors.Wrap(err, "decoding active objects")
	}
	if len(raw) == 0 {
		return nil, nil
	}
	for i, obj := range raw {
		if len(obj.Pose) != spatialmath.PoseLen {
			return nil, errors.Errorf("object %d (%q) has %d pose values, want %d",
				i, obj.Alias, len(obj.Pose), spatialmath.PoseLen)
		}
	}
	return lo.Map(raw, func(obj rawObject, _ int) ObjectState {
		state := ObjectState{Alias: obj.Alias}
		copy(state.Pose[:], obj.Pose)
		return state
	}), nil
}

// ReadRows parses a telemetry file written by the plugin. The header is checked and skipped.
func ReadRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.Comma = Separator
	reader.FieldsPerRecord = len(Header)

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	for i, col := range header {
		if col != Header[i] {
			return nil, errors.Errorf("unexpected header column %d: %q", i, col)
		}
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading row %d", len(rows)+1)
		}
		row, err := parseRow(record)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing row %d", len(rows)+1)
		}
		rows = append(rows, row)
	}
}

func parseRow(record []string) (Row, error) {
	var (
		row Row
		err error
	)
	if row.Timestamp, err = time.ParseInLocation(TimestampLayout, record[0], time.Local); err != nil {
		return Row{}, err
	}
	if row.Frame, err = strconv.Atoi(record[1]); err != nil {
		return Row{}, err
	}
	floats := []*float64{&row.StepSizeMS, &row.SimTimeMS, &row.RealTimeMS}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(record[2+i], 64); err != nil {
			return Row{}, err
		}
	}
	if row.SystemTimeMS, err = strconv.ParseInt(record[5], 10, 64); err != nil {
		return Row{}, err
	}
	if record[8] != "" {
		renderFPS, err := strconv.ParseFloat(record[8], 64)
		if err != nil {
			return Row{}, err
		}
		row.RenderFPS = &renderFPS
	}
	if row.PluginFPS, err = strconv.ParseFloat(record[9], 64); err != nil {
		return Row{}, err
	}
	if row.Objects, err = DecodeObjects(record[10]); err != nil {
		return Row{}, err
	}
	if row.Collisions, err = strconv.Atoi(record[11]); err != nil {
		return Row{}, err
	}
	return row, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', floatPrecision, 64)
}

func formatOptional(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return formatFloat(v)
}
