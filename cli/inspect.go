package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/simlogger/simlogger"
)

// Summary describes the contents of a telemetry file.
type Summary struct {
	Path          string
	SizeBytes     int64
	Rows          int
	FirstFrame    int
	LastFrame     int
	SimTimeMS     float64
	FPSMean       float64
	FPSP95        float64
	MaxCollisions int
	Objects       int
}

// Summarize reads the telemetry file at path.
func Summarize(path string) (Summary, []simlogger.Row, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return Summary{}, nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	info, err := f.Stat()
	if err != nil {
		return Summary{}, nil, err
	}
	rows, err := simlogger.ReadRows(f)
	if err != nil {
		return Summary{}, nil, errors.Wrapf(err, "reading %s", path)
	}

	summary := Summary{Path: path, SizeBytes: info.Size(), Rows: len(rows)}
	if len(rows) == 0 {
		return summary, rows, nil
	}
	first, last := rows[0], rows[len(rows)-1]
	summary.FirstFrame = first.Frame
	summary.LastFrame = last.Frame
	summary.SimTimeMS = last.SimTimeMS
	summary.Objects = len(last.Objects)
	summary.MaxCollisions = lo.MaxBy(rows, func(a, b simlogger.Row) bool {
		return a.Collisions > b.Collisions
	}).Collisions

	// Rows written before the first FPS window closes report 0.
	fps := lo.FilterMap(rows, func(row simlogger.Row, _ int) (float64, bool) {
		return row.PluginFPS, row.PluginFPS > 0
	})
	if len(fps) > 0 {
		if summary.FPSMean, err = stats.Mean(fps); err != nil {
			return Summary{}, nil, err
		}
		if summary.FPSP95, err = stats.Percentile(fps, 95); err != nil {
			return Summary{}, nil, err
		}
	}
	return summary, rows, nil
}

// String renders the summary as a table.
func (s Summary) String() string {
	t := table.NewWriter()
	t.SetTitle(s.Path)
	t.AppendRows([]table.Row{
		{"Size", units.HumanSize(float64(s.SizeBytes))},
		{"Rows", s.Rows},
		{"Frames", fmt.Sprintf("%d - %d", s.FirstFrame, s.LastFrame)},
		{"Simulation time", fmt.Sprintf("%.3fs", s.SimTimeMS/1000)},
		{"Plugin FPS (mean)", fmt.Sprintf("%.2f", s.FPSMean)},
		{"Plugin FPS (p95)", fmt.Sprintf("%.2f", s.FPSP95)},
		{"Max collisions", s.MaxCollisions},
		{"Objects", s.Objects},
	})
	return t.Render()
}

func rowsTable(rows []simlogger.Row) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Timestamp", "Frame", "Sim time (ms)", "Sim RTF", "Plugin FPS", "Objects", "Collisions"})
	for _, row := range rows {
		rtf := ""
		if v, ok := row.SimRTF(); ok {
			rtf = fmt.Sprintf("%.3f", v)
		}
		aliases := lo.Map(row.Objects, func(o simlogger.ObjectState, _ int) string { return o.Alias })
		t.AppendRow(table.Row{
			row.Timestamp.Format(simlogger.TimestampLayout),
			row.Frame,
			fmt.Sprintf("%.0f", row.SimTimeMS),
			rtf,
			fmt.Sprintf("%.2f", row.PluginFPS),
			strings.Join(aliases, ","),
			row.Collisions,
		})
	}
	return t.Render()
}

// InspectAction prints a summary of the telemetry file given as argument.
func InspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one telemetry file")
	}
	summary, rows, err := Summarize(c.Args().First())
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", summary)
	if summary.Rows == 0 {
		warningf(c.App.Writer, "%s has a header but no rows", summary.Path)
		return nil
	}
	if c.Bool(inspectFlagRows) {
		printf(c.App.Writer, "%s", rowsTable(rows))
	}
	return nil
}

// HeaderAction prints the header line every telemetry file starts with.
func HeaderAction(c *cli.Context) error {
	printf(c.App.Writer, "%s", strings.Join(simlogger.Header, string(simlogger.Separator)))
	return nil
}
