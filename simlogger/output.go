package simlogger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/simlogger/config"
)

const (
	logsDirName = "logs"
	// CSVDirName is the directory under a logs or run directory that receives telemetry files.
	CSVDirName = "coppelia"
	// LatestRunFileName is the file name used when writing into the latest run directory.
	LatestRunFileName = "simLogger.csv"
	timestampedPrefix = "simLogger_"
	csvExt            = ".csv"
)

var (
	// ErrNoWorkspace is returned when neither a workspace nor an output directory is configured.
	ErrNoWorkspace = errors.Errorf("%s is not set", config.WorkspaceDirEnvVar)
	// ErrNoRunDirectory is returned when the latest run directory was requested but none exists.
	ErrNoRunDirectory = errors.New("no run directory found")
)

// LogsDir returns the directory run directories and telemetry directories live in.
func LogsDir(cfg config.Config) (string, error) {
	if cfg.OutputDir != "" {
		return cfg.OutputDir, nil
	}
	if cfg.WorkspaceDir == "" {
		return "", ErrNoWorkspace
	}
	return filepath.Join(cfg.WorkspaceDir, logsDirName), nil
}

// ResolveOutputPath returns the file a session started at now writes to.
//
// By default that is <logs>/coppelia/simLogger_<timestamp>.csv. With cfg.LatestRun it is
// <latest run directory under logs>/coppelia/simLogger.csv.
func ResolveOutputPath(cfg config.Config, now time.Time) (string, error) {
	logs, err := LogsDir(cfg)
	if err != nil {
		return "", err
	}
	if cfg.LatestRun {
		run, err := LatestSubdirectory(logs)
		if err != nil {
			return "", err
		}
		return filepath.Join(run, CSVDirName, LatestRunFileName), nil
	}
	name := timestampedPrefix + now.Local().Format(TimestampLayout) + csvExt
	return filepath.Join(logs, CSVDirName, name), nil
}

// LatestSubdirectory returns the most recently modified directory directly under dir.
func LatestSubdirectory(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrapf(err, "listing %s", dir)
	}
	var (
		latest     string
		latestTime time.Time
	)
	for _, entry := range lo.Filter(entries, func(e os.DirEntry, _ int) bool { return e.IsDir() }) {
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = filepath.Join(dir, entry.Name())
			latestTime = info.ModTime()
		}
	}
	if latest == "" {
		return "", errors.Wrapf(ErrNoRunDirectory, "under %s", dir)
	}
	return latest, nil
}

// rowWriter appends rows to a telemetry file, flushing after each one.
type rowWriter struct {
	path string
	file *os.File
	csv  *csv.Writer
}

// createRowWriter creates (or truncates) the file at path, creating its directory, and writes
// the header.
func createRowWriter(path string) (*rowWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating output directory")
	}
	//nolint:gosec
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(file)
	w.Comma = Separator
	rw := &rowWriter{path: path, file: file, csv: w}
	if err := rw.writeRecord(Header); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "writing header"), file.Close())
	}
	return rw, nil
}

func (rw *rowWriter) Write(row Row) error {
	fields, err := row.Fields()
	if err != nil {
		return err
	}
	return rw.writeRecord(fields)
}

func (rw *rowWriter) writeRecord(record []string) error {
	if err := rw.csv.Write(record); err != nil {
		return err
	}
	rw.csv.Flush()
	return rw.csv.Error()
}

func (rw *rowWriter) Close() error {
	rw.csv.Flush()
	return multierr.Combine(rw.csv.Error(), rw.file.Close())
}
