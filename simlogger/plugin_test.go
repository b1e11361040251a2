package simlogger

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/simlogger/config"
	"go.viam.com/simlogger/host"
	"go.viam.com/simlogger/host/fake"
	"go.viam.com/simlogger/logging"
	"go.viam.com/simlogger/spatialmath"
)

const tickPeriod = 20 * time.Millisecond

var (
	aboutToStart = host.Message{ID: host.MsgSimulationAboutToStart}
	primaryPass  = host.Message{ID: host.MsgSimulationSensing}
	secondPass   = host.Message{ID: host.MsgSimulationSensing, AuxData: [4]int{1}}
	destroyed    = host.Message{ID: host.MsgScriptStateDestroyed}
)

type harness struct {
	plugin *Plugin
	host   *fake.Host
	clock  *clock.Mock
	logs   *observer.ObservedLogs
	cfg    config.Config
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	logger, logs := logging.NewObservedTestLogger(t)
	mockClock := clock.NewMock()
	h := fake.New(fake.WithClock(mockClock))
	p := New(cfg, logger, WithClock(mockClock))
	version, err := p.Init(h, host.InitInfo{PluginName: "SimLogger"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, version, test.ShouldEqual, PluginVersion)
	return &harness{plugin: p, host: h, clock: mockClock, logs: logs, cfg: cfg}
}

func workspaceConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WorkspaceDir = t.TempDir()
	return cfg
}

// step advances wall and simulation time by one tick and delivers both sensing passes.
func (th *harness) step(n int, wall time.Duration) {
	for i := 0; i < n; i++ {
		th.clock.Add(wall)
		th.host.Step()
		th.plugin.HandleMessage(primaryPass)
		th.plugin.HandleMessage(secondPass)
	}
}

func readRows(t *testing.T, path string) []Row {
	t.Helper()
	f, err := os.Open(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	rows, err := ReadRows(f)
	test.That(t, err, test.ShouldBeNil)
	return rows
}

func TestInit(t *testing.T) {
	logger := logging.NewTestLogger(t)

	p := New(config.Default(), logger)
	_, err := p.Init(nil, host.InitInfo{PluginName: "SimLogger"})
	test.That(t, errors.Is(err, ErrHostUnavailable), test.ShouldBeTrue)

	_, err = p.Init(fake.New(fake.WithVersion("3.6.2")), host.InitInfo{})
	test.That(t, errors.Is(err, ErrHostVersion), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "3.6.2")

	_, err = p.Init(fake.New(fake.WithVersion("latest")), host.InitInfo{})
	test.That(t, errors.Is(err, ErrHostVersion), test.ShouldBeTrue)

	bad := config.Default()
	bad.SampleEvery = 0
	_, err = New(bad, logger).Init(fake.New(), host.InitInfo{})
	test.That(t, err, test.ShouldNotBeNil)

	version, err := p.Init(fake.New(fake.WithVersion("4.0.0")), host.InitInfo{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, version, test.ShouldEqual, 13)
}

func TestMessagesBeforeInitAreIgnored(t *testing.T) {
	cfg := workspaceConfig(t)
	p := New(cfg, logging.NewTestLogger(t))
	p.HandleMessage(aboutToStart)
	p.HandleMessage(primaryPass)
	test.That(t, p.Stats(), test.ShouldResemble, Stats{})

	_, err := os.Stat(filepath.Join(cfg.WorkspaceDir, "logs"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestEndToEnd(t *testing.T) {
	th := newHarness(t, workspaceConfig(t))
	robot := th.host.AddObject("MiR100", spatialmath.NewPose(r3.Vector{X: 1, Y: 2}, quat.Number{Real: 1}))
	th.host.AddObject("Box", spatialmath.NewPoseFromPoint(r3.Vector{Z: 0.25}))
	th.host.SetCollisions(robot, 2)

	th.plugin.HandleMessage(aboutToStart)
	stats := th.plugin.Stats()
	test.That(t, stats.Active, test.ShouldBeTrue)
	test.That(t, stats.Open, test.ShouldBeTrue)
	expectedPath, err := ResolveOutputPath(th.cfg, th.clock.Now())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.Path, test.ShouldEqual, expectedPath)

	th.step(49, tickPeriod)
	test.That(t, th.plugin.Stats().Rows, test.ShouldEqual, 0)
	th.step(1, tickPeriod)

	stats = th.plugin.Stats()
	test.That(t, stats.Rows, test.ShouldEqual, 1)
	test.That(t, stats.TotalFrames, test.ShouldEqual, 50)
	test.That(t, stats.Frames, test.ShouldEqual, 0)
	test.That(t, stats.FPS, test.ShouldAlmostEqual, 50.0)

	th.plugin.HandleMessage(destroyed)
	test.That(t, th.plugin.Stats(), test.ShouldResemble, Stats{})

	rows := readRows(t, stats.Path)
	test.That(t, rows, test.ShouldHaveLength, 1)
	row := rows[0]
	test.That(t, row.Frame, test.ShouldEqual, 50)
	test.That(t, row.StepSizeMS, test.ShouldAlmostEqual, 50.0)
	test.That(t, row.SimTimeMS, test.ShouldAlmostEqual, 2500.0)
	test.That(t, row.RealTimeMS, test.ShouldAlmostEqual, 1000.0)
	test.That(t, row.SystemTimeMS, test.ShouldEqual, int64(1000))
	test.That(t, row.PluginFPS, test.ShouldAlmostEqual, 50.0)
	test.That(t, row.RenderFPS, test.ShouldBeNil)
	test.That(t, row.Collisions, test.ShouldEqual, 2)
	test.That(t, row.Objects, test.ShouldHaveLength, 2)
	test.That(t, row.Objects[0].Alias, test.ShouldEqual, "MiR100")
	test.That(t, row.Objects[0].Pose, test.ShouldResemble, [spatialmath.PoseLen]float64{1, 2, 0, 1, 0, 0, 0})
	test.That(t, row.Objects[1].Alias, test.ShouldEqual, "Box")

	// Ticks after the session ended go nowhere.
	th.step(50, tickPeriod)
	test.That(t, readRows(t, stats.Path), test.ShouldHaveLength, 1)
}

func TestFPSHoldsUntilOneSecondPassed(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.SampleEvery = 1
	th := newHarness(t, cfg)
	th.plugin.HandleMessage(aboutToStart)

	for i := 0; i < 9; i++ {
		th.step(1, 100*time.Millisecond)
		test.That(t, th.plugin.Stats().FPS, test.ShouldEqual, 0.0)
	}
	th.step(1, 100*time.Millisecond)
	test.That(t, th.plugin.Stats().FPS, test.ShouldAlmostEqual, 10.0)
	test.That(t, th.plugin.Stats().Frames, test.ShouldEqual, 0)

	for i := 0; i < 3; i++ {
		th.step(1, 250*time.Millisecond)
		test.That(t, th.plugin.Stats().FPS, test.ShouldAlmostEqual, 10.0)
	}
	th.step(1, 250*time.Millisecond)
	test.That(t, th.plugin.Stats().FPS, test.ShouldAlmostEqual, 4.0)

	rows := readRows(t, th.plugin.Stats().Path)
	test.That(t, rows, test.ShouldHaveLength, 14)
	test.That(t, rows[8].PluginFPS, test.ShouldEqual, 0.0)
	test.That(t, rows[9].PluginFPS, test.ShouldAlmostEqual, 10.0)
	test.That(t, rows[13].PluginFPS, test.ShouldAlmostEqual, 4.0)
	test.That(t, rows[13].Frame, test.ShouldEqual, 14)
}

func TestNewSessionClosesPrevious(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.SampleEvery = 5
	th := newHarness(t, cfg)

	th.plugin.HandleMessage(aboutToStart)
	first := th.plugin.session.out
	firstPath := th.plugin.Stats().Path
	th.step(12, tickPeriod)
	test.That(t, th.plugin.Stats().TotalFrames, test.ShouldEqual, 12)

	th.clock.Add(2 * time.Second)
	th.plugin.HandleMessage(aboutToStart)
	stats := th.plugin.Stats()
	test.That(t, stats.Path, test.ShouldNotEqual, firstPath)
	test.That(t, stats.TotalFrames, test.ShouldEqual, 0)
	test.That(t, stats.Frames, test.ShouldEqual, 0)
	test.That(t, stats.FPS, test.ShouldEqual, 0.0)

	err := first.file.Close()
	test.That(t, errors.Is(err, os.ErrClosed), test.ShouldBeTrue)
	test.That(t, readRows(t, firstPath), test.ShouldHaveLength, 2)

	th.step(5, tickPeriod)
	rows := readRows(t, stats.Path)
	test.That(t, rows, test.ShouldHaveLength, 1)
	test.That(t, rows[0].Frame, test.ShouldEqual, 5)
}

func TestOpenFailureDisablesSession(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.SampleEvery = 1
	// A regular file where the logs directory should be.
	test.That(t, os.WriteFile(filepath.Join(cfg.WorkspaceDir, "logs"), nil, 0o600), test.ShouldBeNil)
	th := newHarness(t, cfg)

	th.plugin.HandleMessage(aboutToStart)
	test.That(t, th.logs.FilterMessage("unable to open CSV file, not logging this simulation").Len(), test.ShouldEqual, 1)

	th.step(3, tickPeriod)
	stats := th.plugin.Stats()
	test.That(t, stats.Active, test.ShouldBeTrue)
	test.That(t, stats.Open, test.ShouldBeFalse)
	test.That(t, stats.Rows, test.ShouldEqual, 0)
	test.That(t, stats.TotalFrames, test.ShouldEqual, 3)

	th.plugin.HandleMessage(destroyed)
	test.That(t, th.plugin.Stats(), test.ShouldResemble, Stats{})
}

func TestMissingWorkspaceDisablesSession(t *testing.T) {
	th := newHarness(t, config.Default())
	th.plugin.HandleMessage(aboutToStart)
	entries := th.logs.FilterMessage("unable to resolve CSV file path, not logging this simulation").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["error"], test.ShouldContainSubstring, config.WorkspaceDirEnvVar)
	test.That(t, th.plugin.Stats().Open, test.ShouldBeFalse)
}

func TestEmptyScene(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.SampleEvery = 1
	th := newHarness(t, cfg)
	th.plugin.HandleMessage(aboutToStart)
	th.step(1, tickPeriod)

	contents, err := os.ReadFile(th.plugin.Stats().Path)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	test.That(t, lines, test.ShouldHaveLength, 2)
	test.That(t, lines[0], test.ShouldEqual, strings.Join(Header, ";"))
	test.That(t, lines[1], test.ShouldEndWith, ";[];0")
}

func TestObjectQueryFailureSkipsObject(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.SampleEvery = 1
	th := newHarness(t, cfg)
	broken := th.host.AddObject("Broken", spatialmath.NewZeroPose())
	th.host.AddObject("Floor", spatialmath.NewZeroPose())
	test.That(t, th.host.FailQueries(broken, errors.New("object was removed")), test.ShouldBeNil)

	th.plugin.HandleMessage(aboutToStart)
	th.step(1, tickPeriod)

	rows := readRows(t, th.plugin.Stats().Path)
	test.That(t, rows[0].Objects, test.ShouldHaveLength, 1)
	test.That(t, rows[0].Objects[0].Alias, test.ShouldEqual, "Floor")
}

func TestNonFinitePoseSkipsObject(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.SampleEvery = 1
	cfg.LogLevel = logging.DEBUG
	th := newHarness(t, cfg)
	robot := th.host.AddObject("MiR100", spatialmath.NewZeroPose())
	th.host.SetCollisions(robot, 3)
	glitch := th.host.AddObject("Glitch", spatialmath.NewPoseFromPoint(r3.Vector{X: math.Inf(1)}))

	th.plugin.HandleMessage(aboutToStart)
	th.step(2, tickPeriod)
	test.That(t, th.host.SetPose(glitch, spatialmath.NewPoseFromPoint(r3.Vector{Y: math.NaN()})), test.ShouldBeNil)
	th.step(1, tickPeriod)

	test.That(t, th.plugin.Stats().Rows, test.ShouldEqual, 3)
	rows := readRows(t, th.plugin.Stats().Path)
	test.That(t, rows, test.ShouldHaveLength, 3)
	for _, row := range rows {
		test.That(t, row.Objects, test.ShouldHaveLength, 1)
		test.That(t, row.Objects[0].Alias, test.ShouldEqual, "MiR100")
		test.That(t, row.Collisions, test.ShouldEqual, 3)
	}
	test.That(t, th.logs.FilterMessage("skipping object with non-finite pose").Len(), test.ShouldEqual, 3)
	test.That(t, th.logs.FilterMessage("error writing CSV row").Len(), test.ShouldEqual, 0)
}

func TestCollisionTarget(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.SampleEvery = 1
	cfg.CollisionTarget = "Pioneer"
	th := newHarness(t, cfg)
	mir := th.host.AddObject("MiR100", spatialmath.NewZeroPose())
	th.host.SetCollisions(mir, 4)

	th.plugin.HandleMessage(aboutToStart)
	th.step(1, tickPeriod)
	pioneer := th.host.AddObject("Pioneer", spatialmath.NewZeroPose())
	th.host.SetCollisions(pioneer, 1)
	th.step(1, tickPeriod)

	rows := readRows(t, th.plugin.Stats().Path)
	test.That(t, rows[0].Collisions, test.ShouldEqual, 0)
	test.That(t, rows[1].Collisions, test.ShouldEqual, 1)
}

func TestRenderStats(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.SampleEvery = 1
	logger := logging.NewTestLogger(t)
	mockClock := clock.NewMock()
	h := fake.NewRendering(fake.New(fake.WithClock(mockClock)), 60)
	p := New(cfg, logger, WithClock(mockClock))
	_, err := p.Init(h, host.InitInfo{})
	test.That(t, err, test.ShouldBeNil)

	p.HandleMessage(aboutToStart)
	mockClock.Add(tickPeriod)
	p.HandleMessage(primaryPass)

	rows := readRows(t, p.Stats().Path)
	test.That(t, rows[0].RenderFPS, test.ShouldNotBeNil)
	test.That(t, *rows[0].RenderFPS, test.ShouldAlmostEqual, 60.0)
}

func TestLatestRunDirectory(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.LatestRun = true
	cfg.SampleEvery = 1
	logs := filepath.Join(cfg.WorkspaceDir, "logs")
	older := filepath.Join(logs, "2026-10-15_run")
	newer := filepath.Join(logs, "2026-10-16_run")
	for _, dir := range []string{older, newer} {
		test.That(t, os.MkdirAll(dir, 0o755), test.ShouldBeNil)
	}
	now := time.Now()
	test.That(t, os.Chtimes(older, now, now.Add(-time.Hour)), test.ShouldBeNil)
	test.That(t, os.Chtimes(newer, now, now), test.ShouldBeNil)

	th := newHarness(t, cfg)
	th.plugin.HandleMessage(aboutToStart)
	test.That(t, th.plugin.Stats().Path, test.ShouldEqual, filepath.Join(newer, CSVDirName, LatestRunFileName))
	th.step(2, tickPeriod)
	test.That(t, readRows(t, th.plugin.Stats().Path), test.ShouldHaveLength, 2)
}

func TestCleanup(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.SampleEvery = 1
	cfg.LogFile = filepath.Join(t.TempDir(), "simlogger.log")
	th := newHarness(t, cfg)

	th.plugin.HandleMessage(aboutToStart)
	th.step(2, tickPeriod)
	path := th.plugin.Stats().Path
	test.That(t, th.plugin.Cleanup(), test.ShouldBeNil)
	test.That(t, th.plugin.Stats(), test.ShouldResemble, Stats{})

	// Detached: nothing starts or gets written anymore.
	th.plugin.HandleMessage(aboutToStart)
	th.step(2, tickPeriod)
	test.That(t, th.plugin.Stats().Active, test.ShouldBeFalse)
	test.That(t, readRows(t, path), test.ShouldHaveLength, 2)

	pluginLog, err := os.ReadFile(cfg.LogFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(pluginLog), test.ShouldContainSubstring, "plugin started")
	test.That(t, string(pluginLog), test.ShouldContainSubstring, "logging simulation telemetry")
}

func TestCleanupDetachesLogFile(t *testing.T) {
	cfg := workspaceConfig(t)
	cfg.LogFile = filepath.Join(t.TempDir(), "simlogger.log")
	cfg.LogLevel = logging.DEBUG
	th := newHarness(t, cfg)
	test.That(t, th.plugin.Cleanup(), test.ShouldBeNil)

	before, err := os.ReadFile(cfg.LogFile)
	test.That(t, err, test.ShouldBeNil)
	// Logged after Cleanup: reaches the test logger but not the closed file.
	th.plugin.HandleMessage(aboutToStart)
	test.That(t, th.logs.FilterMessage("ignoring message, plugin is not initialized").Len(), test.ShouldEqual, 1)
	after, err := os.ReadFile(cfg.LogFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, after, test.ShouldResemble, before)

	// A second Init writes each line to the file once.
	_, err = th.plugin.Init(th.host, host.InitInfo{PluginName: "SimLogger"})
	test.That(t, err, test.ShouldBeNil)
	th.plugin.HandleMessage(aboutToStart)
	test.That(t, th.plugin.Cleanup(), test.ShouldBeNil)

	pluginLog, err := os.ReadFile(cfg.LogFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Count(string(pluginLog), "plugin started"), test.ShouldEqual, 2)
	test.That(t, strings.Count(string(pluginLog), "logging simulation telemetry"), test.ShouldEqual, 1)
}
