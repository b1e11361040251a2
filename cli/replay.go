package cli

import (
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/simlogger/config"
	"go.viam.com/simlogger/host"
	"go.viam.com/simlogger/host/fake"
	"go.viam.com/simlogger/logging"
	"go.viam.com/simlogger/simlogger"
	"go.viam.com/simlogger/spatialmath"
)

// orbitRadius is the distance of the i-th synthetic object from the origin, in meters.
const orbitRadius = 1.5

// ReplayAction runs the plugin against a synthetic scene. Wall time is simulated with a mock
// clock so a replay finishes immediately whatever its realtime factor.
func ReplayAction(c *cli.Context) error {
	cfg, err := replayConfig(c)
	if err != nil {
		return err
	}
	ticks := c.Int(replayFlagTicks)
	if ticks < 0 {
		return errors.Errorf("--%s must not be negative", replayFlagTicks)
	}
	step := c.Duration(replayFlagStep)
	if step <= 0 {
		return errors.Errorf("--%s must be positive", replayFlagStep)
	}
	rtf := c.Float64(replayFlagRealtime)
	if rtf <= 0 {
		return errors.Errorf("--%s must be positive", replayFlagRealtime)
	}
	wallPerTick := time.Duration(float64(step) / rtf)

	logger := logging.NewBlankLogger("simlogger")
	logger.AddAppender(logging.NewWriterAppender(zapcore.AddSync(c.App.ErrWriter)))
	defer func() {
		utils.UncheckedError(logger.Sync())
	}()

	mockClock := clock.NewMock()
	mockClock.Set(time.Now())
	scene := fake.New(fake.WithClock(mockClock), fake.WithStep(step))
	var h host.Host = scene
	if fps := c.Float64(replayFlagRenderFPS); fps > 0 {
		h = fake.NewRendering(scene, fps)
	}

	target := scene.AddObject(cfg.CollisionTarget, spatialmath.NewZeroPose())
	objects := make([]host.Handle, 0, c.Int(replayFlagObjects))
	for i := 0; i < c.Int(replayFlagObjects); i++ {
		objects = append(objects, scene.AddObject(fmt.Sprintf("Object_%d", i), orbitPose(i, 0)))
	}

	plugin := simlogger.New(cfg, logger.Sublogger("plugin"), simlogger.WithClock(mockClock))
	if _, err := plugin.Init(h, host.InitInfo{PluginName: "SimLogger"}); err != nil {
		return errors.Wrap(err, "starting plugin")
	}
	defer func() {
		if err := plugin.Cleanup(); err != nil {
			warningf(c.App.ErrWriter, "error cleaning up plugin: %v", err)
		}
	}()

	plugin.HandleMessage(host.Message{ID: host.MsgSimulationAboutToStart})
	started := plugin.Stats()
	if !started.Open {
		return errors.New("telemetry file could not be opened, see the log for details")
	}

	collideEvery := c.Int(replayFlagCollideEvery)
	for tick := 1; tick <= ticks; tick++ {
		if err := c.Context.Err(); err != nil {
			warningf(c.App.ErrWriter, "replay interrupted after %d ticks", tick-1)
			break
		}
		mockClock.Add(wallPerTick)
		scene.Step()

		simTime := time.Duration(tick) * step
		if err := scene.SetPose(target, targetPose(simTime)); err != nil {
			return err
		}
		for i, handle := range objects {
			if err := scene.SetPose(handle, orbitPose(i, simTime)); err != nil {
				return err
			}
		}
		if collideEvery > 0 && tick%collideEvery == 0 {
			scene.SetCollisions(target, 1)
		} else {
			scene.SetCollisions(target, 0)
		}

		plugin.HandleMessage(host.Message{ID: host.MsgSimulationSensing})
		// Secondary passes are ignored by the plugin, send one anyway like a real host does.
		plugin.HandleMessage(host.Message{ID: host.MsgSimulationSensing, AuxData: [4]int{1}})
	}

	stats := plugin.Stats()
	plugin.HandleMessage(host.Message{ID: host.MsgSimulationEnded})
	plugin.HandleMessage(host.Message{ID: host.MsgScriptStateDestroyed})

	infof(c.App.Writer, "wrote %d rows over %d ticks", stats.Rows, stats.TotalFrames)
	printf(c.App.Writer, "%s", stats.Path)
	return nil
}

func replayConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet(replayFlagWorkspace) {
		cfg.WorkspaceDir = c.String(replayFlagWorkspace)
	}
	if c.IsSet(replayFlagOutputDir) {
		cfg.OutputDir = c.String(replayFlagOutputDir)
	}
	if c.IsSet(replayFlagLatestRun) {
		cfg.LatestRun = c.Bool(replayFlagLatestRun)
	}
	if c.IsSet(replayFlagSampleEvery) {
		cfg.SampleEvery = c.Int(replayFlagSampleEvery)
	}
	if c.IsSet(generalFlagLogLevel) {
		if err := cfg.LogLevel.UnmarshalText([]byte(c.String(generalFlagLogLevel))); err != nil {
			return config.Config{}, errors.Wrapf(err, "--%s", generalFlagLogLevel)
		}
	}
	if c.Bool(generalFlagDebug) {
		cfg.LogLevel = logging.DEBUG
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// orbitPose places object i on a circle, facing along its direction of travel.
func orbitPose(i int, simTime time.Duration) spatialmath.Pose {
	theta := simTime.Seconds()*0.5 + float64(i)*math.Pi/4
	radius := orbitRadius * float64(i+1)
	return spatialmath.NewPose(
		r3.Vector{X: radius * math.Cos(theta), Y: radius * math.Sin(theta)},
		yaw(theta+math.Pi/2),
	)
}

// targetPose drives the collision target along the X axis at 0.2m/s.
func targetPose(simTime time.Duration) spatialmath.Pose {
	return spatialmath.NewPoseFromPoint(r3.Vector{X: 0.2 * simTime.Seconds()})
}

func yaw(theta float64) quat.Number {
	return quat.Number{Real: math.Cos(theta / 2), Kmag: math.Sin(theta / 2)}
}
