package simlogger

import (
	"math"

	"github.com/samber/lo"

	"go.viam.com/simlogger/host"
)

const msPerSecond = 1000

// sample queries the host for one telemetry row.
func (p *Plugin) sample(s *session) Row {
	now := p.clk.Now()
	row := Row{
		Timestamp:    now.Local(),
		Frame:        s.totalFrames,
		StepSizeMS:   p.host.SimulationTimeStep() * msPerSecond,
		SimTimeMS:    p.host.SimulationTime() * msPerSecond,
		RealTimeMS:   p.host.SystemTime() * msPerSecond,
		SystemTimeMS: s.elapsedMS(now),
		PluginFPS:    s.updateFPS(now),
		Objects:      p.sceneObjects(),
		Collisions:   p.collisionCount(),
	}
	if stats, ok := p.host.(host.RenderStats); ok {
		renderFPS := stats.RenderFPS()
		row.RenderFPS = &renderFPS
	}
	return row
}

// sceneObjects returns alias and world pose of every object in the scene. Objects that cannot
// be queried, or whose pose is not finite, are logged and left out.
func (p *Plugin) sceneObjects() []ObjectState {
	handles, err := p.host.ObjectsInTree()
	if err != nil {
		p.logger.Warnw("error listing scene objects", "error", err)
		return nil
	}
	objects := make([]ObjectState, 0, len(handles))
	for _, handle := range handles {
		alias, err := p.host.ObjectAlias(handle)
		if err != nil {
			p.logger.Debugw("skipping object", "handle", handle, "error", err)
			continue
		}
		pose, err := p.host.ObjectPose(handle)
		if err != nil {
			p.logger.Debugw("skipping object", "handle", handle, "alias", alias, "error", err)
			continue
		}
		values := pose.Array()
		if !lo.EveryBy(values[:], isFinite) {
			p.logger.Debugw("skipping object with non-finite pose", "handle", handle, "alias", alias, "pose", values)
			continue
		}
		objects = append(objects, ObjectState{Alias: alias, Pose: values})
	}
	return objects
}

// collisionCount checks the configured target against every other object. A missing target
// counts as no collisions.
func (p *Plugin) collisionCount() int {
	if p.cfg.CollisionTarget == "" {
		return 0
	}
	handle, ok := p.host.ObjectByPath("/" + p.cfg.CollisionTarget)
	if !ok {
		return 0
	}
	n, err := p.host.CheckCollision(handle)
	if err != nil {
		p.logger.Debugw("collision check failed", "target", p.cfg.CollisionTarget, "error", err)
		return 0
	}
	return n
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
