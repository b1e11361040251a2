// Package host defines the capabilities the simulator runtime exposes to the logger plugin.
//
// The simulator owns the plugin ABI, the scene graph and the simulation clock. The logger
// only ever consumes them through the Host interface, so anything that can answer these
// queries (the real simulator binding, host/fake, a recorded replay) can drive it.
package host

import (
	"fmt"

	"go.viam.com/simlogger/spatialmath"
)

// MessageID identifies a lifecycle notification sent by the host.
type MessageID int

// Lifecycle notifications sent by the host.
const (
	MsgScriptStateDestroyed   MessageID = 5
	MsgSimulationAboutToStart MessageID = 6
	MsgSimulationEnded        MessageID = 7
	MsgSimulationSensing      MessageID = 39
	MsgUnknown                MessageID = -1
)

func (id MessageID) String() string {
	switch id {
	case MsgScriptStateDestroyed:
		return "script_state_destroyed"
	case MsgSimulationAboutToStart:
		return "simulation_about_to_start"
	case MsgSimulationEnded:
		return "simulation_ended"
	case MsgSimulationSensing:
		return "simulation_sensing"
	case MsgUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("message(%d)", int(id))
	}
}

// Message is a single notification from the host. AuxData carries message specific values;
// for MsgSimulationSensing, AuxData[0] is the callback pass and 0 is the primary pass.
type Message struct {
	ID      MessageID
	AuxData [4]int
}

// IsPrimaryPass reports whether a sensing message is the authoritative callback of its step.
func (m Message) IsPrimaryPass() bool {
	return m.AuxData[0] == 0
}

// Handle refers to an object in the host scene.
type Handle int

// NoHandle is returned by lookups that found nothing.
const NoHandle Handle = -1

// InitInfo is handed to the plugin when the host loads it.
type InitInfo struct {
	PluginName  string
	LibraryPath string
}

// Host is the set of queries the logger issues against the simulator. All times are in
// seconds, as the host reports them.
type Host interface {
	// Version returns the host version as a semantic version string, e.g. "4.6.0".
	Version() string
	// SimulationTime returns the current simulation time.
	SimulationTime() float64
	// SystemTime returns the host's real time counter.
	SystemTime() float64
	// SimulationTimeStep returns the current simulation step size.
	SimulationTimeStep() float64
	// ObjectsInTree returns every object in the scene, walking the tree recursively.
	ObjectsInTree() ([]Handle, error)
	ObjectAlias(h Handle) (string, error)
	// ObjectPose returns the pose of h relative to the world frame.
	ObjectPose(h Handle) (spatialmath.Pose, error)
	// ObjectByPath resolves an object path such as "/MiR100". It returns NoHandle and false
	// when nothing matches.
	ObjectByPath(path string) (Handle, bool)
	// CheckCollision tests h against every other object and returns the number of collisions.
	CheckCollision(h Handle) (int, error)
}

// RenderStats is implemented by hosts that can report their render loop rate.
type RenderStats interface {
	RenderFPS() float64
}
