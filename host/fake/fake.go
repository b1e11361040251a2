// Package fake implements an in-memory host.Host for tests and offline replays.
package fake

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/simlogger/host"
	"go.viam.com/simlogger/spatialmath"
)

// DefaultVersion is the version a fake host reports unless told otherwise.
const DefaultVersion = "4.6.0"

// DefaultStep is the default simulation step.
const DefaultStep = 50 * time.Millisecond

type object struct {
	handle host.Handle
	alias  string
	pose   spatialmath.Pose
	err    error
}

// Host is a scene with a flat list of objects and a manually stepped simulation clock.
type Host struct {
	mu         sync.Mutex
	version    string
	step       time.Duration
	simTime    time.Duration
	clk        clock.Clock
	start      time.Time
	nextHandle host.Handle
	objects    []*object
	collisions map[host.Handle]int
}

// Option configures a fake host.
type Option func(*Host)

// WithVersion sets the version reported by the host.
func WithVersion(version string) Option {
	return func(h *Host) { h.version = version }
}

// WithStep sets the simulation step.
func WithStep(step time.Duration) Option {
	return func(h *Host) { h.step = step }
}

// WithClock sets the clock SystemTime is measured with.
func WithClock(clk clock.Clock) Option {
	return func(h *Host) { h.clk = clk }
}

// New returns an empty scene.
func New(opts ...Option) *Host {
	h := &Host{
		version:    DefaultVersion,
		step:       DefaultStep,
		clk:        clock.New(),
		collisions: map[host.Handle]int{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.start = h.clk.Now()
	return h
}

// AddObject adds an object to the scene and returns its handle.
func (h *Host) AddObject(alias string, pose spatialmath.Pose) host.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	handle := h.nextHandle
	h.nextHandle++
	h.objects = append(h.objects, &object{handle: handle, alias: alias, pose: pose})
	return handle
}

// RemoveObject removes an object from the scene.
func (h *Host) RemoveObject(handle host.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, obj := range h.objects {
		if obj.handle == handle {
			h.objects = append(h.objects[:i], h.objects[i+1:]...)
			delete(h.collisions, handle)
			return
		}
	}
}

// SetPose moves an object.
func (h *Host) SetPose(handle host.Handle, pose spatialmath.Pose) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.lookup(handle)
	if err != nil {
		return err
	}
	obj.pose = pose
	return nil
}

// FailQueries makes every alias and pose query for handle return err. A nil err clears it.
func (h *Host) FailQueries(handle host.Handle, err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, lookupErr := h.lookup(handle)
	if lookupErr != nil {
		return lookupErr
	}
	obj.err = err
	return nil
}

// SetCollisions sets the number of collisions CheckCollision reports for handle.
func (h *Host) SetCollisions(handle host.Handle, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collisions[handle] = n
}

// Step advances the simulation clock by one step.
func (h *Host) Step() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.simTime += h.step
}

// Reset rewinds the simulation clock to zero.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.simTime = 0
	h.start = h.clk.Now()
}

// Version implements host.Host.
func (h *Host) Version() string {
	return h.version
}

// SimulationTime implements host.Host.
func (h *Host) SimulationTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.simTime.Seconds()
}

// SystemTime implements host.Host. It is the wall time since the host was created or reset.
func (h *Host) SystemTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clk.Since(h.start).Seconds()
}

// SimulationTimeStep implements host.Host.
func (h *Host) SimulationTimeStep() float64 {
	return h.step.Seconds()
}

// ObjectsInTree implements host.Host. An empty scene yields a nil slice.
func (h *Host) ObjectsInTree() ([]host.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.objects) == 0 {
		return nil, nil
	}
	handles := make([]host.Handle, 0, len(h.objects))
	for _, obj := range h.objects {
		handles = append(handles, obj.handle)
	}
	return handles, nil
}

// ObjectAlias implements host.Host.
func (h *Host) ObjectAlias(handle host.Handle) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.lookup(handle)
	if err != nil {
		return "", err
	}
	if obj.err != nil {
		return "", obj.err
	}
	return obj.alias, nil
}

// ObjectPose implements host.Host.
func (h *Host) ObjectPose(handle host.Handle) (spatialmath.Pose, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.lookup(handle)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	if obj.err != nil {
		return spatialmath.Pose{}, obj.err
	}
	return obj.pose, nil
}

// ObjectByPath implements host.Host. Paths are "/" followed by the object alias.
func (h *Host) ObjectByPath(path string) (host.Handle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, obj := range h.objects {
		if "/"+obj.alias == path {
			return obj.handle, true
		}
	}
	return host.NoHandle, false
}

// CheckCollision implements host.Host.
func (h *Host) CheckCollision(handle host.Handle) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.lookup(handle); err != nil {
		return 0, err
	}
	return h.collisions[handle], nil
}

func (h *Host) lookup(handle host.Handle) (*object, error) {
	for _, obj := range h.objects {
		if obj.handle == handle {
			return obj, nil
		}
	}
	return nil, errors.Errorf("no object with handle %d", handle)
}

// RenderingHost is a Host that also reports a render rate.
type RenderingHost struct {
	*Host
	fps float64
}

// NewRendering wraps h so that it implements host.RenderStats.
func NewRendering(h *Host, fps float64) *RenderingHost {
	return &RenderingHost{Host: h, fps: fps}
}

// RenderFPS implements host.RenderStats.
func (r *RenderingHost) RenderFPS() float64 {
	return r.fps
}

var (
	_ host.Host        = (*Host)(nil)
	_ host.RenderStats = (*RenderingHost)(nil)
)
