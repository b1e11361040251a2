// Package spatialmath defines the pose type scene objects are reported in.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// PoseLen is the number of values in the flat representation of a pose.
const PoseLen = 7

// Pose is a position and orientation in 3D space.
type Pose struct {
	point       r3.Vector
	orientation quat.Number
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() Pose {
	return Pose{orientation: quat.Number{Real: 1}}
}

// NewPose returns a pose at point with orientation q. The quaternion is normalized; a zero
// quaternion is treated as no rotation.
func NewPose(point r3.Vector, q quat.Number) Pose {
	return Pose{point: point, orientation: normalize(q)}
}

// NewPoseFromPoint returns a pose at point with no rotation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return NewPose(point, quat.Number{Real: 1})
}

// NewPoseFromArray builds a pose from its flat representation: x, y, z, qw, qx, qy, qz.
func NewPoseFromArray(v []float64) (Pose, error) {
	if len(v) != PoseLen {
		return Pose{}, errors.Errorf("pose needs %d values, got %d", PoseLen, len(v))
	}
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Pose{}, errors.Errorf("pose value %d is not finite: %v", i, f)
		}
	}
	return NewPose(
		r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		quat.Number{Real: v[3], Imag: v[4], Jmag: v[5], Kmag: v[6]},
	), nil
}

// Point returns the position of the pose.
func (p Pose) Point() r3.Vector {
	return p.point
}

// Orientation returns the unit quaternion of the pose.
func (p Pose) Orientation() quat.Number {
	if p.orientation == (quat.Number{}) {
		return quat.Number{Real: 1}
	}
	return p.orientation
}

// Array returns the flat representation of the pose: x, y, z, qw, qx, qy, qz.
func (p Pose) Array() [PoseLen]float64 {
	q := p.Orientation()
	return [PoseLen]float64{p.point.X, p.point.Y, p.point.Z, q.Real, q.Imag, q.Jmag, q.Kmag}
}

func (p Pose) String() string {
	q := p.Orientation()
	return fmt.Sprintf("{X:%.6f Y:%.6f Z:%.6f qw:%.6f qx:%.6f qy:%.6f qz:%.6f}",
		p.point.X, p.point.Y, p.point.Z, q.Real, q.Imag, q.Jmag, q.Kmag)
}

// PoseAlmostEqual returns whether two poses are within epsilon of each other, treating q and -q
// as the same rotation.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	if a.point.Sub(b.point).Norm() > epsilon {
		return false
	}
	qa, qb := a.Orientation(), b.Orientation()
	return quat.Abs(quat.Sub(qa, qb)) <= epsilon || quat.Abs(quat.Add(qa, qb)) <= epsilon
}

func normalize(q quat.Number) quat.Number {
	norm := quat.Abs(q)
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/norm, q)
}
