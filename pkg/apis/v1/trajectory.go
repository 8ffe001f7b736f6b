/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1

import (
	"math"
)

// Vector3 is a cartesian vector in the ECI frame, kilometers for positions and
// kilometers per second for velocities.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Unit returns the unit vector of v, or the zero vector if v has no magnitude.
func (v Vector3) Unit() Vector3 {
	n := v.Norm()
	if n == 0 {
		return Vector3{}
	}
	return v.Scale(1 / n)
}

func (v Vector3) Distance(o Vector3) float64 {
	return v.Sub(o).Norm()
}

// TrajectoryPoint is a single propagated sample. Trajectories are ordered
// finite sequences with a uniform step, keyed by UNIX-second timestamps.
type TrajectoryPoint struct {
	Timestamp int64    `json:"timestamp"`
	Position  Vector3  `json:"position"`
	Velocity  *Vector3 `json:"velocity,omitempty"`
}
