package scenefile

import (
	"math"

	"github.com/pithecene-io/scenesync/types"
)

// Compose builds a row-major world matrix from translation, XYZ Euler
// rotation (radians) and scale: M = T * Rz * Ry * Rx * S.
func Compose(position, rotation, scale types.Vec3) types.Mat4 {
	sx, cx := math.Sincos(rotation[0])
	sy, cy := math.Sincos(rotation[1])
	sz, cz := math.Sincos(rotation[2])

	r := [3][3]float64{
		{cy * cz, sx*sy*cz - cx*sz, cx*sy*cz + sx*sz},
		{cy * sz, sx*sy*sz + cx*cz, cx*sy*sz - sx*cz},
		{-sy, sx * cy, cx * cy},
	}

	var m types.Mat4
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = r[i][j] * scale[j]
		}
		m[i][3] = position[i]
	}
	m[3] = [4]float64{0, 0, 0, 1}
	return m
}
