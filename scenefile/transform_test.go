package scenefile

import (
	"math"
	"testing"

	"github.com/pithecene-io/scenesync/types"
)

func approxMat(t *testing.T, got, want types.Mat4) {
	t.Helper()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(got[i][j]-want[i][j]) > 1e-9 {
				t.Fatalf("m[%d][%d] = %v, want %v\ngot  %v\nwant %v", i, j, got[i][j], want[i][j], got, want)
			}
		}
	}
}

func TestCompose(t *testing.T) {
	tests := []struct {
		name  string
		pos   types.Vec3
		rot   types.Vec3
		scale types.Vec3
		want  types.Mat4
	}{
		{
			name:  "identity",
			scale: types.Vec3{1, 1, 1},
			want:  types.Identity(),
		},
		{
			name:  "translation in last column",
			pos:   types.Vec3{1, 2, 3},
			scale: types.Vec3{1, 1, 1},
			want:  types.Mat4{{1, 0, 0, 1}, {0, 1, 0, 2}, {0, 0, 1, 3}, {0, 0, 0, 1}},
		},
		{
			name:  "scale on diagonal",
			scale: types.Vec3{2, 3, 4},
			want:  types.Mat4{{2, 0, 0, 0}, {0, 3, 0, 0}, {0, 0, 4, 0}, {0, 0, 0, 1}},
		},
		{
			name:  "quarter turn about z",
			rot:   types.Vec3{0, 0, math.Pi / 2},
			scale: types.Vec3{1, 1, 1},
			want:  types.Mat4{{0, -1, 0, 0}, {1, 0, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}},
		},
		{
			name:  "quarter turn about x",
			rot:   types.Vec3{math.Pi / 2, 0, 0},
			scale: types.Vec3{1, 1, 1},
			want:  types.Mat4{{1, 0, 0, 0}, {0, 0, -1, 0}, {0, 1, 0, 0}, {0, 0, 0, 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approxMat(t, Compose(tt.pos, tt.rot, tt.scale), tt.want)
		})
	}
}

func TestCompose_RotationOrder(t *testing.T) {
	// X then Z: the local y axis first tips onto +z, and a z turn leaves it there.
	m := Compose(types.Vec3{}, types.Vec3{math.Pi / 2, 0, math.Pi / 2}, types.Vec3{1, 1, 1})
	y := types.Vec3{m[0][1], m[1][1], m[2][1]}
	for i, want := range []float64{0, 0, 1} {
		if math.Abs(y[i]-want) > 1e-9 {
			t.Fatalf("rotated y axis = %v, want [0 0 1]", y)
		}
	}
}
