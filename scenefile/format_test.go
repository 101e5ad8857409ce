package scenefile

import (
	"strings"
	"testing"

	"github.com/pithecene-io/scenesync/types"
)

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"scene.json", FormatJSON, false},
		{"scene.YAML", FormatYAML, false},
		{"dir/scene.yml", FormatYAML, false},
		{"scene.msgpack", FormatMsgpack, false},
		{"scene.mpk", FormatMsgpack, false},
		{"scene.blend", "", true},
		{"scene", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatOf(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatOf(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FormatOf(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

const yamlScene = `
objects:
  - name: Tri
    vertices: [[0, 0, 0], [1, 0, 0], [0, 1, 0]]
    faces: [[0, 1, 2]]
    uvs: [[0, 0], [1, 0], [0, 1]]
    materials:
      - name: Red
        color: [1, 0, 0]
        roughness: 0.2
        textures:
          diffuse:
            name: wood.png
            path: //textures/wood.png
lights:
  - name: Sun
    type: sun
    position: [0, 0, 10]
    rotation: [0, 0, 0]
    energy: 3
world:
  ambient_strength: 0.4
`

func TestDecode_YAML(t *testing.T) {
	snap, err := Decode([]byte(yamlScene), FormatYAML)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(snap.Objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(snap.Objects))
	}
	obj := snap.Objects[0]
	if obj.Name != "Tri" || len(obj.Vertices) != 3 || len(obj.Faces) != 1 {
		t.Errorf("unexpected object: %+v", obj)
	}
	if !obj.HasCornerUVs() {
		t.Error("expected per-corner UVs")
	}
	if obj.Transform != types.Identity() {
		t.Errorf("missing transform should become identity, got %v", obj.Transform)
	}

	m := obj.Materials[0]
	if m.Roughness == nil || *m.Roughness != 0.2 {
		t.Errorf("Roughness = %v, want 0.2", m.Roughness)
	}
	tex := m.Textures[types.ChannelDiffuse]
	if tex.Path != "//textures/wood.png" {
		t.Errorf("texture path = %q", tex.Path)
	}

	if len(snap.Lights) != 1 || snap.Lights[0].Type != types.LightSun {
		t.Errorf("unexpected lights: %+v", snap.Lights)
	}
	if snap.World == nil || snap.World.AmbientStrength == nil || *snap.World.AmbientStrength != 0.4 {
		t.Errorf("unexpected world: %+v", snap.World)
	}
}

func TestDecode_JSONKeepsTransform(t *testing.T) {
	doc := `{"objects":[{"name":"Box","vertices":[],"faces":[],
		"transform":[[1,0,0,5],[0,1,0,0],[0,0,1,0],[0,0,0,1]]}]}`
	snap, err := Decode([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := snap.Objects[0].Transform[0][3]; got != 5 {
		t.Errorf("translation x = %v, want 5", got)
	}
}

func TestEncodeDecode_AllFormats(t *testing.T) {
	roughness := 0.5
	src := &types.SceneSnapshot{
		Objects: []types.MeshObject{{
			Name:      "Quad",
			Vertices:  []types.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
			Faces:     [][3]int{{0, 1, 2}, {0, 2, 3}},
			Transform: Compose(types.Vec3{1, 2, 3}, types.Vec3{}, types.Vec3{1, 1, 1}),
			Materials: []*types.Material{{
				Name:      "M",
				Roughness: &roughness,
				Textures: map[types.TextureChannel]types.TextureSource{
					types.ChannelNormal: {Name: "n.png", Packed: []byte{0x89, 'P', 'N', 'G'}},
				},
			}},
		}},
	}

	for _, format := range []Format{FormatJSON, FormatYAML, FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Encode(src, format)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(data, format)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			obj := got.Objects[0]
			if obj.Name != "Quad" || len(obj.Faces) != 2 {
				t.Errorf("unexpected object: %+v", obj)
			}
			if obj.Transform != src.Objects[0].Transform {
				t.Errorf("Transform = %v, want %v", obj.Transform, src.Objects[0].Transform)
			}
			packed := obj.Materials[0].Textures[types.ChannelNormal].Packed
			if string(packed) != "\x89PNG" {
				t.Errorf("packed bytes = %q", packed)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"bad json", "{", FormatJSON},
		{"bad yaml", "objects: [", FormatYAML},
		{"bad msgpack", "\xc1", FormatMsgpack},
		{"unknown format", "{}", Format("toml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.data), tt.format); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEncode_MsgpackUsesJSONKeys(t *testing.T) {
	data, err := Encode(&types.SceneSnapshot{Objects: []types.MeshObject{{Name: "A"}}}, FormatMsgpack)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(data), "objects") || strings.Contains(string(data), "Objects") {
		t.Errorf("expected lower-case json keys in %q", data)
	}
}
