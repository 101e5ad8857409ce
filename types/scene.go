// Package types defines the scene snapshot model and the wire messages
// exchanged with the remote viewer.
package types

// Vec2 is a 2-component vector (UV coordinates).
type Vec2 [2]float64

// Vec3 is a 3-component vector (positions, Euler angles, colors).
type Vec3 [3]float64

// Mat4 is a 4x4 row-major matrix.
type Mat4 [4][4]float64

// Identity returns the 4x4 identity matrix.
func Identity() Mat4 {
	return Mat4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// IsZero reports whether every element of m is zero.
func (m Mat4) IsZero() bool {
	return m == Mat4{}
}

// SceneSnapshot is an immutable point-in-time representation of the scene.
// It is produced by the host's scene extraction and handed to the engine,
// which never mutates it.
type SceneSnapshot struct {
	Objects []MeshObject `json:"objects" yaml:"objects"`
	Lights  []Light      `json:"lights,omitempty" yaml:"lights,omitempty"`
	World   *World       `json:"world,omitempty" yaml:"world,omitempty"`
}

// MeshObject is one triangulated mesh in the snapshot.
//
// Vertices are in object-local coordinates; Transform places them in the
// world. UVs, when present, are per face corner: UVs[3*i+k] belongs to
// corner k of Faces[i].
type MeshObject struct {
	Name      string      `json:"name" yaml:"name"`
	Vertices  []Vec3      `json:"vertices" yaml:"vertices"`
	Faces     [][3]int    `json:"faces" yaml:"faces"`
	UVs       []Vec2      `json:"uvs,omitempty" yaml:"uvs,omitempty"`
	Transform Mat4        `json:"transform" yaml:"transform"`
	Materials []*Material `json:"materials,omitempty" yaml:"materials,omitempty"`
}

// HasCornerUVs reports whether the object carries one UV per face corner.
func (o *MeshObject) HasCornerUVs() bool {
	return len(o.UVs) > 0 && len(o.UVs) == 3*len(o.Faces)
}

// Material is a material slot as supplied by the host.
// Nil fields fall back to the defaults in DefaultMaterial.
type Material struct {
	Name               string                           `json:"name" yaml:"name"`
	Type               MaterialType                     `json:"type,omitempty" yaml:"type,omitempty"`
	Color              *Vec3                            `json:"color,omitempty" yaml:"color,omitempty"`
	Roughness          *float64                         `json:"roughness,omitempty" yaml:"roughness,omitempty"`
	Metalness          *float64                         `json:"metalness,omitempty" yaml:"metalness,omitempty"`
	Emission           *Vec3                            `json:"emission,omitempty" yaml:"emission,omitempty"`
	EmissionStrength   *float64                         `json:"emissionStrength,omitempty" yaml:"emission_strength,omitempty"`
	Transparency       *float64                         `json:"transparency,omitempty" yaml:"transparency,omitempty"`
	IOR                *float64                         `json:"ior,omitempty" yaml:"ior,omitempty"`
	NormalStrength     *float64                         `json:"normalStrength,omitempty" yaml:"normal_strength,omitempty"`
	Clearcoat          *float64                         `json:"clearcoat,omitempty" yaml:"clearcoat,omitempty"`
	ClearcoatRoughness *float64                         `json:"clearcoatRoughness,omitempty" yaml:"clearcoat_roughness,omitempty"`
	Textures           map[TextureChannel]TextureSource `json:"textures,omitempty" yaml:"textures,omitempty"`
}

// MaterialType classifies how the viewer should shade a material.
type MaterialType string

// Material types understood by the viewer.
const (
	MaterialStandard    MaterialType = "standard"
	MaterialEmission    MaterialType = "emission"
	MaterialGlass       MaterialType = "glass"
	MaterialTransparent MaterialType = "transparent"
)

// TextureChannel names the material input a texture is bound to.
type TextureChannel string

// Texture channels.
const (
	ChannelDiffuse   TextureChannel = "diffuse"
	ChannelRoughness TextureChannel = "roughness"
	ChannelMetalness TextureChannel = "metalness"
	ChannelNormal    TextureChannel = "normal"
	ChannelEmission  TextureChannel = "emission"
)

// TextureSource describes where an image's bytes live.
//
// Exactly one provenance is used, in order: Packed bytes embedded in the
// host document, then Path. Path may be absolute, relative to the process
// working directory, document-relative ("//textures/wood.png"), or an
// object store URI ("s3://bucket/key").
type TextureSource struct {
	Name   string `json:"name" yaml:"name"`
	Packed []byte `json:"packed,omitempty" yaml:"packed,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// IsPacked reports whether the source carries its bytes inline.
func (s *TextureSource) IsPacked() bool {
	return s != nil && s.Packed != nil
}

// LightType is the kind of a scene light.
type LightType string

// Light types.
const (
	LightSun   LightType = "sun"
	LightPoint LightType = "point"
	LightSpot  LightType = "spot"
	LightArea  LightType = "area"
)

// Light is a light object in the snapshot.
// Angle and Blend apply to spot lights, Size to area lights, and Distance
// to point and spot lights.
type Light struct {
	Name     string    `json:"name" yaml:"name"`
	Type     LightType `json:"type" yaml:"type"`
	Position Vec3      `json:"position" yaml:"position"`
	Rotation Vec3      `json:"rotation" yaml:"rotation"`
	Color    *Vec3     `json:"color,omitempty" yaml:"color,omitempty"`
	Energy   float64   `json:"energy" yaml:"energy"`
	Angle    *float64  `json:"angle,omitempty" yaml:"angle,omitempty"`
	Blend    *float64  `json:"blend,omitempty" yaml:"blend,omitempty"`
	Size     *float64  `json:"size,omitempty" yaml:"size,omitempty"`
	Distance *float64  `json:"distance,omitempty" yaml:"distance,omitempty"`
}

// World holds environment settings. Nil fields use DefaultWorld values.
type World struct {
	BackgroundColor *Vec3    `json:"backgroundColor,omitempty" yaml:"background_color,omitempty"`
	AmbientColor    *Vec3    `json:"ambientColor,omitempty" yaml:"ambient_color,omitempty"`
	AmbientStrength *float64 `json:"ambientStrength,omitempty" yaml:"ambient_strength,omitempty"`
}
