package types

import "time"

// MessageType is the discriminator carried in every wire message.
type MessageType string

// Message types.
const (
	// MessageSceneUpdate is sent by the engine with the full scene.
	MessageSceneUpdate MessageType = "scene_update"
	// MessageTransformUpdate is sent by the viewer when an object is moved.
	MessageTransformUpdate MessageType = "transform_update"
)

// SceneUpdate is the outbound scene_update message.
type SceneUpdate struct {
	Type    MessageType        `json:"type"`
	Objects []ObjectDescriptor `json:"objects"`
	Lights  []LightDescriptor  `json:"lights"`
	World   WorldDescriptor    `json:"world"`
}

// ObjectDescriptor is the wire form of a mesh object.
type ObjectDescriptor struct {
	Name      string               `json:"name"`
	Vertices  []Vec3               `json:"vertices"`
	Faces     [][3]int             `json:"faces"`
	UVs       []Vec2               `json:"uvs,omitempty"`
	Transform Mat4                 `json:"transform"`
	Materials []MaterialDescriptor `json:"materials"`
}

// MaterialDescriptor is the wire form of a material with every default
// filled in.
type MaterialDescriptor struct {
	Name               string                               `json:"name"`
	Type               MaterialType                         `json:"type"`
	Color              Vec3                                 `json:"color"`
	Roughness          float64                              `json:"roughness"`
	Metalness          float64                              `json:"metalness"`
	Emission           Vec3                                 `json:"emission"`
	EmissionStrength   float64                              `json:"emissionStrength"`
	Transparency       float64                              `json:"transparency"`
	IOR                float64                              `json:"ior"`
	NormalStrength     float64                              `json:"normalStrength"`
	Clearcoat          *float64                             `json:"clearcoat,omitempty"`
	ClearcoatRoughness *float64                             `json:"clearcoatRoughness,omitempty"`
	Textures           map[TextureChannel]TextureDescriptor `json:"textures,omitempty"`
}

// TextureDescriptor is the wire form of a resolved texture.
// On failure only Name, Filepath and Error are set.
type TextureDescriptor struct {
	Name     string `json:"name"`
	Data     string `json:"data,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Format   string `json:"format,omitempty"`
	Hash     string `json:"hash,omitempty"`
	Filepath string `json:"filepath,omitempty"`
	Error    string `json:"error,omitempty"`
}

// LightDescriptor is the wire form of a light.
type LightDescriptor struct {
	Name     string    `json:"name"`
	Type     LightType `json:"type"`
	Position Vec3      `json:"position"`
	Rotation Vec3      `json:"rotation"`
	Color    Vec3      `json:"color"`
	Energy   float64   `json:"energy"`
	Angle    *float64  `json:"angle,omitempty"`
	Blend    *float64  `json:"blend,omitempty"`
	Size     *float64  `json:"size,omitempty"`
	Distance *float64  `json:"distance,omitempty"`
}

// WorldDescriptor is the wire form of the world settings.
type WorldDescriptor struct {
	BackgroundColor Vec3    `json:"backgroundColor"`
	AmbientColor    Vec3    `json:"ambientColor"`
	AmbientStrength float64 `json:"ambientStrength"`
}

// TransformUpdate is the inbound transform_update message.
// Rotation is XYZ Euler in radians; Timestamp is epoch milliseconds.
type TransformUpdate struct {
	Type       MessageType `json:"type"`
	ObjectName string      `json:"objectName"`
	Position   Vec3        `json:"position"`
	Rotation   Vec3        `json:"rotation"`
	Scale      Vec3        `json:"scale"`
	Timestamp  float64     `json:"timestamp"`
}

// NewTransformUpdate returns a transform_update with the default pose
// (origin, no rotation, unit scale). Decoding into it leaves absent fields
// at those defaults.
func NewTransformUpdate() *TransformUpdate {
	return &TransformUpdate{
		Type:  MessageTransformUpdate,
		Scale: Vec3{1, 1, 1},
	}
}

// SentAt returns the peer-side timestamp, or the zero time when unset.
func (u *TransformUpdate) SentAt() time.Time {
	if u.Timestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(u.Timestamp))
}

// UnknownMessage is any decoded message whose type the engine does not handle.
type UnknownMessage struct {
	Type MessageType
	Size int
}
