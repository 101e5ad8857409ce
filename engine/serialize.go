package engine

import (
	"context"

	"github.com/pithecene-io/scenesync/asset"
	"github.com/pithecene-io/scenesync/types"
)

// Serializer converts snapshots to scene_update messages, resolving
// material textures through the asset cache.
type Serializer struct {
	cache *asset.Cache
}

// NewSerializer creates a serializer. A nil cache leaves textures out.
func NewSerializer(cache *asset.Cache) *Serializer {
	return &Serializer{cache: cache}
}

// Serialize builds the scene_update for snap. A nil snapshot yields an
// empty scene. Collections are never nil so they encode as [].
func (z *Serializer) Serialize(ctx context.Context, snap *types.SceneSnapshot) *types.SceneUpdate {
	return z.serialize(ctx, snap, nil)
}

// SerializeTallied is Serialize with texture cache outcomes counted in the
// returned tally instead of the cache's recorder.
func (z *Serializer) SerializeTallied(ctx context.Context, snap *types.SceneSnapshot) (*types.SceneUpdate, *asset.Tally) {
	tally := &asset.Tally{}
	return z.serialize(ctx, snap, tally), tally
}

func (z *Serializer) serialize(ctx context.Context, snap *types.SceneSnapshot, tally *asset.Tally) *types.SceneUpdate {
	if snap == nil {
		snap = &types.SceneSnapshot{}
	}

	msg := &types.SceneUpdate{
		Type:    types.MessageSceneUpdate,
		Objects: make([]types.ObjectDescriptor, 0, len(snap.Objects)),
		Lights:  make([]types.LightDescriptor, 0, len(snap.Lights)),
		World:   snap.World.Descriptor(),
	}
	for i := range snap.Objects {
		msg.Objects = append(msg.Objects, z.object(ctx, &snap.Objects[i], tally))
	}
	for i := range snap.Lights {
		msg.Lights = append(msg.Lights, snap.Lights[i].Descriptor())
	}
	return msg
}

func (z *Serializer) object(ctx context.Context, o *types.MeshObject, tally *asset.Tally) types.ObjectDescriptor {
	d := types.ObjectDescriptor{
		Name:      o.Name,
		Transform: o.Transform,
		Materials: z.materials(ctx, o.Materials, tally),
	}
	if d.Transform.IsZero() {
		d.Transform = types.Identity()
	}

	if o.HasCornerUVs() {
		d.Vertices, d.Faces, d.UVs = unrollCorners(o)
		return d
	}

	d.Vertices = o.Vertices
	if d.Vertices == nil {
		d.Vertices = []types.Vec3{}
	}
	d.Faces = make([][3]int, 0, len(o.Faces))
	for _, f := range o.Faces {
		if inRange(f, len(o.Vertices)) {
			d.Faces = append(d.Faces, f)
		}
	}
	return d
}

// unrollCorners emits one vertex per face corner so each corner can carry
// its own UV. Faces referencing a missing vertex are dropped.
func unrollCorners(o *types.MeshObject) ([]types.Vec3, [][3]int, []types.Vec2) {
	vertices := make([]types.Vec3, 0, 3*len(o.Faces))
	faces := make([][3]int, 0, len(o.Faces))
	uvs := make([]types.Vec2, 0, 3*len(o.Faces))

	for i, f := range o.Faces {
		if !inRange(f, len(o.Vertices)) {
			continue
		}
		base := len(vertices)
		for k := 0; k < 3; k++ {
			vertices = append(vertices, o.Vertices[f[k]])
			uvs = append(uvs, o.UVs[3*i+k])
		}
		faces = append(faces, [3]int{base, base + 1, base + 2})
	}
	return vertices, faces, uvs
}

func inRange(f [3]int, n int) bool {
	for _, idx := range f {
		if idx < 0 || idx >= n {
			return false
		}
	}
	return true
}

// materials returns one descriptor per slot, or a single default material
// when the object has no slots. Empty slots use the default material.
func (z *Serializer) materials(ctx context.Context, slots []*types.Material, tally *asset.Tally) []types.MaterialDescriptor {
	if len(slots) == 0 {
		return []types.MaterialDescriptor{types.DefaultMaterial()}
	}
	out := make([]types.MaterialDescriptor, 0, len(slots))
	for _, m := range slots {
		d := m.Descriptor()
		switch {
		case m == nil || z.cache == nil:
		case tally != nil:
			d.Textures = z.cache.ResolveTexturesWith(ctx, m.Textures, tally)
		default:
			d.Textures = z.cache.ResolveTextures(ctx, m.Textures)
		}
		out = append(out, d)
	}
	return out
}
