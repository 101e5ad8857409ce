package asset

import (
	"context"

	"github.com/pithecene-io/scenesync/types"
)

// TextureDescriptorFor converts a resolve result to its wire form.
// On error only the name, original path and an error marker are set.
func TextureDescriptorFor(src *types.TextureSource, a *TextureAsset, err error) types.TextureDescriptor {
	if err != nil {
		d := types.TextureDescriptor{Name: src.Name, Error: ErrorMarker(err)}
		if src.Path != "" {
			d.Filepath = src.Path
		}
		return d
	}
	return types.TextureDescriptor{
		Name:   a.Name,
		Data:   a.DataURL,
		Size:   a.Size,
		Format: a.Format,
		Hash:   a.Hash,
	}
}

// ResolveTextures resolves every texture of a material. Failed sources are
// reported through their error marker rather than aborting the publish.
// Returns nil when the material has no textures.
func (c *Cache) ResolveTextures(ctx context.Context, textures map[types.TextureChannel]types.TextureSource) map[types.TextureChannel]types.TextureDescriptor {
	return c.ResolveTexturesWith(ctx, textures, c.currentStats())
}

// ResolveTexturesWith is ResolveTextures recording hits and loads to rec
// instead of the cache's own recorder. A nil rec records nothing.
func (c *Cache) ResolveTexturesWith(ctx context.Context, textures map[types.TextureChannel]types.TextureSource, rec StatsRecorder) map[types.TextureChannel]types.TextureDescriptor {
	if len(textures) == 0 {
		return nil
	}
	out := make(map[types.TextureChannel]types.TextureDescriptor, len(textures))
	for channel, src := range textures {
		a, err := c.resolve(ctx, &src, rec)
		if err != nil {
			c.logger.Warn("texture unavailable", map[string]any{
				"name":    src.Name,
				"channel": string(channel),
				"error":   err.Error(),
			})
		}
		out[channel] = TextureDescriptorFor(&src, a, err)
	}
	return out
}

// Tally counts cache outcomes so they can be recorded later, once the
// scene they belong to has actually been sent.
type Tally struct {
	Cached int64
	Sent   int64
}

// IncTexturesCached counts a cache hit.
func (t *Tally) IncTexturesCached() { t.Cached++ }

// IncTexturesSent counts a load.
func (t *Tally) IncTexturesSent() { t.Sent++ }

// Commit replays the counts into r.
func (t *Tally) Commit(r StatsRecorder) {
	if r == nil {
		return
	}
	for i := int64(0); i < t.Cached; i++ {
		r.IncTexturesCached()
	}
	for i := int64(0); i < t.Sent; i++ {
		r.IncTexturesSent()
	}
}
