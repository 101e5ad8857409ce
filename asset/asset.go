// Package asset resolves texture sources into content-addressed, base64
// encoded assets and caches them across publishes and sessions.
package asset

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/spaolacci/murmur3"
)

// TextureAsset is an encoded texture ready to embed in a scene_update.
// Immutable once cached.
type TextureAsset struct {
	Name string
	// DataURL is "data:<mime>;base64,<payload>".
	DataURL string
	// Size is the raw image size in bytes.
	Size int64
	// Format is the lowercase file extension, "png" when the name has none.
	Format string
	// Hash is the murmur3 128-bit digest of the raw bytes, hex encoded.
	Hash string
}

// Valid reports whether the asset carries the fields a cache hit relies on.
func (a *TextureAsset) Valid() bool {
	return a != nil && a.Name != "" && a.Hash != ""
}

// FormatOf returns the format tag for an image name.
func FormatOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "png"
	}
	return strings.ToLower(name[i+1:])
}

// MIMEType maps a format tag to a MIME type, defaulting to image/png.
func MIMEType(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "bmp":
		return "image/bmp"
	case "tga":
		return "image/tga"
	default:
		return "image/png"
	}
}

// ContentHash returns the hex murmur3-128 digest of data.
func ContentHash(data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// Encode builds a TextureAsset from raw image bytes.
func Encode(name string, data []byte) *TextureAsset {
	format := FormatOf(name)
	return &TextureAsset{
		Name:    name,
		DataURL: "data:" + MIMEType(format) + ";base64," + base64.StdEncoding.EncodeToString(data),
		Size:    int64(len(data)),
		Format:  format,
		Hash:    ContentHash(data),
	}
}

// baseName trims directories from a path-like name for log output.
func baseName(p string) string {
	return path.Base(strings.ReplaceAll(p, "\\", "/"))
}
