package viewer

import "github.com/pithecene-io/scenesync/types"

// Summary condenses a scene update for display.
type Summary struct {
	Objects       int   `json:"objects"`
	Vertices      int   `json:"vertices"`
	Faces         int   `json:"faces"`
	Materials     int   `json:"materials"`
	Textures      int   `json:"textures"`
	TextureErrors int   `json:"texture_errors"`
	TextureBytes  int64 `json:"texture_bytes"`
	Lights        int   `json:"lights"`
	PayloadBytes  int   `json:"payload_bytes"`
}

// Summarize counts the contents of an update.
func Summarize(u *types.SceneUpdate, payloadBytes int) Summary {
	s := Summary{
		Objects:      len(u.Objects),
		Lights:       len(u.Lights),
		PayloadBytes: payloadBytes,
	}
	for _, obj := range u.Objects {
		s.Vertices += len(obj.Vertices)
		s.Faces += len(obj.Faces)
		s.Materials += len(obj.Materials)
		for _, m := range obj.Materials {
			for _, tex := range m.Textures {
				if tex.Error != "" {
					s.TextureErrors++
					continue
				}
				s.Textures++
				s.TextureBytes += tex.Size
			}
		}
	}
	return s
}
