// Package scenefile loads scene snapshots from JSON, YAML or msgpack files
// and keeps an in-memory scene that inbound transforms can be applied to.
package scenefile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/scenesync/types"
)

// Format is a scene file encoding.
type Format string

// Supported formats.
const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// FormatOf infers the encoding from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".msgpack", ".mpk":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unsupported scene file extension %q", filepath.Ext(path))
	}
}

// Decode parses a snapshot and normalizes it: objects without a transform
// get the identity matrix.
func Decode(data []byte, format Format) (*types.SceneSnapshot, error) {
	var snap types.SceneSnapshot
	var err error

	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &snap)
	case FormatYAML:
		err = yaml.Unmarshal(data, &snap)
	case FormatMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		err = dec.Decode(&snap)
	default:
		return nil, fmt.Errorf("unsupported scene format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s scene: %w", format, err)
	}

	normalize(&snap)
	return &snap, nil
}

// Encode serializes a snapshot in the given format. Msgpack keys use the
// same names as JSON.
func Encode(snap *types.SceneSnapshot, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(snap, "", "  ")
	case FormatYAML:
		return yaml.Marshal(snap)
	case FormatMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(snap); err != nil {
			return nil, fmt.Errorf("encode msgpack scene: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported scene format %q", format)
	}
}

func normalize(snap *types.SceneSnapshot) {
	for i := range snap.Objects {
		if snap.Objects[i].Transform.IsZero() {
			snap.Objects[i].Transform = types.Identity()
		}
	}
}
