package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"

	"github.com/pithecene-io/scenesync/types"
)

// CompressionLevel is the zlib level used for outbound payloads.
// Level 6 balances ratio against latency on large meshes.
const CompressionLevel = 6

// MaxMessageSize bounds the decompressed size of an inbound message.
const MaxMessageSize = 64 * 1024 * 1024

// Compress deflates text with a zlib wrapper.
func Compress(text []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("create zlib writer: %w", err)
	}
	if _, err := w.Write(text); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress returns the message text carried by payload.
// Payloads starting with a valid zlib header are inflated; anything else is
// taken as uncompressed text, which is what most viewers send back.
func Decompress(payload []byte) ([]byte, error) {
	if !hasZlibHeader(payload) {
		return payload, nil
	}

	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "invalid zlib stream", Size: int64(len(payload)), Err: err}
	}
	defer func() { _ = r.Close() }()

	text, err := io.ReadAll(io.LimitReader(r, MaxMessageSize+1))
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to inflate payload", Size: int64(len(payload)), Err: err}
	}
	if len(text) > MaxMessageSize {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("inflated message exceeds %d bytes", MaxMessageSize),
			Size: int64(len(payload)),
		}
	}
	return text, nil
}

// hasZlibHeader checks the RFC 1950 header: deflate method and a CMF/FLG
// pair divisible by 31. JSON text ('{', '[', whitespace) never passes.
func hasZlibHeader(p []byte) bool {
	if len(p) < 2 {
		return false
	}
	cmf, flg := p[0], p[1]
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// EncodeMessage serializes a message to its UTF-8 JSON text.
func EncodeMessage(msg any) ([]byte, error) {
	text, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return text, nil
}

// EncodePayload serializes and compresses a message, ready for EncodeFrame.
func EncodePayload(msg any) ([]byte, error) {
	text, err := EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	return Compress(text)
}

// messageTypeProbe is used to peek at the type field without full decode.
type messageTypeProbe struct {
	Type types.MessageType `json:"type"`
}

// DecodeMessage decompresses and parses a payload.
// Returns *types.TransformUpdate, *types.SceneUpdate or *types.UnknownMessage.
func DecodeMessage(payload []byte) (any, error) {
	text, err := Decompress(payload)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(text) {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "payload is not valid UTF-8", Size: int64(len(text))}
	}

	var probe messageTypeProbe
	if err := json.Unmarshal(text, &probe); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode message type", Size: int64(len(text)), Err: err}
	}

	switch probe.Type {
	case types.MessageTransformUpdate:
		u := types.NewTransformUpdate()
		if err := json.Unmarshal(text, u); err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode transform_update", Size: int64(len(text)), Err: err}
		}
		return u, nil
	case types.MessageSceneUpdate:
		var s types.SceneUpdate
		if err := json.Unmarshal(text, &s); err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode scene_update", Size: int64(len(text)), Err: err}
		}
		return &s, nil
	default:
		return &types.UnknownMessage{Type: probe.Type, Size: len(text)}, nil
	}
}
