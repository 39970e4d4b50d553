package codec

import (
	"fmt"

	"github.com/genricoloni/ledmatrix/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// MsgpackCodec handles the binary-packed payload used between pipeline stages.
// The layout matches the JSON variant with raw bytes in place of base64.
type MsgpackCodec struct {
	opts   Options
	logger *zap.Logger
}

// NewMsgpack creates a msgpack codec for the given display
func NewMsgpack(opts Options, logger *zap.Logger) *MsgpackCodec {
	return &MsgpackCodec{opts: opts, logger: logger}
}

// Decode parses a msgpack payload into a program
func (c *MsgpackCodec) Decode(payload []byte) (*domain.Program, error) {
	var top []msgpack.RawMessage
	if err := msgpack.Unmarshal(payload, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}

	entries, seqMeta, err := splitContainer(top)
	if err != nil {
		return nil, err
	}

	asm := newAssembler(c.opts, c.logger, FormatMsgpack)
	if err := asm.applySequenceMeta(seqMeta); err != nil {
		return nil, err
	}

	for i, raw := range entries {
		var entry []msgpack.RawMessage
		if err := msgpack.Unmarshal(raw, &entry); err != nil || len(entry) == 0 {
			return nil, fmt.Errorf("%w: frame %d is not a [data, metadata] pair", ErrMalformedContainer, i)
		}

		var pixels []byte
		pixelErr := msgpack.Unmarshal(entry[0], &pixels)

		var meta map[string]any
		var metaErr error
		if len(entry) > 1 {
			metaErr = msgpack.Unmarshal(entry[1], &meta)
		}

		stop, err := asm.addFrame(i, pixels, pixelErr, meta, metaErr)
		if err != nil {
			return nil, err
		}
		if stop {
			break
		}
	}
	return asm.result()
}

// splitContainer separates [frames, metadata]. A bare list of
// [data, metadata] frames is accepted with empty sequence metadata.
func splitContainer(top []msgpack.RawMessage) ([]msgpack.RawMessage, map[string]any, error) {
	if len(top) == 2 {
		var meta map[string]any
		if err := msgpack.Unmarshal(top[1], &meta); err == nil {
			var entries []msgpack.RawMessage
			if err := msgpack.Unmarshal(top[0], &entries); err != nil {
				return nil, nil, fmt.Errorf("%w: frames: %v", ErrMalformedContainer, err)
			}
			return entries, meta, nil
		}
	}
	if len(top) == 0 || !isFrameEntry(top[0]) {
		return nil, nil, fmt.Errorf("%w: expected [frames, metadata] or a frame list", ErrMalformedContainer)
	}
	return top, nil, nil
}

// isFrameEntry reports whether raw looks like [data, ...] with binary data
func isFrameEntry(raw msgpack.RawMessage) bool {
	var entry []msgpack.RawMessage
	if err := msgpack.Unmarshal(raw, &entry); err != nil || len(entry) == 0 {
		return false
	}
	var pixels []byte
	return msgpack.Unmarshal(entry[0], &pixels) == nil
}

// Encode writes the program as msgpack with bin pixel data
func (c *MsgpackCodec) Encode(p *domain.Program) ([]byte, error) {
	frames := make([]any, 0, p.Len())
	for _, f := range p.Frames() {
		frames = append(frames, []any{
			f.Pixels(),
			map[string]any{"duration": durationMs(f.Duration())},
		})
	}
	out, err := msgpack.Marshal([]any{frames, sequenceMeta(p)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sequence: %w", err)
	}
	return out, nil
}
