package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/genricoloni/ledmatrix/internal/domain"
	"go.uber.org/zap"
)

// JSONCodec handles the canonical JSON payload with base64 pixel data
type JSONCodec struct {
	opts   Options
	logger *zap.Logger
}

// NewJSON creates a JSON codec for the given display
func NewJSON(opts Options, logger *zap.Logger) *JSONCodec {
	return &JSONCodec{opts: opts, logger: logger}
}

// Decode parses a JSON payload into a program
func (c *JSONCodec) Decode(payload []byte) (*domain.Program, error) {
	var top []json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	if len(top) != 2 {
		return nil, fmt.Errorf("%w: expected 2 elements, got %d", ErrMalformedContainer, len(top))
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(top[0], &entries); err != nil {
		return nil, fmt.Errorf("%w: frames: %v", ErrMalformedContainer, err)
	}

	asm := newAssembler(c.opts, c.logger, FormatJSON)

	var seqMeta map[string]any
	if err := json.Unmarshal(top[1], &seqMeta); err != nil {
		return nil, fmt.Errorf("%w: sequence metadata: %v", ErrMalformedContainer, err)
	}
	if err := asm.applySequenceMeta(seqMeta); err != nil {
		return nil, err
	}

	for i, raw := range entries {
		var entry []json.RawMessage
		if err := json.Unmarshal(raw, &entry); err != nil || len(entry) == 0 {
			return nil, fmt.Errorf("%w: frame %d is not a [data, metadata] pair", ErrMalformedContainer, i)
		}

		var pixels []byte
		var encoded string
		pixelErr := json.Unmarshal(entry[0], &encoded)
		if pixelErr == nil {
			pixels, pixelErr = base64.StdEncoding.DecodeString(encoded)
		}

		var meta map[string]any
		var metaErr error
		if len(entry) > 1 {
			metaErr = json.Unmarshal(entry[1], &meta)
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

// Encode writes the program as [[[base64, {"duration": ms}], ...], metadata]
func (c *JSONCodec) Encode(p *domain.Program) ([]byte, error) {
	frames := make([]any, 0, p.Len())
	for _, f := range p.Frames() {
		frames = append(frames, []any{
			base64.StdEncoding.EncodeToString(f.Pixels()),
			map[string]any{"duration": durationMs(f.Duration())},
		})
	}
	out, err := json.Marshal([]any{frames, sequenceMeta(p)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sequence: %w", err)
	}
	return out, nil
}

// EncodeFrame returns the base64 text form of raw pixel data
func EncodeFrame(pixels []byte) string {
	return base64.StdEncoding.EncodeToString(pixels)
}

