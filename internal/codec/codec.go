// Package codec converts programs to and from their wire payloads.
//
// A payload is a two-element container [frames, sequence_metadata] where each
// frame is [pixel_data, frame_metadata]. The JSON variant carries base64 pixel
// data and is what producers publish; the msgpack variant carries raw bytes and
// is used between pipeline stages. Both decode to the same domain.Program.
// The msgpack decoder also takes the older bare frame list without the
// sequence metadata element.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"go.uber.org/zap"
)

var (
	// ErrMalformedContainer means the payload is not a [frames, metadata] container
	ErrMalformedContainer = errors.New("malformed sequence container")
	// ErrCorruptPixels means the pixel data of a frame could not be decoded
	ErrCorruptPixels = errors.New("corrupt pixel data")
	// ErrFrameSize means a frame does not have exactly the display size
	ErrFrameSize = errors.New("frame has the wrong length")
	// ErrEmptySequence means no frame survived decoding
	ErrEmptySequence = errors.New("sequence has no frames")
)

// Options carries the display parameters decoding depends on
type Options struct {
	DisplaySize  int
	DefaultDelay time.Duration
}

// NewOptions derives decoding options from the display configuration
func NewOptions(cfg *config.AppConfig) Options {
	return Options{
		DisplaySize:  cfg.Display.Size,
		DefaultDelay: cfg.DefaultDelay(),
	}
}

// Codec decodes and encodes one wire variant
type Codec interface {
	Decode(payload []byte) (*domain.Program, error)
	Encode(p *domain.Program) ([]byte, error)
}

// Format identifies a wire variant
type Format int

const (
	// FormatUnknown is returned by Detect for payloads neither variant can start with
	FormatUnknown Format = iota
	// FormatJSON is the base64 variant producers publish
	FormatJSON
	// FormatMsgpack is the raw-bytes variant used between pipeline stages
	FormatMsgpack
)

// String returns the name used in log fields and metric labels
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// Detect guesses the variant from the first significant byte
func Detect(payload []byte) Format {
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	if len(trimmed) == 0 {
		return FormatUnknown
	}
	c := trimmed[0]
	switch {
	case c == '[':
		return FormatJSON
	case c >= 0x90 && c <= 0x9f, c == 0xdc, c == 0xdd:
		return FormatMsgpack
	default:
		return FormatUnknown
	}
}

// Auto decodes either variant and encodes JSON
type Auto struct {
	json    *JSONCodec
	msgpack *MsgpackCodec
}

// NewAuto creates a decoder that picks the variant per payload
func NewAuto(opts Options, logger *zap.Logger) *Auto {
	return &Auto{
		json:    NewJSON(opts, logger),
		msgpack: NewMsgpack(opts, logger),
	}
}

// Decode dispatches on Detect
func (a *Auto) Decode(payload []byte) (*domain.Program, error) {
	switch Detect(payload) {
	case FormatJSON:
		return a.json.Decode(payload)
	case FormatMsgpack:
		return a.msgpack.Decode(payload)
	default:
		return nil, fmt.Errorf("%w: unrecognised payload format", ErrMalformedContainer)
	}
}

// Encode produces the canonical JSON payload
func (a *Auto) Encode(p *domain.Program) ([]byte, error) {
	return a.json.Encode(p)
}

// assembler applies the shared frame policy for both variants:
// corrupt or wrongly sized pixel data drops the whole sequence,
// malformed frame metadata ends it early.
type assembler struct {
	opts    Options
	logger  *zap.Logger
	program *domain.Program
	format  Format
}

func newAssembler(opts Options, logger *zap.Logger, format Format) *assembler {
	return &assembler{
		opts:    opts,
		logger:  logger,
		program: domain.NewProgram(""),
		format:  format,
	}
}

// addFrame returns stop=true when decoding must end with the frames so far
func (a *assembler) addFrame(index int, pixels []byte, pixelErr error, meta map[string]any, metaErr error) (stop bool, err error) {
	if pixelErr != nil {
		return true, fmt.Errorf("%w: frame %d: %v", ErrCorruptPixels, index, pixelErr)
	}
	if len(pixels) != a.opts.DisplaySize {
		return true, fmt.Errorf("%w: frame %d is %d bytes, expected %d", ErrFrameSize, index, len(pixels), a.opts.DisplaySize)
	}
	duration := a.opts.DefaultDelay
	if metaErr == nil && meta != nil {
		duration, metaErr = durationFrom(meta, a.opts.DefaultDelay)
	}
	if metaErr != nil {
		a.logger.Warn("Malformed frame metadata, keeping frames decoded so far",
			zap.String("format", a.format.String()),
			zap.Int("frame", index),
			zap.Error(metaErr))
		return true, nil
	}
	a.program.Append(domain.NewFrame(pixels, duration))
	return false, nil
}

func (a *assembler) applySequenceMeta(meta map[string]any) error {
	if meta == nil {
		return nil
	}
	if v, ok := meta["program"]; ok && v != nil {
		id, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: program must be a string, got %T", ErrMalformedContainer, v)
		}
		a.program.ID = id
	}
	if v, ok := meta["priority"]; ok && v != nil {
		prio, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: priority must be a string, got %T", ErrMalformedContainer, v)
		}
		a.program.Priority = domain.Priority(prio)
	}
	if v, ok := meta["valid_time"]; ok && v != nil {
		secs, ok := toFloat(v)
		if !ok || secs < 0 {
			return fmt.Errorf("%w: valid_time must be a non-negative number, got %v", ErrMalformedContainer, v)
		}
		a.program.ValidTime = int(secs)
	}
	return nil
}

func (a *assembler) result() (*domain.Program, error) {
	if a.program.Len() == 0 {
		return nil, ErrEmptySequence
	}
	return a.program, nil
}

// durationFrom reads the duration (milliseconds) from frame metadata
func durationFrom(meta map[string]any, def time.Duration) (time.Duration, error) {
	v, ok := meta["duration"]
	if !ok || v == nil {
		return def, nil
	}
	ms, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("duration must be a number, got %T", v)
	}
	if ms < 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("duration out of range: %v", ms)
	}
	return time.Duration(math.Round(ms * float64(time.Millisecond))), nil
}

// durationMs is the inverse of durationFrom; sub-millisecond parts survive
func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// sequenceMeta builds the metadata map for encoding; unset fields are left out
func sequenceMeta(p *domain.Program) map[string]any {
	meta := map[string]any{}
	if p.ID != "" {
		meta["program"] = p.ID
	}
	if p.ValidTime > 0 {
		meta["valid_time"] = p.ValidTime
	}
	if p.Priority != domain.PriorityNormal {
		meta["priority"] = string(p.Priority)
	}
	return meta
}
