// Package inspect summarises traffic on the display bus for debugging.
package inspect

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/ledmatrix/internal/codec"
	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"go.uber.org/zap"
)

// Kind classifies a payload
type Kind string

const (
	KindSequence Kind = "sequence"
	KindFrame    Kind = "frame"
	KindRaw      Kind = "raw"
)

const rawPreviewBytes = 64

// Alerter is notified about alert programs
type Alerter interface {
	Alert(id string, frames int, duration time.Duration) error
}

// Summary describes one inspected message
type Summary struct {
	Topic    string
	Kind     Kind
	Program  string
	Priority domain.Priority
	Frames   int
	Duration time.Duration
	Bytes    int
	// DumpPath is set when a frame was written to disk
	DumpPath string
}

// Inspector decodes bus payloads and optionally dumps frames as PNG files
type Inspector struct {
	logger      *zap.Logger
	codec       codec.Codec
	width       int
	height      int
	alertsTopic string

	dumpDir  string
	scale    int
	notifier Alerter

	mu  sync.Mutex
	seq int
}

// Option configures an Inspector
type Option func(*Inspector)

// WithDumpDir writes every display frame to dir, upscaled by scale
func WithDumpDir(dir string, scale int) Option {
	return func(i *Inspector) {
		i.dumpDir = dir
		if scale < 1 {
			scale = 1
		}
		i.scale = scale
	}
}

// WithAlerter raises a notification for every alert program
func WithAlerter(a Alerter) Option {
	return func(i *Inspector) { i.notifier = a }
}

// New creates an inspector for the configured display
func New(cfg *config.AppConfig, logger *zap.Logger, opts ...Option) *Inspector {
	i := &Inspector{
		logger:      logger,
		codec:       codec.NewAuto(codec.NewOptions(cfg), zap.NewNop()),
		width:       cfg.Display.Width,
		height:      cfg.Display.Height,
		alertsTopic: cfg.Topics.Alerts,
		scale:       1,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect classifies and logs one message
func (i *Inspector) Inspect(msg domain.Message) Summary {
	sum := Summary{Topic: msg.Topic, Bytes: len(msg.Payload)}

	if program, err := i.codec.Decode(msg.Payload); err == nil {
		sum.Kind = KindSequence
		sum.Program = program.ID
		sum.Priority = program.Priority
		sum.Frames = program.Len()
		sum.Duration = program.Duration()

		i.logger.Info("Sequence",
			zap.String("topic", msg.Topic),
			zap.String("program", program.ID),
			zap.String("priority", string(program.Priority)),
			zap.Int("frames", sum.Frames),
			zap.Duration("duration", sum.Duration))

		if i.notifier != nil && (program.IsAlert() || msg.Topic == i.alertsTopic) {
			if err := i.notifier.Alert(program.ID, sum.Frames, sum.Duration); err != nil {
				i.logger.Warn("Failed to raise alert notification", zap.Error(err))
			}
		}
		return sum
	}

	if len(msg.Payload) == i.width*i.height {
		sum.Kind = KindFrame
		sum.Frames = 1
		if i.dumpDir != "" {
			path, err := i.dump(msg.Payload)
			if err != nil {
				i.logger.Warn("Failed to dump frame", zap.Error(err))
			} else {
				sum.DumpPath = path
			}
		}
		i.logger.Info("Frame",
			zap.String("topic", msg.Topic),
			zap.Int("bytes", sum.Bytes),
			zap.String("dump", sum.DumpPath))
		return sum
	}

	sum.Kind = KindRaw
	preview := msg.Payload
	if len(preview) > rawPreviewBytes {
		preview = preview[:rawPreviewBytes]
	}
	i.logger.Info("Raw",
		zap.String("topic", msg.Topic),
		zap.Int("bytes", sum.Bytes),
		zap.String("payload", fmt.Sprintf("%q", preview)))
	return sum
}

// dump writes pixels as an upscaled grayscale PNG
func (i *Inspector) dump(pixels []byte) (string, error) {
	i.mu.Lock()
	i.seq++
	seq := i.seq
	i.mu.Unlock()

	img := &image.Gray{
		Pix:    pixels,
		Stride: i.width,
		Rect:   image.Rect(0, 0, i.width, i.height),
	}
	scaled := imaging.Resize(img, i.width*i.scale, i.height*i.scale, imaging.NearestNeighbor)

	if err := os.MkdirAll(i.dumpDir, 0o755); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	path := filepath.Join(i.dumpDir, fmt.Sprintf("frame-%06d.png", seq))
	if err := imaging.Save(scaled, path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}
