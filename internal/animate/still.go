package animate

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
)

// Expander turns a still frame into a vertical scroll-in sequence
type Expander struct {
	width        int
	height       int
	defaultDelay time.Duration
}

// NewExpander creates an expander for the configured display
func NewExpander(cfg *config.AppConfig) *Expander {
	return &Expander{
		width:        cfg.Display.Width,
		height:       cfg.Display.Height,
		defaultDelay: cfg.DefaultDelay(),
	}
}

// AnimateStill returns one frame per display row. The still slides up from
// the bottom edge until it sits in place in the last frame. The durations
// add up to the still's duration.
func (e *Expander) AnimateStill(still domain.Frame) ([]domain.Frame, error) {
	if still.Len() != e.width*e.height {
		return nil, fmt.Errorf("still is %d bytes, display is %dx%d", still.Len(), e.width, e.height)
	}

	total := still.Duration()
	if total <= 0 {
		total = e.defaultDelay
	}
	step := total / time.Duration(e.height)

	src := &image.Gray{
		Pix:    still.Pixels(),
		Stride: e.width,
		Rect:   image.Rect(0, 0, e.width, e.height),
	}
	background := imaging.New(e.width, e.height, color.Black)

	frames := make([]domain.Frame, 0, e.height)
	for i := 0; i < e.height; i++ {
		shifted := imaging.Paste(background, src, image.Pt(0, e.height-1-i))

		d := step
		if i == e.height-1 {
			d = total - step*time.Duration(e.height-1)
		}
		frames = append(frames, domain.NewFrame(grayPixels(shifted), d))
	}
	return frames, nil
}

// Expand replaces a single-frame program with its animated version.
// Programs with more than one frame are returned unchanged.
func (e *Expander) Expand(p *domain.Program) (*domain.Program, error) {
	if p.Len() != 1 {
		return p, nil
	}
	frames, err := e.AnimateStill(p.Frames()[0])
	if err != nil {
		return nil, err
	}
	out := domain.NewProgram(p.ID, frames...)
	out.Priority = p.Priority
	out.ValidTime = p.ValidTime
	return out, nil
}

// grayPixels reads back one byte per pixel from the red channel
func grayPixels(img *image.NRGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, row[x*4])
		}
	}
	return out
}
