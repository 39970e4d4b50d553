package domain

import (
	"errors"
	"time"
)

var (
	// ErrEmptyProgram is returned when reading from a program without frames
	ErrEmptyProgram = errors.New("program has no frames")
	// ErrEndOfProgram is returned by Program.Next after the last frame; the cursor is reset
	ErrEndOfProgram = errors.New("end of program")
)

// Priority marks how the scheduler treats a program
type Priority string

const (
	// PriorityNormal programs take part in the round-robin rotation
	PriorityNormal Priority = ""
	// PriorityAlert programs preempt the rotation until played through
	PriorityAlert Priority = "alert"
)

// Frame is one bitmap for the display: one byte per pixel, row-major,
// top-left origin, 0 is off and 255 full brightness.
type Frame struct {
	pixels   []byte
	duration time.Duration
}

// NewFrame copies pixels into a new immutable Frame
func NewFrame(pixels []byte, duration time.Duration) Frame {
	buf := make([]byte, len(pixels))
	copy(buf, pixels)
	return Frame{pixels: buf, duration: duration}
}

// Pixels returns the raw pixel data. The slice is shared and must not be modified.
func (f Frame) Pixels() []byte {
	return f.pixels
}

// Duration returns how long the frame stays on the display
func (f Frame) Duration() time.Duration {
	return f.duration
}

// Len returns the number of pixels in the frame
func (f Frame) Len() int {
	return len(f.pixels)
}

// Program is a named, ordered sequence of frames with a cyclic read cursor.
type Program struct {
	// ID is the catalog key. Empty means the singleton unnamed slot.
	ID string
	// Priority is PriorityAlert for alert programs
	Priority Priority
	// ValidTime in seconds overrides the catalog retirement age when positive
	ValidTime int

	frames []Frame
	cursor int
}

// NewProgram creates a program with its cursor before the first frame
func NewProgram(id string, frames ...Frame) *Program {
	p := &Program{ID: id, cursor: -1}
	p.frames = append(p.frames, frames...)
	return p
}

// Append adds a frame at the end of the program
func (p *Program) Append(f Frame) {
	p.frames = append(p.frames, f)
}

// Frames returns a copy of the frame list
func (p *Program) Frames() []Frame {
	out := make([]Frame, len(p.frames))
	copy(out, p.frames)
	return out
}

// Len returns the number of frames
func (p *Program) Len() int {
	return len(p.frames)
}

// IsAlert reports whether the program preempts normal rotation
func (p *Program) IsAlert() bool {
	return p.Priority == PriorityAlert
}

// Duration is the sum of all frame durations
func (p *Program) Duration() time.Duration {
	var total time.Duration
	for _, f := range p.frames {
		total += f.duration
	}
	return total
}

// Next advances the cursor and returns the frame under it.
// After the last frame it returns ErrEndOfProgram and resets the cursor,
// so the following call starts over at the first frame.
func (p *Program) Next() (Frame, error) {
	if len(p.frames) == 0 {
		return Frame{}, ErrEmptyProgram
	}
	p.cursor++
	if p.cursor >= len(p.frames) {
		p.cursor = -1
		return Frame{}, ErrEndOfProgram
	}
	return p.frames[p.cursor], nil
}

// Reset moves the cursor back before the first frame
func (p *Program) Reset() {
	p.cursor = -1
}

// AtEnd reports whether the last returned frame was the final one
func (p *Program) AtEnd() bool {
	return len(p.frames) > 0 && p.cursor == len(p.frames)-1
}

// TransportEventKind identifies what happened on the transport
type TransportEventKind int

const (
	// EventConnected is emitted on every (re)connection to the broker
	EventConnected TransportEventKind = iota
	// EventDisconnected is emitted when the connection is lost
	EventDisconnected
	// EventMessage carries a message received on a subscribed topic
	EventMessage
)

// String returns a readable name for logging
func (k TransportEventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Message is a single publication received from the transport
type Message struct {
	Topic     string
	Payload   []byte
	QoS       byte
	Duplicate bool
	Retained  bool
	MessageID uint16
}

// TransportEvent is delivered on Transport.Events()
type TransportEvent struct {
	Kind    TransportEventKind
	Message Message
	// Err is the disconnection reason, if any
	Err error
}
