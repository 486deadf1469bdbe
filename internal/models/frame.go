package models

import (
	"time"
)

// PixelFormat names the interleaved channel layout of Frame.Data
type PixelFormat string

const (
	PixelFormatBGR24 PixelFormat = "BGR24"
	PixelFormatGray8 PixelFormat = "GRAY8"
)

// Channels returns the number of interleaved bytes per pixel
func (p PixelFormat) Channels() int {
	switch p {
	case PixelFormatGray8:
		return 1
	default:
		return 3
	}
}

// Frame is one decoded image from a video source.
// Data is row-major, interleaved, len(Data) == Width*Height*Channels.
// A published Frame is never mutated; Clone before drawing on it.
type Frame struct {
	Data      []byte      `json:"-"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Channels  int         `json:"channels"`
	Format    PixelFormat `json:"format"`
	Timestamp time.Time   `json:"timestamp"`
	Seq       uint64      `json:"seq"`
}

// Clone returns a deep copy of the frame
func (f Frame) Clone() Frame {
	out := f
	if f.Data != nil {
		out.Data = make([]byte, len(f.Data))
		copy(out.Data, f.Data)
	}
	return out
}

// Empty reports whether the frame carries no pixels
func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// Valid reports whether the pixel buffer matches the declared geometry
func (f Frame) Valid() bool {
	return !f.Empty() && f.Channels > 0 && len(f.Data) == f.Width*f.Height*f.Channels
}

// ConnectionState is the lifecycle of a frame source connection
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
