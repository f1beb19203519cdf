package audio

import (
	"time"

	"connectai/pkg/errors"
)

// Encoding identifies the sample encoding of a frame.
type Encoding string

const (
	// EncodingULaw is 8-bit G.711 mu-law, one byte per sample.
	EncodingULaw Encoding = "ulaw"
	// EncodingPCM16 is 16-bit signed little-endian linear PCM.
	EncodingPCM16 Encoding = "pcm_s16le"
)

// Format describes the audio representation carried by a frame.
type Format struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Fixed formats used by the bridge: the telephony leg speaks 8kHz mu-law,
// the model consumes 16kHz PCM and produces 24kHz PCM.
var (
	FormatTelephony  = Format{Encoding: EncodingULaw, SampleRate: 8000, Channels: 1}
	FormatBackendIn  = Format{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1}
	FormatBackendOut = Format{Encoding: EncodingPCM16, SampleRate: 24000, Channels: 1}
)

// BytesPerSample returns the byte width of one sample.
func (f Format) BytesPerSample() int {
	if f.Encoding == EncodingULaw {
		return 1
	}
	return 2
}

// SampleCount returns how many samples n bytes hold, or an error when the
// byte length does not divide evenly into samples.
func (f Format) SampleCount(n int) (int, error) {
	w := f.BytesPerSample()
	if n%w != 0 {
		return 0, errors.Wrapf(errors.ErrTranscode, "%d bytes is not a whole number of %s samples", n, f.Encoding)
	}
	return n / w, nil
}

// Duration returns the play time of n bytes in this format.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := n / f.BytesPerSample()
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Direction tags a frame's flow relative to the caller.
type Direction int

const (
	// DirectionInbound flows from the caller toward the model.
	DirectionInbound Direction = iota
	// DirectionOutbound flows from the model toward the caller.
	DirectionOutbound
)

func (d Direction) String() string {
	if d == DirectionInbound {
		return "inbound"
	}
	return "outbound"
}

// Frame is a bounded, timestamped buffer of audio samples. Frames are
// immutable once produced; ownership transfers along the pipeline.
type Frame struct {
	Data      []byte
	Format    Format
	Direction Direction
	Timestamp time.Time
}

// NewFrame stamps a frame with the current time.
func NewFrame(data []byte, format Format, dir Direction) Frame {
	return Frame{Data: data, Format: format, Direction: dir, Timestamp: time.Now()}
}

// Samples returns the number of whole samples in the frame.
func (f Frame) Samples() int {
	return len(f.Data) / f.Format.BytesPerSample()
}

// Duration returns the frame's play time.
func (f Frame) Duration() time.Duration {
	return f.Format.Duration(len(f.Data))
}
