package audio

import (
	"connectai/pkg/errors"
)

// Transcoder converts frames between two fixed formats. One instance serves
// one direction of one session; the only retained state is the resampler
// continuity state, never shared across sessions.
type Transcoder struct {
	from Format
	to   Format
	up   *upsampler
	down *downsampler
}

// NewTranscoder builds a converter for the given format pair. The sample-rate
// ratio must be a whole number in one direction or the other.
func NewTranscoder(from, to Format) (*Transcoder, error) {
	if from.SampleRate <= 0 || to.SampleRate <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "sample rates must be positive (%d -> %d)", from.SampleRate, to.SampleRate)
	}
	if from.Channels != 1 || to.Channels != 1 {
		return nil, errors.Wrap(errors.ErrNotImplemented, "only mono audio is supported")
	}

	t := &Transcoder{from: from, to: to}
	switch {
	case from.SampleRate == to.SampleRate:
		// Companding change only.
	case to.SampleRate%from.SampleRate == 0:
		t.up = newUpsampler(to.SampleRate / from.SampleRate)
	case from.SampleRate%to.SampleRate == 0:
		t.down = newDownsampler(from.SampleRate / to.SampleRate)
	default:
		return nil, errors.Wrapf(errors.ErrNotImplemented, "non-integer resample ratio %d -> %d", from.SampleRate, to.SampleRate)
	}
	return t, nil
}

// Convert transcodes one frame. Malformed input (byte length inconsistent
// with the stated format, or a format other than the configured source) fails
// fast with ErrTranscode; the caller decides whether the drop is fatal.
func (t *Transcoder) Convert(frame Frame) (Frame, error) {
	if frame.Format != t.from {
		return Frame{}, errors.Wrapf(errors.ErrTranscode, "frame format %v does not match transcoder source %v", frame.Format, t.from)
	}
	if _, err := t.from.SampleCount(len(frame.Data)); err != nil {
		return Frame{}, err
	}
	if len(frame.Data) == 0 {
		return Frame{Data: nil, Format: t.to, Direction: frame.Direction, Timestamp: frame.Timestamp}, nil
	}

	var samples []int16
	switch t.from.Encoding {
	case EncodingULaw:
		samples = DecodeULaw(frame.Data)
	case EncodingPCM16:
		samples = bytesToPCM(frame.Data)
	default:
		return Frame{}, errors.Wrapf(errors.ErrTranscode, "unsupported source encoding %q", t.from.Encoding)
	}

	if t.up != nil {
		samples = t.up.process(samples)
	} else if t.down != nil {
		samples = t.down.process(samples)
	}

	var data []byte
	switch t.to.Encoding {
	case EncodingULaw:
		data = EncodeULaw(samples)
	case EncodingPCM16:
		data = pcmToBytes(samples)
	default:
		return Frame{}, errors.Wrapf(errors.ErrTranscode, "unsupported target encoding %q", t.to.Encoding)
	}

	return Frame{Data: data, Format: t.to, Direction: frame.Direction, Timestamp: frame.Timestamp}, nil
}
