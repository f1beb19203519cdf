package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectai/pkg/errors"
)

func sineWave(freq float64, rate, n int, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestULawRoundTrip(t *testing.T) {
	samples := sineWave(440, 8000, 800, 12000)
	decoded := DecodeULaw(EncodeULaw(samples))
	require.Len(t, decoded, len(samples))

	for i := range samples {
		// Mu-law quantization error grows with amplitude; segments double in
		// step size, so the error stays within roughly 1/16 of the magnitude.
		tolerance := math.Abs(float64(samples[i]))/16 + 16
		assert.InDelta(t, float64(samples[i]), float64(decoded[i]), tolerance, "sample %d", i)
	}
}

func TestULawKnownValues(t *testing.T) {
	// Silence encodes to 0xFF, full positive clip saturates.
	assert.Equal(t, byte(0xFF), encodeULawSample(0))
	assert.Equal(t, int16(0), decodeULawSample(0xFF))
	assert.Equal(t, encodeULawSample(32767), encodeULawSample(32700), "values beyond the clip level share a code")
}

func TestUpsamplerPreservesDuration(t *testing.T) {
	up := newUpsampler(2)
	total := 0
	for _, n := range []int{160, 7, 1, 152} {
		out := up.process(sineWave(300, 8000, n, 5000))
		total += len(out)
	}
	assert.Equal(t, 2*(160+7+1+152), total)
}

func TestDownsamplerCarriesRemainder(t *testing.T) {
	down := newDownsampler(3)
	in := sineWave(300, 24000, 1000, 5000)

	// Split into awkward chunk sizes; the carry must keep the total exact.
	var total int
	for _, bounds := range [][2]int{{0, 100}, {100, 101}, {101, 500}, {500, 1000}} {
		out := down.process(in[bounds[0]:bounds[1]])
		total += len(out)
	}
	assert.Equal(t, 1000/3, total)
}

func TestResamplersAreStreamingDeterministic(t *testing.T) {
	in := sineWave(250, 8000, 480, 9000)

	one := newUpsampler(2)
	whole := one.process(in)

	split := newUpsampler(2)
	var chunked []int16
	chunked = append(chunked, split.process(in[:31])...)
	chunked = append(chunked, split.process(in[31:240])...)
	chunked = append(chunked, split.process(in[240:])...)

	assert.Equal(t, whole, chunked, "chunking must not change upsampler output")

	d1 := newDownsampler(3)
	d2 := newDownsampler(3)
	wholeDown := d1.process(in)
	var chunkedDown []int16
	chunkedDown = append(chunkedDown, d2.process(in[:100])...)
	chunkedDown = append(chunkedDown, d2.process(in[100:101])...)
	chunkedDown = append(chunkedDown, d2.process(in[101:])...)
	assert.Equal(t, wholeDown, chunkedDown, "chunking must not change downsampler output")
}

func TestTranscoderTelephonyToBackend(t *testing.T) {
	tc, err := NewTranscoder(FormatTelephony, FormatBackendIn)
	require.NoError(t, err)

	payload := EncodeULaw(sineWave(440, 8000, 160, 10000))
	in := NewFrame(payload, FormatTelephony, DirectionInbound)

	out, err := tc.Convert(in)
	require.NoError(t, err)
	assert.Equal(t, FormatBackendIn, out.Format)
	assert.Equal(t, 320, out.Samples(), "2x upsample of 160 samples")
	assert.Equal(t, in.Duration(), out.Duration(), "duration preserved")
}

func TestTranscoderBackendToTelephony(t *testing.T) {
	tc, err := NewTranscoder(FormatBackendOut, FormatTelephony)
	require.NoError(t, err)

	pcm := pcmToBytes(sineWave(440, 24000, 480, 10000))
	in := NewFrame(pcm, FormatBackendOut, DirectionOutbound)

	out, err := tc.Convert(in)
	require.NoError(t, err)
	assert.Equal(t, FormatTelephony, out.Format)
	assert.Equal(t, 160, out.Samples(), "3:1 downsample of 480 samples")
	assert.Equal(t, in.Duration(), out.Duration())
}

func TestTranscoderRoundTripFidelity(t *testing.T) {
	// Caller leg -> backend input, then a 16k->telephony return path. The
	// reconstructed signal must track the original within companding and
	// interpolation error.
	toBackend, err := NewTranscoder(FormatTelephony, FormatBackendIn)
	require.NoError(t, err)
	toCaller, err := NewTranscoder(Format{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1}, FormatTelephony)
	require.NoError(t, err)

	original := sineWave(200, 8000, 800, 8000)
	frame := NewFrame(EncodeULaw(original), FormatTelephony, DirectionInbound)

	mid, err := toBackend.Convert(frame)
	require.NoError(t, err)
	back, err := toCaller.Convert(Frame{Data: mid.Data, Format: toCaller.from, Direction: DirectionOutbound})
	require.NoError(t, err)

	decoded := DecodeULaw(back.Data)
	require.Len(t, decoded, len(original), "total duration preserved across the round trip")

	// Skip the first samples where the interpolator is still priming.
	for i := 4; i < len(original); i++ {
		assert.InDelta(t, float64(original[i]), float64(decoded[i]), 1200, "sample %d", i)
	}
}

func TestTranscoderRejectsMalformedFrames(t *testing.T) {
	tc, err := NewTranscoder(FormatBackendOut, FormatTelephony)
	require.NoError(t, err)

	// Odd byte length cannot be 16-bit samples.
	_, err = tc.Convert(NewFrame(make([]byte, 161), FormatBackendOut, DirectionOutbound))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTranscode))

	// Frame format must match the configured source.
	_, err = tc.Convert(NewFrame(make([]byte, 160), FormatTelephony, DirectionOutbound))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTranscode))
}

func TestTranscoderRejectsUnsupportedRatios(t *testing.T) {
	_, err := NewTranscoder(
		Format{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1},
		Format{Encoding: EncodingPCM16, SampleRate: 24000, Channels: 1},
	)
	require.Error(t, err)

	_, err = NewTranscoder(FormatTelephony, Format{Encoding: EncodingPCM16, SampleRate: 8000, Channels: 2})
	require.Error(t, err)
}

func TestEmptyFrame(t *testing.T) {
	tc, err := NewTranscoder(FormatTelephony, FormatBackendIn)
	require.NoError(t, err)

	out, err := tc.Convert(NewFrame(nil, FormatTelephony, DirectionInbound))
	require.NoError(t, err)
	assert.Empty(t, out.Data)
}
