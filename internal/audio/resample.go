package audio

// Integer-ratio resamplers. Each instance is scoped to one direction of one
// session: the carried state (previous sample, leftover group remainder) keeps
// total duration exact across frame boundaries.

// upsampler raises the sample rate by an integer factor using linear
// interpolation against the last sample of the previous frame.
type upsampler struct {
	factor int
	prev   int16
	primed bool
}

func newUpsampler(factor int) *upsampler {
	return &upsampler{factor: factor}
}

func (u *upsampler) process(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	out := make([]int16, 0, len(in)*u.factor)
	prev := u.prev
	if !u.primed {
		prev = in[0]
		u.primed = true
	}
	for _, s := range in {
		for k := 1; k <= u.factor; k++ {
			v := int32(prev) + (int32(s)-int32(prev))*int32(k)/int32(u.factor)
			out = append(out, int16(v))
		}
		prev = s
	}
	u.prev = prev
	return out
}

// downsampler lowers the sample rate by an integer factor, averaging each
// group of factor samples. Partial groups carry over to the next frame so a
// run of frames loses at most one output sample to rounding.
type downsampler struct {
	factor   int
	leftover []int16
}

func newDownsampler(factor int) *downsampler {
	return &downsampler{factor: factor}
}

func (d *downsampler) process(in []int16) []int16 {
	if len(d.leftover) > 0 {
		in = append(d.leftover, in...)
		d.leftover = nil
	}
	n := len(in) / d.factor
	out := make([]int16, 0, n)
	for i := 0; i < n; i++ {
		var sum int32
		for k := 0; k < d.factor; k++ {
			sum += int32(in[i*d.factor+k])
		}
		v := sum / int32(d.factor)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out = append(out, int16(v))
	}
	if rem := len(in) % d.factor; rem > 0 {
		d.leftover = append(d.leftover, in[len(in)-rem:]...)
	}
	return out
}
