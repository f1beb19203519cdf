package audio

// G.711 mu-law companding. Constants per the ITU-T G.711 reference encoder.
const (
	ulawBias = 132
	ulawClip = 32635
)

// ulawDecodeTable maps every mu-law byte to its linear PCM value.
var ulawDecodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		ulawDecodeTable[i] = decodeULawSample(byte(i))
	}
}

func encodeULawSample(sample int16) byte {
	s := int32(sample)
	sign := int32(0)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exponent := int32(7)
	mask := int32(0x4000)
	for (s&mask) == 0 && exponent > 0 {
		exponent--
		mask >>= 1
	}

	mantissa := (s >> (exponent + 3)) & 0x0F
	return byte(^(sign | (exponent << 4) | mantissa))
}

func decodeULawSample(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	sample := ((int32(mantissa) << 3) + ulawBias) << exponent
	sample -= ulawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

// DecodeULaw expands mu-law bytes into linear PCM samples.
func DecodeULaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = ulawDecodeTable[b]
	}
	return out
}

// EncodeULaw compresses linear PCM samples into mu-law bytes.
func EncodeULaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = encodeULawSample(s)
	}
	return out
}

// pcmToBytes packs samples as little-endian 16-bit PCM.
func pcmToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// bytesToPCM unpacks little-endian 16-bit PCM. Length must be even.
func bytesToPCM(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}
	return out
}
