package audio

import "math"

// unityGainTolerance is how far a gain may drift from 1.0 and still be
// treated as unity. Skipping the scale pass for unity gain avoids
// rounding drift on audio that should pass through untouched.
const unityGainTolerance = 0.01

// UnityGain reports whether gain is close enough to 1.0 that scaling
// would be a no-op.
func UnityGain(gain float64) bool {
	return math.Abs(gain-1.0) <= unityGainTolerance
}

// ApplyGain multiplies every 16-bit sample in raw by gain, saturating
// at the int16 range. raw is interpreted as little-endian signed 16-bit
// PCM and must have even length. The input slice is returned unchanged
// for unity gain; otherwise a scaled copy is returned.
func ApplyGain(raw []byte, gain float64) []byte {
	if UnityGain(gain) {
		return raw
	}

	out := make([]byte, len(raw))
	for i := 0; i+1 < len(raw); i += 2 {
		sample := int16(uint16(raw[i]) | uint16(raw[i+1])<<8)
		scaled := math.Round(float64(sample) * gain)
		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		} else if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}
		v := int16(scaled)
		out[i] = byte(uint16(v))
		out[i+1] = byte(uint16(v) >> 8)
	}
	return out
}
