package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DecodeBase64PCM decodes a base64-encoded raw PCM payload as returned
// by the remote synthesis boundary.
func DecodeBase64PCM(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return data, nil
}

// EncodeBase64PCM encodes raw PCM bytes to base64, the inverse of
// DecodeBase64PCM. Used by tests and fixtures.
func EncodeBase64PCM(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// Int16ToPCM converts int16 samples to little-endian PCM bytes.
func Int16ToPCM(samples []int16) []byte {
	pcm := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(s))
	}
	return pcm
}

// PCMToInt16 converts little-endian PCM bytes to int16 samples.
// A trailing odd byte is ignored.
func PCMToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
	}
	return samples
}

// PCMDuration returns the playback duration of a raw PCM payload at
// the given sample rate.
func PCMDuration(pcmLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := pcmLen / BytesPerSample
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// GenerateSineWave produces durationMs of a sine tone at the given
// frequency and sample rate, as raw PCM. Handy for tests and previews.
func GenerateSineWave(frequency float64, durationMs, sampleRate int) []byte {
	numSamples := sampleRate * durationMs / 1000
	samples := make([]int16, numSamples)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(math.Sin(2*math.Pi*frequency*t) * 16000)
	}
	return Int16ToPCM(samples)
}
