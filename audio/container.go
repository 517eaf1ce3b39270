// Package audio implements the engine's single audio container format
// and sample-level volume handling.
//
// Every synthesized chunk and every merged narration is a WAV file
// holding raw little-endian signed 16-bit mono PCM behind a fixed
// 44-byte header. Encode and Decode are exact inverses over that
// layout; no other container format is read or written.
package audio

// Container layout constants. All multi-byte header fields are
// little-endian.
const (
	// HeaderSize is the fixed WAV header length produced by Encode and
	// skipped by Decode.
	HeaderSize = 44

	// DefaultSampleRate is the rate the remote synthesis boundary
	// produces and the rate merged output is written at.
	DefaultSampleRate = 24000

	// NumChannels is fixed: narration audio is mono.
	NumChannels = 1

	// BitsPerSample is fixed: samples are signed 16-bit.
	BitsPerSample = 16

	// BytesPerSample is the byte width of one sample.
	BytesPerSample = BitsPerSample / 8
)

// Encode wraps raw PCM samples in a WAV container at the given sample
// rate. The header declares linear PCM, mono, 16-bit depth, byte rate
// sampleRate*2 and block align 2; the RIFF size field is 36 plus the
// payload length.
func Encode(samples []byte, sampleRate int) []byte {
	dataSize := len(samples)
	byteRate := sampleRate * NumChannels * BytesPerSample
	blockAlign := NumChannels * BytesPerSample

	wav := make([]byte, HeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(wav[0:4], "RIFF")
	putLE32(wav[4:8], uint32(36+dataSize))
	copy(wav[8:12], "WAVE")

	// fmt sub-chunk
	copy(wav[12:16], "fmt ")
	putLE32(wav[16:20], 16)         // Subchunk1Size for PCM
	putLE16(wav[20:22], 1)          // AudioFormat (1 = PCM)
	putLE16(wav[22:24], NumChannels)
	putLE32(wav[24:28], uint32(sampleRate))
	putLE32(wav[28:32], uint32(byteRate))
	putLE16(wav[32:34], uint16(blockAlign))
	putLE16(wav[34:36], BitsPerSample)

	// data sub-chunk
	copy(wav[36:40], "data")
	putLE32(wav[40:44], uint32(dataSize))
	copy(wav[HeaderSize:], samples)

	return wav
}

// Decode strips the fixed header and returns the raw PCM payload.
// The container must have been produced by Encode; containers shorter
// than the header yield nil.
func Decode(container []byte) []byte {
	if len(container) <= HeaderSize {
		return nil
	}
	return container[HeaderSize:]
}

// SampleRate reads the declared sample rate from a container header.
// Returns 0 for buffers too short to hold a header.
func SampleRate(container []byte) int {
	if len(container) < HeaderSize {
		return 0
	}
	return int(getLE32(container[24:28]))
}

// putLE16 writes a uint16 in little-endian format.
func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// putLE32 writes a uint32 in little-endian format.
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// getLE32 reads a little-endian uint32 from b.
func getLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
