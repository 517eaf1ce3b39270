// Package media renders visual artifacts from narration audio.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/CadenzaLabs/NarrateKit/engine/audio"
)

// ErrNoSamples is returned when a container carries no PCM payload.
var ErrNoSamples = errors.New("container holds no samples")

// MIMETypePNG is the MIME type of rendered waveform images.
const MIMETypePNG = "image/png"

// Default configuration values.
const (
	DefaultWaveformWidth  = 800
	DefaultWaveformHeight = 128
	DefaultSupersample    = 4
)

// Default waveform colors.
var (
	DefaultBackground = color.NRGBA{R: 0x1e, G: 0x1e, B: 0x2e, A: 0xff}
	DefaultForeground = color.NRGBA{R: 0x4f, G: 0xd1, B: 0xc5, A: 0xff}
)

// WaveformConfig configures waveform rendering behavior.
type WaveformConfig struct {
	// Width is the output image width in pixels. Default: 800.
	Width int

	// Height is the output image height in pixels. Default: 128.
	Height int

	// Supersample is the paint-resolution multiplier. The waveform is drawn
	// at Supersample times the output size and then downscaled, which keeps
	// column edges smooth. Default: 4.
	Supersample int

	// Background fills the image behind the waveform. Default: dark slate.
	Background color.Color

	// Foreground paints the waveform itself. Default: teal.
	Foreground color.Color

	// SkipIfEmpty returns ErrNoSamples for containers without a PCM payload
	// instead of rendering a flat background image. Default: true.
	SkipIfEmpty bool
}

// DefaultWaveformConfig returns sensible defaults for waveform rendering.
func DefaultWaveformConfig() WaveformConfig {
	return WaveformConfig{
		Width:       DefaultWaveformWidth,
		Height:      DefaultWaveformHeight,
		Supersample: DefaultSupersample,
		Background:  DefaultBackground,
		Foreground:  DefaultForeground,
		SkipIfEmpty: true,
	}
}

// WaveformResult contains the result of a waveform render.
type WaveformResult struct {
	Data        []byte // PNG-encoded image
	MIMEType    string
	Width       int
	Height      int
	SampleCount int
}

// RenderWaveform draws a container's samples as a min/max peak waveform and
// returns it PNG-encoded. Each output column covers an equal slice of the
// sample stream and is painted from the slice's minimum to its maximum
// amplitude, so short bursts stay visible at any width.
func RenderWaveform(container []byte, config WaveformConfig) (*WaveformResult, error) {
	if len(container) == 0 {
		return nil, fmt.Errorf("empty container data")
	}
	if config.Width <= 0 {
		config.Width = DefaultWaveformWidth
	}
	if config.Height <= 0 {
		config.Height = DefaultWaveformHeight
	}
	if config.Supersample <= 0 {
		config.Supersample = DefaultSupersample
	}
	if config.Background == nil {
		config.Background = DefaultBackground
	}
	if config.Foreground == nil {
		config.Foreground = DefaultForeground
	}

	samples := audio.PCMToInt16(audio.Decode(container))
	if len(samples) == 0 && config.SkipIfEmpty {
		return nil, ErrNoSamples
	}

	painted := paintWaveform(samples, config)
	final := downscale(painted, config.Width, config.Height)

	var buf bytes.Buffer
	if err := png.Encode(&buf, final); err != nil {
		return nil, fmt.Errorf("failed to encode waveform: %w", err)
	}

	return &WaveformResult{
		Data:        buf.Bytes(),
		MIMEType:    MIMETypePNG,
		Width:       config.Width,
		Height:      config.Height,
		SampleCount: len(samples),
	}, nil
}

// WaveformRenderer returns a render function bound to config, shaped for the
// local file store's waveform sidecar hook.
func WaveformRenderer(config WaveformConfig) func(container []byte) ([]byte, error) {
	return func(container []byte) ([]byte, error) {
		result, err := RenderWaveform(container, config)
		if err != nil {
			return nil, err
		}
		return result.Data, nil
	}
}

// paintWaveform draws min/max peak columns at supersampled resolution.
func paintWaveform(samples []int16, config WaveformConfig) *image.RGBA {
	w := config.Width * config.Supersample
	h := config.Height * config.Supersample

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(config.Background), image.Point{}, draw.Src)

	if len(samples) == 0 {
		return img
	}

	mid := float64(h) / 2
	// One supersampled pixel of headroom keeps full-scale samples off the border.
	scale := (mid - float64(config.Supersample)) / 32768.0
	if scale <= 0 {
		scale = mid / 32768.0
	}

	for x := range w {
		lo, hi := bucketPeaks(samples, x, w)
		yTop := int(mid - float64(hi)*scale)
		yBot := int(mid - float64(lo)*scale)
		for y := yTop; y <= yBot; y++ {
			img.Set(x, y, config.Foreground)
		}
	}
	return img
}

// bucketPeaks returns the minimum and maximum sample in column x's share of
// the stream. Columns always cover at least one sample.
func bucketPeaks(samples []int16, x, width int) (lo, hi int16) {
	n := len(samples)
	start := x * n / width
	end := (x + 1) * n / width
	if end <= start {
		end = start + 1
	}
	if end > n {
		end = n
	}
	lo, hi = samples[start], samples[start]
	for _, s := range samples[start:end] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return lo, hi
}

// downscale shrinks the supersampled paint to the output size.
func downscale(src *image.RGBA, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	// Use CatmullRom for high-quality downscaling (similar to Lanczos)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
