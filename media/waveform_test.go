package media

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"github.com/CadenzaLabs/NarrateKit/engine/audio"
)

// sineContainer builds a WAV container holding a 440 Hz test tone.
func sineContainer(durationMs int) []byte {
	pcm := audio.GenerateSineWave(440, durationMs, audio.DefaultSampleRate)
	return audio.Encode(pcm, audio.DefaultSampleRate)
}

// testWaveformConfig returns a small, fast configuration with optional overrides.
func testWaveformConfig(opts ...func(*WaveformConfig)) WaveformConfig {
	cfg := DefaultWaveformConfig()
	cfg.Width = 64
	cfg.Height = 32
	cfg.Supersample = 2
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func TestRenderWaveform_Dimensions(t *testing.T) {
	container := sineContainer(50)

	result, err := RenderWaveform(container, testWaveformConfig())
	if err != nil {
		t.Fatalf("RenderWaveform failed: %v", err)
	}

	if result.MIMEType != MIMETypePNG {
		t.Errorf("Expected MIME type %q, got %q", MIMETypePNG, result.MIMEType)
	}
	if result.Width != 64 || result.Height != 32 {
		t.Errorf("Expected result dimensions 64x32, got %dx%d", result.Width, result.Height)
	}

	wantSamples := audio.DefaultSampleRate * 50 / 1000
	if result.SampleCount != wantSamples {
		t.Errorf("Expected %d samples, got %d", wantSamples, result.SampleCount)
	}

	img, err := png.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("output is not a valid PNG: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Errorf("Expected image dimensions 64x32, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestRenderWaveform_DefaultsApplied(t *testing.T) {
	container := sineContainer(10)

	// Zero-value config fields fall back to defaults.
	result, err := RenderWaveform(container, WaveformConfig{})
	if err != nil {
		t.Fatalf("RenderWaveform failed: %v", err)
	}

	if result.Width != DefaultWaveformWidth || result.Height != DefaultWaveformHeight {
		t.Errorf("Expected default dimensions %dx%d, got %dx%d",
			DefaultWaveformWidth, DefaultWaveformHeight, result.Width, result.Height)
	}
}

func TestRenderWaveform_PaintsSignal(t *testing.T) {
	container := sineContainer(50)
	config := testWaveformConfig()

	result, err := RenderWaveform(container, config)
	if err != nil {
		t.Fatalf("RenderWaveform failed: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// A loud tone must leave pixels that differ from the background.
	bg := color.NRGBAModel.Convert(DefaultBackground).(color.NRGBA)
	painted := 0
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA) != bg {
				painted++
			}
		}
	}
	if painted == 0 {
		t.Error("Expected waveform pixels, image is all background")
	}
}

func TestRenderWaveform_EmptyData(t *testing.T) {
	_, err := RenderWaveform(nil, DefaultWaveformConfig())
	if err == nil {
		t.Error("Expected error for empty data")
	}
}

func TestRenderWaveform_NoSamples(t *testing.T) {
	// A header-only container carries no PCM payload.
	container := audio.Encode(nil, audio.DefaultSampleRate)

	_, err := RenderWaveform(container, DefaultWaveformConfig())
	if !errors.Is(err, ErrNoSamples) {
		t.Errorf("Expected ErrNoSamples, got %v", err)
	}
}

func TestRenderWaveform_NoSamples_RenderFlat(t *testing.T) {
	container := audio.Encode(nil, audio.DefaultSampleRate)
	config := testWaveformConfig(func(c *WaveformConfig) {
		c.SkipIfEmpty = false
	})

	result, err := RenderWaveform(container, config)
	if err != nil {
		t.Fatalf("RenderWaveform failed: %v", err)
	}
	if result.SampleCount != 0 {
		t.Errorf("Expected 0 samples, got %d", result.SampleCount)
	}

	img, err := png.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Without samples every pixel is background.
	bg := color.NRGBAModel.Convert(DefaultBackground).(color.NRGBA)
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA) != bg {
				t.Fatalf("Expected flat background, pixel (%d,%d) differs", x, y)
			}
		}
	}
}

func TestRenderWaveform_CustomColors(t *testing.T) {
	container := sineContainer(50)
	white := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	black := color.NRGBA{A: 0xff}
	config := testWaveformConfig(func(c *WaveformConfig) {
		c.Background = white
		c.Foreground = black
	})

	result, err := RenderWaveform(container, config)
	if err != nil {
		t.Fatalf("RenderWaveform failed: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Corner pixels sit outside the waveform and keep the background color.
	if got := color.NRGBAModel.Convert(img.At(0, 0)).(color.NRGBA); got != white {
		t.Errorf("Expected white background at (0,0), got %v", got)
	}
}

func TestDefaultWaveformConfig(t *testing.T) {
	config := DefaultWaveformConfig()

	if config.Width != DefaultWaveformWidth {
		t.Errorf("Expected Width %d, got %d", DefaultWaveformWidth, config.Width)
	}
	if config.Height != DefaultWaveformHeight {
		t.Errorf("Expected Height %d, got %d", DefaultWaveformHeight, config.Height)
	}
	if config.Supersample != DefaultSupersample {
		t.Errorf("Expected Supersample %d, got %d", DefaultSupersample, config.Supersample)
	}
	if !config.SkipIfEmpty {
		t.Error("Expected SkipIfEmpty to be true")
	}
}

func TestBucketPeaks(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		x       int
		width   int
		wantLo  int16
		wantHi  int16
	}{
		{
			name:    "first half",
			samples: []int16{100, -200, 300, 400},
			x:       0,
			width:   2,
			wantLo:  -200,
			wantHi:  100,
		},
		{
			name:    "second half",
			samples: []int16{100, -200, 300, 400},
			x:       1,
			width:   2,
			wantLo:  300,
			wantHi:  400,
		},
		{
			name:    "single column covers everything",
			samples: []int16{5, -7, 3},
			x:       0,
			width:   1,
			wantLo:  -7,
			wantHi:  5,
		},
		{
			name:    "more columns than samples",
			samples: []int16{10, -10},
			x:       3,
			width:   4,
			wantLo:  -10,
			wantHi:  -10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := bucketPeaks(tt.samples, tt.x, tt.width)
			if lo != tt.wantLo || hi != tt.wantHi {
				t.Errorf("bucketPeaks() = (%d, %d), want (%d, %d)", lo, hi, tt.wantLo, tt.wantHi)
			}
		})
	}
}

func TestWaveformRenderer(t *testing.T) {
	render := WaveformRenderer(testWaveformConfig())

	data, err := render(sineContainer(20))
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("output is not a valid PNG: %v", err)
	}

	if _, err := render(nil); err == nil {
		t.Error("Expected error for empty container")
	}
}
