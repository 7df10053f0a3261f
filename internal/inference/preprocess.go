package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ColorMode selects the channel layout of a Tensor.
type ColorMode string

const (
	ColorRGB       ColorMode = "rgb"
	ColorGrayscale ColorMode = "grayscale"
	ColorRGBA      ColorMode = "rgba"
)

// ErrUnsupportedInput is returned for inputs the preprocessor cannot decode.
var ErrUnsupportedInput = errors.New("unsupported image input")

// ImageConfig controls image preprocessing.
type ImageConfig struct {
	Width        int
	Height       int
	Normalize    bool
	NormalizeMin float32
	NormalizeMax float32
	ColorMode    ColorMode
}

// DefaultImageConfig returns a 224x224 RGB config normalized to [0,1].
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		Width:        224,
		Height:       224,
		Normalize:    true,
		NormalizeMin: 0,
		NormalizeMax: 1,
		ColorMode:    ColorRGB,
	}
}

// Tensor is a dense HxWxC image in row-major order.
type Tensor struct {
	Data     []float32
	Height   int
	Width    int
	Channels int
}

// At returns the value at row y, column x, channel c.
func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// ImagePreprocessor decodes, resizes and normalizes images. It accepts a
// file path, a base64 data URL, raw encoded bytes or an image.Image.
type ImagePreprocessor struct {
	cfg ImageConfig
}

// NewImagePreprocessor creates a preprocessor. Zero-valued dimensions and an
// empty color mode fall back to DefaultImageConfig.
func NewImagePreprocessor(cfg ImageConfig) *ImagePreprocessor {
	def := DefaultImageConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.ColorMode == "" {
		cfg.ColorMode = def.ColorMode
	}
	if cfg.Normalize && cfg.NormalizeMax <= cfg.NormalizeMin {
		cfg.NormalizeMin, cfg.NormalizeMax = def.NormalizeMin, def.NormalizeMax
	}
	return &ImagePreprocessor{cfg: cfg}
}

// Validate reports whether input is an accepted type and, for paths, exists.
func (p *ImagePreprocessor) Validate(input any) error {
	switch v := input.(type) {
	case image.Image:
		return nil
	case []byte:
		if len(v) == 0 {
			return fmt.Errorf("%w: empty byte slice", ErrUnsupportedInput)
		}
		return nil
	case string:
		if strings.HasPrefix(v, "data:") {
			return nil
		}
		if _, err := os.Stat(v); err != nil {
			return fmt.Errorf("image path: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedInput, input)
	}
}

// Process converts input into a Tensor.
func (p *ImagePreprocessor) Process(ctx context.Context, input any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := p.Decode(input)
	if err != nil {
		return nil, err
	}
	return p.toTensor(p.resize(img)), nil
}

// ProcessBatch converts each input in order; the first failure aborts.
func (p *ImagePreprocessor) ProcessBatch(ctx context.Context, inputs []any) ([]any, error) {
	out := make([]any, len(inputs))
	for i, in := range inputs {
		t, err := p.Process(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// Decode turns any accepted input into an image.Image.
func (p *ImagePreprocessor) Decode(input any) (image.Image, error) {
	if err := p.Validate(input); err != nil {
		return nil, err
	}
	switch v := input.(type) {
	case image.Image:
		return v, nil
	case []byte:
		return decodeBytes(v)
	case string:
		if strings.HasPrefix(v, "data:") {
			return decodeDataURL(v)
		}
		data, err := os.ReadFile(v)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		return decodeBytes(data)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedInput, input)
}

func decodeBytes(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// decodeDataURL decodes "data:image/png;base64,...".
func decodeDataURL(s string) (image.Image, error) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return nil, fmt.Errorf("%w: malformed data URL", ErrUnsupportedInput)
	}
	header, payload := s[:comma], s[comma+1:]
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: data URL is not base64 encoded", ErrUnsupportedInput)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 payload: %w", err)
	}
	return decodeBytes(data)
}

func (p *ImagePreprocessor) resize(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, p.cfg.Width, p.cfg.Height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func (p *ImagePreprocessor) toTensor(img *image.RGBA) Tensor {
	channels := 3
	switch p.cfg.ColorMode {
	case ColorGrayscale:
		channels = 1
	case ColorRGBA:
		channels = 4
	}

	w, h := p.cfg.Width, p.cfg.Height
	data := make([]float32, 0, w*h*channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(x, y)
			switch p.cfg.ColorMode {
			case ColorGrayscale:
				luma := 0.299*float32(c.R) + 0.587*float32(c.G) + 0.114*float32(c.B)
				data = append(data, p.scale(luma))
			case ColorRGBA:
				data = append(data, p.scale(float32(c.R)), p.scale(float32(c.G)), p.scale(float32(c.B)), p.scale(float32(c.A)))
			default:
				data = append(data, p.scale(float32(c.R)), p.scale(float32(c.G)), p.scale(float32(c.B)))
			}
		}
	}
	return Tensor{Data: data, Height: h, Width: w, Channels: channels}
}

func (p *ImagePreprocessor) scale(v float32) float32 {
	if !p.cfg.Normalize {
		return v
	}
	return p.cfg.NormalizeMin + v/255*(p.cfg.NormalizeMax-p.cfg.NormalizeMin)
}
