package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"

	_ "image/gif"
	_ "image/jpeg"

	"go.uber.org/zap"
)

// ErrBusy is returned when an upload is already being processed. A second
// trigger is rejected, not queued.
var ErrBusy = errors.New("upload: an image is already being processed")

// Result is the triple the wardrobe core consumes: the downscaled image as
// base64-encoded PNG plus its final dimensions.
type Result struct {
	Base64 string `json:"base64"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Processor decodes an uploaded image, downscales it to the configured
// maximum width, and re-encodes it. Only one upload may be in flight at a
// time.
type Processor struct {
	maxWidth int
	maxBytes int64
	logger   *zap.Logger

	mu   sync.Mutex
	busy bool
}

// NewProcessor creates a Processor.
func NewProcessor(maxWidth int, maxBytes int64, logger *zap.Logger) *Processor {
	if maxWidth <= 0 {
		maxWidth = 1024
	}
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	return &Processor{maxWidth: maxWidth, maxBytes: maxBytes, logger: logger}
}

func (p *Processor) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return ErrBusy
	}
	p.busy = true
	return nil
}

func (p *Processor) release() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

// Busy reports whether an upload is currently being processed.
func (p *Processor) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// Process reads an image from r, downscales it if wider than the maximum
// width, and returns the encoded triple.
func (p *Processor) Process(r io.Reader) (*Result, error) {
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.release()

	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > p.maxBytes {
		return nil, fmt.Errorf("upload: image exceeds %d bytes", p.maxBytes)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload: decode: %w", err)
	}

	if img.Bounds().Dx() > p.maxWidth {
		img = downscale(img, p.maxWidth)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("upload: encode: %w", err)
	}

	bounds := img.Bounds()
	p.logger.Debug("image processed",
		zap.String("format", format),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()))
	return &Result{
		Base64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// downscale resizes img to maxWidth preserving aspect ratio, sampling the
// nearest source pixel.
func downscale(img image.Image, maxWidth int) image.Image {
	src := img.Bounds()
	ratio := float64(maxWidth) / float64(src.Dx())
	h := int(float64(src.Dy()) * ratio)
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	for y := 0; y < h; y++ {
		sy := src.Min.Y + int(float64(y)/ratio)
		for x := 0; x < maxWidth; x++ {
			sx := src.Min.X + int(float64(x)/ratio)
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}
