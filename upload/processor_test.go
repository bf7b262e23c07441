package upload

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessKeepsSmallImage(t *testing.T) {
	p := NewProcessor(100, 1<<20, zap.NewNop())

	res, err := p.Process(bytes.NewReader(encodePNG(t, 40, 30)))
	require.NoError(t, err)
	assert.Equal(t, 40, res.Width)
	assert.Equal(t, 30, res.Height)

	raw, err := base64.StdEncoding.DecodeString(res.Base64)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 40, decoded.Bounds().Dx())
}

func TestProcessDownscalesWideImage(t *testing.T) {
	p := NewProcessor(50, 1<<20, zap.NewNop())

	res, err := p.Process(bytes.NewReader(encodePNG(t, 200, 100)))
	require.NoError(t, err)
	assert.Equal(t, 50, res.Width)
	assert.Equal(t, 25, res.Height)
}

func TestProcessRejectsGarbage(t *testing.T) {
	p := NewProcessor(100, 1<<20, zap.NewNop())

	_, err := p.Process(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestProcessRejectsOversizedPayload(t *testing.T) {
	p := NewProcessor(100, 16, zap.NewNop())

	_, err := p.Process(bytes.NewReader(encodePNG(t, 40, 30)))
	assert.Error(t, err)
}

func TestProcessorBusyGuard(t *testing.T) {
	p := NewProcessor(100, 1<<20, zap.NewNop())
	require.NoError(t, p.acquire())

	_, err := p.Process(bytes.NewReader(encodePNG(t, 10, 10)))
	assert.ErrorIs(t, err, ErrBusy)

	p.release()
	_, err = p.Process(bytes.NewReader(encodePNG(t, 10, 10)))
	assert.NoError(t, err)
}
