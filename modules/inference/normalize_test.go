package inference

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestToPNG_PassesPNGThrough(t *testing.T) {
	raw := pngBytes(t, testImage(4, 4))

	data, err := ToPNG(&Output{Data: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, data)
}

func TestToPNG_DecodedAndRawShapesAgree(t *testing.T) {
	img := testImage(8, 8)
	raw := pngBytes(t, img)

	fromImage, err := ToPNG(&Output{Image: img})
	require.NoError(t, err)
	fromBytes, err := ToPNG(&Output{Data: raw})
	require.NoError(t, err)

	assert.Equal(t, fromBytes, fromImage)
}

func TestToPNG_ReencodesJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(8, 8), nil))

	data, err := ToPNG(&Output{Data: buf.Bytes()})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngSignature))

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), decoded.Bounds())
}

func TestToPNG_Rejects(t *testing.T) {
	tests := []struct {
		name string
		out  *Output
	}{
		{"nil output", nil},
		{"empty payload", &Output{}},
		{"garbage", &Output{Data: []byte("not an image")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToPNG(tt.out)
			assert.Error(t, err)
		})
	}
}
