package inference

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	"image/png"

	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/webp" // WebP decoder
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var errEmptyPayload = errors.New("empty image payload")

// ToPNG collapses both backend return shapes into PNG bytes. PNG input is
// passed through untouched; any other decodable format is re-encoded.
func ToPNG(out *Output) ([]byte, error) {
	if out == nil {
		return nil, errEmptyPayload
	}
	if out.Image != nil {
		return encodePNG(out.Image)
	}
	if len(out.Data) == 0 {
		return nil, errEmptyPayload
	}
	if bytes.HasPrefix(out.Data, pngSignature) {
		return out.Data, nil
	}

	img, format, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	data, err := encodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("re-encode %s as png: %w", format, err)
	}
	return data, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
