package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"snap-shutter/pkg/utils/rgb"
)

const DefaultQuality = 90

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}

// RGB24ToJPEG encodes a packed RGB24 frame. The row stride is derived from
// len(data)/height so padded driver buffers are accepted.
func RGB24ToJPEG(data []byte, width, height, quality int) ([]byte, error) {
	if width <= 0 || height <= 0 || len(data) < width*height*3 {
		return nil, fmt.Errorf("rgb24 frame of %d bytes does not fit %dx%d", len(data), width, height)
	}
	var buf bytes.Buffer
	if err := EncodeJPEG(rgb.NewRGB(data, width, height), &buf, quality); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
