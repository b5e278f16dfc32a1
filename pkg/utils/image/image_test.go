package image

import (
	"bytes"
	"image/jpeg"
	"testing"
)

func TestRGB24ToJPEG(t *testing.T) {
	const (
		width  = 32
		height = 16
	)
	frame := make([]byte, width*height*3)
	for i := 0; i < len(frame); i += 3 {
		frame[i] = 0xff
	}

	data, err := RGB24ToJPEG(frame, width, height, DefaultQuality)
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		t.Fatalf("bounds = %v", b)
	}
	r, g, _, _ := img.At(width/2, height/2).RGBA()
	if r>>8 < 0xe0 || g>>8 > 0x20 {
		t.Fatalf("expected red pixel, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestRGB24ToJPEGShortFrame(t *testing.T) {
	if _, err := RGB24ToJPEG(make([]byte, 10), 640, 480, DefaultQuality); err == nil {
		t.Fatal("expected error for short frame")
	}
}
