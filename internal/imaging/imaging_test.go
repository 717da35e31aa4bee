package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"golang.org/x/image/bmp"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x + y) % 256)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestDecodeGrayFormats(t *testing.T) {
	src := gradient(40, 30)

	pngData, err := EncodePNG(src)
	if err != nil {
		t.Fatal(err)
	}
	var jpgBuf, bmpBuf bytes.Buffer
	if err := jpeg.Encode(&jpgBuf, src, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(&bmpBuf, src); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"png", pngData},
		{"jpeg", jpgBuf.Bytes()},
		{"bmp", bmpBuf.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gray, err := DecodeGray(tt.data)
			if err != nil {
				t.Fatalf("DecodeGray() error = %v", err)
			}
			if gray.Rect != image.Rect(0, 0, 40, 30) {
				t.Errorf("bounds = %v, want 40x30 at origin", gray.Rect)
			}
		})
	}
}

func TestDecodeGrayLosslessValues(t *testing.T) {
	data, err := EncodePNG(gradient(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	gray, err := DecodeGray(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := gray.GrayAt(3, 4).Y; got != 7 {
		t.Errorf("pixel (3,4) = %d, want 7", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := DecodeGray(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("DecodeGray(nil) error = %v, want ErrEmpty", err)
	}
	if _, err := DecodeGray([]byte("definitely not an image")); err == nil {
		t.Error("DecodeGray(garbage) expected error")
	}
}

func TestCropIsClippedAndZeroOrigin(t *testing.T) {
	src := gradient(20, 20)
	crop := Crop(src, image.Rect(15, 15, 30, 30))
	if crop.Rect != image.Rect(0, 0, 5, 5) {
		t.Fatalf("crop bounds = %v, want 5x5", crop.Rect)
	}
	if got := crop.GrayAt(0, 0).Y; got != 30 {
		t.Errorf("crop origin pixel = %d, want 30", got)
	}
}
