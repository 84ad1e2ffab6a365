package encode

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	apperr "github.com/matzehuels/snapcomp/pkg/errors"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{200, 200, 200, 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(10, 5, 20, 15), image.NewUniform(color.RGBA{0, 0, 255, 255}), image.Point{}, draw.Src)
	return img
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatJPEG, false},
		{"jpeg", FormatJPEG, false},
		{"JPG", FormatJPEG, false},
		{" png ", FormatPNG, false},
		{"gif", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEncoderDefaults(t *testing.T) {
	var enc Encoder
	if enc.MediaType() != "image/jpeg" {
		t.Errorf("MediaType() = %q, want image/jpeg", enc.MediaType())
	}

	data, err := enc.Bytes(testImage())
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not JPEG: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(40, 20) {
		t.Errorf("size = %v, want 40x20", got)
	}
}

func TestEncoderDeterministic(t *testing.T) {
	for _, f := range Formats {
		enc := Encoder{Format: f, Quality: 70}
		a, err := enc.Bytes(testImage())
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		b, err := enc.Bytes(testImage())
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("%s output differs between identical inputs", f)
		}
	}
}

func TestEncoderQualityAffectsSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), uint8((x ^ y) * 4), 255})
		}
	}
	low, err := Encoder{Quality: 10}.Bytes(img)
	if err != nil {
		t.Fatal(err)
	}
	high, err := Encoder{Quality: 100}.Bytes(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) >= len(high) {
		t.Errorf("quality 10 (%d bytes) should be smaller than quality 100 (%d bytes)", len(low), len(high))
	}
}

func TestEncoderPNGLossless(t *testing.T) {
	src := testImage()
	data, err := Encoder{Format: FormatPNG}.Bytes(src)
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not PNG: %v", err)
	}
	for _, p := range []image.Point{{0, 0}, {15, 10}, {39, 19}} {
		want := src.At(p.X, p.Y)
		got := color.RGBAModel.Convert(img.At(p.X, p.Y))
		if got != want {
			t.Errorf("pixel %v = %v, want %v", p, got, want)
		}
	}
}

func TestEncoderErrors(t *testing.T) {
	tests := []struct {
		name string
		enc  Encoder
		img  image.Image
		code apperr.Code
	}{
		{"quality too high", Encoder{Quality: 101}, testImage(), apperr.ErrCodeInvalidFormat},
		{"negative quality", Encoder{Quality: -1}, testImage(), apperr.ErrCodeInvalidFormat},
		{"unknown format", Encoder{Format: "gif"}, testImage(), apperr.ErrCodeInvalidFormat},
		{"nil image", Encoder{}, nil, apperr.ErrCodeEncode},
		{"empty image", Encoder{}, image.NewRGBA(image.Rectangle{}), apperr.ErrCodeEncode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.enc.Bytes(tt.img)
			if !apperr.Is(err, tt.code) {
				t.Errorf("Bytes() error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestEncoderDataURL(t *testing.T) {
	enc := Encoder{Format: FormatPNG}
	url, err := enc.DataURL(testImage())
	if err != nil {
		t.Fatalf("DataURL() error: %v", err)
	}
	payload, ok := strings.CutPrefix(url, "data:image/png;base64,")
	if !ok {
		t.Fatalf("DataURL() prefix = %q", url[:min(len(url), 30)])
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("payload is not PNG: %v", err)
	}
}

func TestDataURL(t *testing.T) {
	if got := DataURL("image/jpeg", []byte("hi")); got != "data:image/jpeg;base64,aGk=" {
		t.Errorf("DataURL() = %q", got)
	}
}

func TestOpaqueFlattensAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{255, 255, 255, 0})
	flat := opaque(img)
	if r, g, b, a := flat.At(0, 0).RGBA(); r != 0 || g != 0 || b != 0 || a != 0xffff {
		t.Errorf("transparent pixel flattened to (%d,%d,%d,%d), want opaque black", r, g, b, a)
	}

	solid := testImage()
	if opaque(solid) != image.Image(solid) {
		t.Error("opaque images should pass through")
	}
}
