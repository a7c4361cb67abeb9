package phash

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"
)

// patternImage draws a deterministic textured image with an optional brightness offset.
func patternImage(w, h int, offset float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx := float64(x) / float64(w) * 32
			fy := float64(y) / float64(h) * 32
			v := 100 + 50*math.Sin(fx*0.7)*math.Cos(fy*0.3) + fx*fy*0.05 + offset
			v = math.Max(0, math.Min(255, v))
			img.Set(x, y, color.RGBA{uint8(v), uint8(v), uint8(v), 255})
		}
	}
	return img
}

func checkerboard(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if (x/cell+y/cell)%2 == 0 {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func hamming(a, b string) int {
	d := 0
	for i := range a {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

func TestCompute_Deterministic(t *testing.T) {
	img := patternImage(120, 90, 0)

	h1, err := Compute(img)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	h2, err := Compute(img)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %s and %s", h1, h2)
	}
}

func TestCompute_Length(t *testing.T) {
	for _, img := range []image.Image{patternImage(64, 64, 0), checkerboard(50, 80, 5), patternImage(7, 3, 10)} {
		h, err := Compute(img)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if len(h) != HashSize*HashSize {
			t.Errorf("expected length %d, got %d", HashSize*HashSize, len(h))
		}
		if strings.Trim(h, "01") != "" {
			t.Errorf("hash %q contains non-binary characters", h)
		}
	}
}

func TestCompute_BrightnessShift(t *testing.T) {
	base, err := Compute(patternImage(96, 96, 0))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	shifted, err := Compute(patternImage(96, 96, 25))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if d := hamming(base, shifted); d > 6 {
		t.Errorf("brightness shift moved %d bits, expected at most 6", d)
	}
}

func TestCompute_DifferentImages(t *testing.T) {
	a, _ := Compute(patternImage(64, 64, 0))
	b, _ := Compute(checkerboard(64, 64, 4))
	if a == b {
		t.Error("expected different hashes for different images")
	}
}

func TestCompute_EmptyImage(t *testing.T) {
	_, err := Compute(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
}

func TestGrayscale_LumaWeights(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}

	grid, err := Grayscale(img, 2)
	if err != nil {
		t.Fatalf("Grayscale failed: %v", err)
	}
	if len(grid) != 4 {
		t.Fatalf("expected 4 values, got %d", len(grid))
	}
	for _, v := range grid {
		if math.Abs(v-0.299*255) > 0.5 {
			t.Errorf("expected luma %.3f, got %.3f", 0.299*255, v)
		}
	}
}

func TestDCT2D_ConstantGrid(t *testing.T) {
	const n = 32
	grid := make([]float64, n*n)
	for i := range grid {
		grid[i] = 10
	}

	d, err := DCT2D(grid, n)
	if err != nil {
		t.Fatalf("DCT2D failed: %v", err)
	}

	// c(0)² / 4 * n² * value
	wantDC := 0.5 / 4 * n * n * 10
	if math.Abs(d.At(0, 0)-wantDC) > 1e-6 {
		t.Errorf("DC = %f, want %f", d.At(0, 0), wantDC)
	}
	for _, p := range [][2]int{{0, 1}, {1, 0}, {3, 5}, {7, 7}} {
		if v := d.At(p[0], p[1]); math.Abs(v) > 1e-9 {
			t.Errorf("coefficient %v = %g, want 0", p, v)
		}
	}
}

func TestDCT2D_BadGrid(t *testing.T) {
	if _, err := DCT2D(make([]float64, 10), 4); err == nil {
		t.Error("expected error for mismatched grid")
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{nil, 0},
		{[]float64{3}, 3},
		{[]float64{5, 1, 3}, 3},
		{[]float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		if got := median(tt.in); got != tt.want {
			t.Errorf("median(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComputeType(t *testing.T) {
	img := patternImage(64, 64, 0)
	for _, ht := range []HashType{PHash, AHash, DHash} {
		t.Run(string(ht), func(t *testing.T) {
			h, err := ComputeType(img, ht)
			if err != nil {
				t.Fatalf("ComputeType failed: %v", err)
			}
			if len(h) != 64 {
				t.Errorf("expected 64 bits, got %d", len(h))
			}
		})
	}

	if _, err := ComputeType(img, "bogus"); !errors.Is(err, ErrUnsupportedHashType) {
		t.Errorf("expected ErrUnsupportedHashType, got %v", err)
	}
}

func TestParseHashType(t *testing.T) {
	if ht, err := ParseHashType(""); err != nil || ht != PHash {
		t.Errorf("empty should default to phash, got %q %v", ht, err)
	}
	if ht, err := ParseHashType(" DHash "); err != nil || ht != DHash {
		t.Errorf("expected dhash, got %q %v", ht, err)
	}
	if _, err := ParseHashType("md5"); err == nil {
		t.Error("expected error for md5")
	}
}

func TestFromBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, patternImage(40, 40, 0)); err != nil {
		t.Fatalf("encode: %v", err)
	}

	fromBytes, err := FromBytes(buf.Bytes(), PHash)
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	direct, _ := Compute(patternImage(40, 40, 0))
	if fromBytes != direct {
		t.Errorf("expected PNG round trip to keep the hash, got %s vs %s", fromBytes, direct)
	}

	if _, err := FromBytes([]byte("not an image"), PHash); err == nil {
		t.Error("expected decode error")
	}
}

func TestIsHashable(t *testing.T) {
	for ext, want := range map[string]bool{"jpg": true, "png": true, "webp": true, "gif": false, "MP4": false, "mov": false, "webm": false} {
		if got := IsHashable(ext); got != want {
			t.Errorf("IsHashable(%q) = %v, want %v", ext, got, want)
		}
	}
}
