package phash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sort"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/mat"
)

const (
	// AnalysisSize is the edge of the grayscale grid fed to the DCT.
	AnalysisSize = 32
	// HashSize is the edge of the retained low-frequency block; hashes are HashSize² bits.
	HashSize = 8
)

// HashType selects the fingerprint algorithm.
type HashType string

const (
	PHash HashType = "phash"
	AHash HashType = "ahash"
	DHash HashType = "dhash"
)

var (
	ErrEmptyImage          = errors.New("image has no pixels")
	ErrUnsupportedFormat   = errors.New("unsupported format for perceptual hashing")
	ErrUnsupportedHashType = errors.New("unsupported hash type")
)

// Animated and video formats have no single representative frame.
var unhashable = map[string]bool{"gif": true, "mp4": true, "webm": true, "mov": true}

// IsHashable reports whether files with the lowercase extension ext can be hashed.
func IsHashable(ext string) bool {
	return !unhashable[strings.ToLower(ext)]
}

// ParseHashType validates a configured hash type, defaulting to PHash.
func ParseHashType(s string) (HashType, error) {
	switch HashType(strings.ToLower(strings.TrimSpace(s))) {
	case "", PHash:
		return PHash, nil
	case AHash:
		return AHash, nil
	case DHash:
		return DHash, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedHashType, s)
}

// Grayscale resamples img to size×size and returns row-major luma values
// (0.299R + 0.587G + 0.114B) on a 0-255 scale.
func Grayscale(img image.Image, size int) ([]float64, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	small := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	b := small.Bounds()

	grid := make([]float64, 0, size*size)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := small.At(x, y).RGBA()
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
			grid = append(grid, luma)
		}
	}
	return grid, nil
}

// cosineBasis returns the n×n matrix C[u][x] = cos((2x+1)uπ / 2n).
func cosineBasis(n int) *mat.Dense {
	c := mat.NewDense(n, n, nil)
	for u := 0; u < n; u++ {
		for x := 0; x < n; x++ {
			c.Set(u, x, math.Cos(float64(2*x+1)*float64(u)*math.Pi/float64(2*n)))
		}
	}
	return c
}

// DCT2D applies a 2D DCT to a row-major n×n grid. Coefficient (v,u) is
// normalized by c(u)·c(v)/4 where c(0) = 1/√2 and c(k>0) = 1.
func DCT2D(grid []float64, n int) (*mat.Dense, error) {
	if len(grid) != n*n {
		return nil, fmt.Errorf("grid has %d values, want %d", len(grid), n*n)
	}

	f := mat.NewDense(n, n, append([]float64(nil), grid...))
	c := cosineBasis(n)

	// D = C · F · Cᵀ, rows are vertical frequencies.
	var tmp, d mat.Dense
	tmp.Mul(c, f)
	d.Mul(&tmp, c.T())

	for v := 0; v < n; v++ {
		for u := 0; u < n; u++ {
			d.Set(v, u, d.At(v, u)*norm(u)*norm(v)/4)
		}
	}
	return &d, nil
}

func norm(k int) float64 {
	if k == 0 {
		return 1 / math.Sqrt2
	}
	return 1
}

// median of a copy of values; the mean of the middle pair for even lengths.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 0:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	default:
		return sorted[n/2]
	}
}

// FromCoefficients keeps the top-left size×size block of coeffs and emits
// one bit per coefficient: '1' when it exceeds the block median.
func FromCoefficients(coeffs *mat.Dense, size int) string {
	retained := make([]float64, 0, size*size)
	for v := 0; v < size; v++ {
		for u := 0; u < size; u++ {
			retained = append(retained, coeffs.At(v, u))
		}
	}

	m := median(retained)
	var sb strings.Builder
	sb.Grow(len(retained))
	for _, c := range retained {
		if c > m {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Compute returns the 64-bit DCT perceptual hash of img as a binary string.
func Compute(img image.Image) (string, error) {
	grid, err := Grayscale(img, AnalysisSize)
	if err != nil {
		return "", err
	}
	coeffs, err := DCT2D(grid, AnalysisSize)
	if err != nil {
		return "", err
	}
	return FromCoefficients(coeffs, HashSize), nil
}

// ComputeType hashes img with the selected algorithm. Average and difference
// hashes come from goimagehash and are rendered in the same binary form.
func ComputeType(img image.Image, t HashType) (string, error) {
	switch t {
	case PHash, "":
		return Compute(img)
	case AHash, DHash:
		if img == nil || img.Bounds().Empty() {
			return "", ErrEmptyImage
		}
		var h *goimagehash.ImageHash
		var err error
		if t == AHash {
			h, err = goimagehash.AverageHash(img)
		} else {
			h, err = goimagehash.DifferenceHash(img)
		}
		if err != nil {
			return "", fmt.Errorf("failed to generate %s: %w", t, err)
		}
		return fmt.Sprintf("%064b", h.GetHash()), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedHashType, t)
	}
}

// Decode decodes jpeg, png, gif, webp, bmp or tiff data.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// FromBytes decodes data and hashes it.
func FromBytes(data []byte, t HashType) (string, error) {
	img, err := Decode(data)
	if err != nil {
		return "", err
	}
	return ComputeType(img, t)
}
