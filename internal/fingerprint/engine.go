// Package fingerprint computes content identities for indexed files: a
// perceptual hash for images, so different encodings of the same picture
// collapse to one identity, and a capped cryptographic digest for everything
// else.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/oskarw/filesentry/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DigestCap bounds how much of a file the digest path reads. Files larger
// than the cap are hashed over their first 256 MiB only, so identical-prefix
// large files collide. That is a deliberate speed/safety trade-off, a
// documented limitation rather than a bug.
const DigestCap = 256 << 20

// Fingerprinter computes a content identity for a file.
type Fingerprinter interface {
	// Fingerprint returns the content hash for the file at path. The
	// extension selects the image-perceptual or generic-digest path. The only
	// failure mode is an unreadable file; every byte sequence is hashable.
	Fingerprint(path, ext string) (string, error)
}

// Engine is the default Fingerprinter implementation.
type Engine struct{}

// NewEngine creates a fingerprint engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Fingerprint computes the content hash for a file.
// Parameters:
//   - path: absolute file path.
//   - ext: file extension used to route between hash algorithms.
// Returns:
//   - string: perceptual hash (images) or hex digest (everything else).
//   - error: non-nil only when the file cannot be read.
func (e *Engine) Fingerprint(path, ext string) (string, error) {
	if domain.IsImageExt(ext) {
		hash, err := e.perceptualHash(path)
		if err == nil {
			return hash, nil
		}
		if os.IsNotExist(err) || os.IsPermission(err) {
			return "", err
		}
		// Undecodable image bytes fall through to the digest path.
	}
	return e.digest(path)
}

// perceptualHash computes an 8x8 average-intensity hash: the image is box
// downsampled to 8x8 grayscale and each cell contributes one bit, set when
// the cell is at least as bright as the mean. Visually identical images,
// including re-encodings of the same pixels, produce identical hashes.
func (e *Engine) perceptualHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	const grid = 8
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return "", fmt.Errorf("decode image: empty bounds")
	}

	var cells [grid * grid]float64
	for cy := 0; cy < grid; cy++ {
		for cx := 0; cx < grid; cx++ {
			x0 := bounds.Min.X + cx*w/grid
			x1 := bounds.Min.X + (cx+1)*w/grid
			y0 := bounds.Min.Y + cy*h/grid
			y1 := bounds.Min.Y + (cy+1)*h/grid
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}

			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					// ITU-R BT.601 luma weights
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
				}
			}
			cells[cy*grid+cx] = sum / float64((x1-x0)*(y1-y0))
		}
	}

	var mean float64
	for _, v := range cells {
		mean += v
	}
	mean /= float64(len(cells))

	var bits uint64
	for i, v := range cells {
		if v >= mean {
			bits |= 1 << uint(i)
		}
	}
	return fmt.Sprintf("%016x", bits), nil
}

// digest streams at most DigestCap bytes of the file through SHA-256.
func (e *Engine) digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(f, DigestCap)); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
