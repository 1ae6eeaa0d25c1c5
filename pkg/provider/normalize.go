package provider

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"

	// The API accepts webp uploads; imaging only registers the formats it
	// encodes, so webp decoding is registered here.
	_ "golang.org/x/image/webp"
)

// maxImageSide bounds the longest side of an uploaded image. The upstream
// API degrades on larger inputs.
const maxImageSide = 2048

// Normalizer prepares raw uploads for the provider: decode, flatten
// transparency onto a white background, downscale, re-encode as PNG.
// Decode and resample are CPU-bound, so all work passes through a weighted
// semaphore sized to GOMAXPROCS; a burst of large uploads queues here
// instead of starving every other goroutine.
type Normalizer struct {
	sem     *semaphore.Weighted
	maxSide int
}

// NewNormalizer builds a Normalizer bounded to GOMAXPROCS concurrent
// normalizations.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		sem:     semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		maxSide: maxImageSide,
	}
}

// Normalize converts data into upload-ready PNG bytes: any decodable
// format in, opaque RGB PNG with longest side ≤ 2048px out. Blocks while
// the executor is saturated; returns the context error if ctx ends first.
func (n *Normalizer) Normalize(ctx context.Context, data []byte) ([]byte, error) {
	if err := n.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	defer n.sem.Release(1)

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("normalize: decode: %w", err)
	}

	// Flatten alpha and palette transparency onto white. Opaque images
	// pass through the blend unchanged.
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat := imaging.Overlay(background, img, image.Point{}, 1.0)

	if bounds.Dx() > n.maxSide || bounds.Dy() > n.maxSide {
		flat = imaging.Fit(flat, n.maxSide, n.maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.PNG); err != nil {
		return nil, fmt.Errorf("normalize: encode: %w", err)
	}
	return buf.Bytes(), nil
}
