// wavelet.go - Wavelet-Zerlegung und -Rekonstruktion
// Dieses Modul enthaelt:
// - waveletBlur: 3x3 Binomial-Kernel mit Dilation und Replicate-Padding
// - WaveletDecomposition: Aufteilung in Hoch- und Tiefpass-Band
// - WaveletReconstruction: Hochpass von content + Tiefpass von style
package colorfix

import (
	"fmt"

	"github.com/hkarakose/SUPIR/ml"
)

// DefaultLevels ist die Anzahl der Zerlegungsstufen.
const DefaultLevels = 5

var blurKernel = [3][3]float32{
	{1.0 / 16, 1.0 / 8, 1.0 / 16},
	{1.0 / 8, 1.0 / 4, 1.0 / 8},
	{1.0 / 16, 1.0 / 8, 1.0 / 16},
}

// waveletBlur convolves every channel plane with the dilated kernel.
func waveletBlur(img *ml.Tensor, radius int) *ml.Tensor {
	shape := img.Shape()
	h, w := shape[len(shape)-2], shape[len(shape)-1]
	planes := img.Len() / (h * w)

	src := img.Floats()
	out := ml.Zeros(shape...)
	dst := out.Floats()

	clamp := func(v, hi int) int { return max(0, min(v, hi-1)) }

	for p := range planes {
		base := p * h * w
		for y := range h {
			for x := range w {
				var sum float32
				for ky := range 3 {
					yy := clamp(y+(ky-1)*radius, h)
					for kx := range 3 {
						xx := clamp(x+(kx-1)*radius, w)
						sum += blurKernel[ky][kx] * src[base+yy*w+xx]
					}
				}
				dst[base+y*w+x] = sum
			}
		}
	}
	return out
}

// WaveletDecomposition splits img into a high-frequency band and a
// low-frequency band with img == high + low.
func WaveletDecomposition(img *ml.Tensor, levels int) (high, low *ml.Tensor, err error) {
	if img.Rank() < 2 {
		return nil, nil, fmt.Errorf("%w: wavelet input %v", ml.ErrShapeMismatch, img.Shape())
	}

	high = ml.Zeros(img.Shape()...)
	low = img.Clone()
	for i := range levels {
		blurred := waveletBlur(low, 1<<i)
		band, err := ml.Sub(low, blurred)
		if err != nil {
			return nil, nil, err
		}
		if high, err = ml.Add(high, band); err != nil {
			return nil, nil, err
		}
		low = blurred
	}
	return high, low, nil
}

// WaveletReconstruction keeps the detail of content and takes color and
// illumination from style.
func WaveletReconstruction(content, style *ml.Tensor) (*ml.Tensor, error) {
	contentHigh, _, err := WaveletDecomposition(content, DefaultLevels)
	if err != nil {
		return nil, err
	}
	_, styleLow, err := WaveletDecomposition(style, DefaultLevels)
	if err != nil {
		return nil, err
	}
	return ml.Add(contentHigh, styleLow)
}
