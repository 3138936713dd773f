// adain.go - Adaptive Instance Normalization
// Passt Mittelwert und Standardabweichung jedes Kanals an die Referenz an.
// Varianz ist unverzerrt (n-1) und wird um eps erhoeht, damit nahezu
// konstante Kanaele nicht durch ~0 geteilt werden.
package colorfix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/hkarakose/SUPIR/ml"
)

const adainEps = 1e-5

// channelStats returns mean and std of one channel plane.
func channelStats(plane []float32) (mean, std float64) {
	xs := make([]float64, len(plane))
	for i, v := range plane {
		xs[i] = float64(v)
	}
	mean, variance := stat.MeanVariance(xs, nil)
	if math.IsNaN(variance) {
		// einzelner Wert: keine Streuung
		variance = 0
	}
	return mean, math.Sqrt(variance + adainEps)
}

// AdaptiveInstanceNormalization rescales every channel of content to the
// channel statistics of style. Both inputs are [N, C, H, W] with equal N and C.
func AdaptiveInstanceNormalization(content, style *ml.Tensor) (*ml.Tensor, error) {
	if content.Rank() != 4 || style.Rank() != 4 || content.Dim(0) != style.Dim(0) || content.Dim(1) != style.Dim(1) {
		return nil, fmt.Errorf("%w: content %v, style %v", ml.ErrShapeMismatch, content.Shape(), style.Shape())
	}

	n, c := content.Dim(0), content.Dim(1)
	cPlane := content.Dim(2) * content.Dim(3)
	sPlane := style.Dim(2) * style.Dim(3)

	out := content.Clone()
	dst := out.Floats()
	src, ref := content.Floats(), style.Floats()
	for i := range n * c {
		cm, cs := channelStats(src[i*cPlane : (i+1)*cPlane])
		sm, ss := channelStats(ref[i*sPlane : (i+1)*sPlane])
		for j := i * cPlane; j < (i+1)*cPlane; j++ {
			dst[j] = float32((float64(src[j])-cm)/cs*ss + sm)
		}
	}
	return out, nil
}
