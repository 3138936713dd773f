// posterior.go - Diagonale Gauss-Verteilung ueber Latents
// Die Momente [N, 2C, h, w] werden entlang der Kanal-Achse in Mittelwert und
// Log-Varianz geteilt; die Log-Varianz wird auf [-30, 20] begrenzt.
package vae

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/hkarakose/SUPIR/ml"
)

const (
	logVarMin = -30
	logVarMax = 20
)

// Posterior is a diagonal Gaussian over latents.
type Posterior struct {
	mean *ml.Tensor
	std  *ml.Tensor
}

// NewPosterior splits moments into mean and log-variance.
func NewPosterior(moments *ml.Tensor) (*Posterior, error) {
	if moments.Rank() != 4 || moments.Dim(1)%2 != 0 {
		return nil, fmt.Errorf("%w: posterior moments %v", ml.ErrShapeMismatch, moments.Shape())
	}

	n, c2, h, w := moments.Dim(0), moments.Dim(1), moments.Dim(2), moments.Dim(3)
	c := c2 / 2
	plane := h * w
	src := moments.Floats()

	mean := ml.Zeros(n, c, h, w)
	std := ml.Zeros(n, c, h, w)
	md, sd := mean.Floats(), std.Floats()
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			dst := (b*c + ch) * plane
			mu := (b*c2 + ch) * plane
			lv := (b*c2 + c + ch) * plane
			copy(md[dst:dst+plane], src[mu:mu+plane])
			for i := 0; i < plane; i++ {
				logvar := min(max(float64(src[lv+i]), logVarMin), logVarMax)
				sd[dst+i] = float32(math.Exp(0.5 * logvar))
			}
		}
	}
	return &Posterior{mean: mean, std: std}, nil
}

// Mode returns the distribution mean.
func (p *Posterior) Mode() *ml.Tensor {
	return p.mean.Clone()
}

// Sample draws mean + std * eps.
func (p *Posterior) Sample(rng *rand.Rand) *ml.Tensor {
	eps := ml.RandomNormalLike(rng, p.mean)
	out, _ := ml.Mul(p.std, eps)
	out, _ = ml.Add(p.mean, out)
	return out
}
