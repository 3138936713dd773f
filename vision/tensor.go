// MODUL: tensor
// ZWECK: Konvertierung zwischen Bildern und [-1, 1] NCHW Bild-Tensoren
// INPUT: ImageInput-Liste bzw. ml.Tensor [N, 3, H, W]
// OUTPUT: ml.Tensor bzw. *image.RGBA pro Batch-Eintrag
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml (Permute ueber pdevine/tensor)
// HINWEISE: Pixel werden zuerst als NHWC gelesen und dann nach NCHW
//           permutiert. Rueckwandlung klemmt auf [-1, 1] und rundet.

package vision

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/hkarakose/SUPIR/ml"
)

// ErrBatchSize wird zurueckgegeben wenn Bilder eines Batches verschieden gross sind
var ErrBatchSize = errors.New("bilder im batch haben unterschiedliche groesse")

// extractRGB holt RGB-Werte als float32 im Bereich [0,1]
func extractRGB(img *ImageInput, x, y int) (float32, float32, float32) {
	c := img.Image.RGBAAt(x, y)
	return float32(c.R) / 255.0, float32(c.G) / 255.0, float32(c.B) / 255.0
}

// ToTensor stapelt Bilder gleicher Groesse zu einem [N, 3, H, W] Tensor in [-1, 1]
func ToTensor(imgs ...*ImageInput) (*ml.Tensor, error) {
	if len(imgs) == 0 {
		return nil, fmt.Errorf("%w: leerer batch", ErrBatchSize)
	}

	w, h := imgs[0].Width, imgs[0].Height
	nhwc := make([]float32, 0, len(imgs)*h*w*3)
	for i, img := range imgs {
		if img.Width != w || img.Height != h {
			return nil, fmt.Errorf("%w: bild %d ist %dx%d, erwartet %dx%d", ErrBatchSize, i, img.Width, img.Height, w, h)
		}

		bounds := img.Image.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b := extractRGB(img, x, y)
				nhwc = append(nhwc, r*2-1, g*2-1, b*2-1)
			}
		}
	}

	t, err := ml.New(nhwc, len(imgs), h, w, 3)
	if err != nil {
		return nil, err
	}
	return t.Permute(0, 3, 1, 2)
}

// FromTensor wandelt einen [N, 3, H, W] Tensor in [-1, 1] zurueck in Bilder
func FromTensor(t *ml.Tensor) ([]*image.RGBA, error) {
	if t.Rank() != 4 || t.Dim(1) != 3 {
		return nil, fmt.Errorf("%w: erwartet [N, 3, H, W], bekommen %v", ml.ErrShapeMismatch, t.Shape())
	}

	nhwc, err := t.Permute(0, 2, 3, 1)
	if err != nil {
		return nil, err
	}

	n, h, w := t.Dim(0), t.Dim(2), t.Dim(3)
	data := nhwc.Floats()
	out := make([]*image.RGBA, n)
	for b := range n {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		src := data[b*h*w*3 : (b+1)*h*w*3]
		for i := 0; i < h*w; i++ {
			img.Pix[i*4+0] = toByte(src[i*3+0])
			img.Pix[i*4+1] = toByte(src[i*3+1])
			img.Pix[i*4+2] = toByte(src[i*3+2])
			img.Pix[i*4+3] = 0xff
		}
		out[b] = img
	}
	return out, nil
}

// toByte bildet [-1, 1] auf [0, 255] ab, NaN wird zu 0
func toByte(v float32) uint8 {
	f := (float64(v) + 1) * 127.5
	if math.IsNaN(f) {
		return 0
	}
	return uint8(math.Round(math.Max(0, math.Min(255, f))))
}

// TensorShape gibt die NCHW-Form fuer einen Batch aus n Bildern zurueck
func (img *ImageInput) TensorShape(n int) []int {
	return []int{n, 3, img.Height, img.Width}
}
