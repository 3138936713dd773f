// MODUL: tensor_test
// ZWECK: Tests fuer Bild <-> Tensor Konvertierung
// INPUT: Synthetische Bilder
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, image
// HINWEISE: Testet NCHW-Layout, Wertebereich [-1, 1] und Rundreise

package vision

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/hkarakose/SUPIR/ml"
)

// createTestImage erzeugt ein einfaches Testbild
func createTestImage(w, h int, c color.Color) *ImageInput {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rgba.Set(x, y, c)
		}
	}
	return &ImageInput{
		Image:  rgba,
		Width:  w,
		Height: h,
		Format: FormatPNG,
	}
}

func TestToTensorLayoutAndRange(t *testing.T) {
	// Rotes 3x2 Bild
	img := createTestImage(3, 2, color.RGBA{255, 0, 0, 255})
	tensor, err := ToTensor(img)
	if err != nil {
		t.Fatalf("ToTensor() error = %v", err)
	}

	shape := tensor.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[1] != 3 || shape[2] != 2 || shape[3] != 3 {
		t.Fatalf("Shape = %v, erwartet [1 3 2 3]", shape)
	}

	// CHW: erst 6 R-Werte (1.0), dann 6 G-Werte (-1.0), dann 6 B-Werte (-1.0)
	data := tensor.Floats()
	for i := 0; i < 6; i++ {
		if data[i] != 1.0 {
			t.Errorf("R[%d] = %f, erwartet 1.0", i, data[i])
		}
		if data[6+i] != -1.0 || data[12+i] != -1.0 {
			t.Errorf("G/B[%d] = %f/%f, erwartet -1.0", i, data[6+i], data[12+i])
		}
	}
}

func TestToTensorBatch(t *testing.T) {
	a := createTestImage(4, 4, color.White)
	b := createTestImage(4, 4, color.Black)

	tensor, err := ToTensor(a, b)
	if err != nil {
		t.Fatalf("ToTensor() error = %v", err)
	}
	if tensor.Dim(0) != 2 {
		t.Fatalf("Batch = %d, erwartet 2", tensor.Dim(0))
	}
	if v := tensor.Batch(1).Floats()[0]; v != -1.0 {
		t.Errorf("Schwarz = %f, erwartet -1.0", v)
	}

	_, err = ToTensor(a, createTestImage(8, 4, color.White))
	if !errors.Is(err, ErrBatchSize) {
		t.Errorf("Erwartet ErrBatchSize, bekommen %v", err)
	}
}

func TestTensorRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 5, 3))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
		if i%4 == 3 {
			src.Pix[i] = 0xff
		}
	}
	img := &ImageInput{Image: src, Width: 5, Height: 3, Format: FormatPNG}

	tensor, err := ToTensor(img)
	if err != nil {
		t.Fatalf("ToTensor() error = %v", err)
	}
	out, err := FromTensor(tensor)
	if err != nil {
		t.Fatalf("FromTensor() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Anzahl Bilder = %d, erwartet 1", len(out))
	}

	for i := range src.Pix {
		if out[0].Pix[i] != src.Pix[i] {
			t.Fatalf("Pix[%d] = %d, erwartet %d", i, out[0].Pix[i], src.Pix[i])
		}
	}
}

func TestFromTensorClamps(t *testing.T) {
	tensor, _ := ml.New([]float32{2, -3, 0}, 1, 3, 1, 1)
	out, err := FromTensor(tensor)
	if err != nil {
		t.Fatalf("FromTensor() error = %v", err)
	}

	c := out[0].RGBAAt(0, 0)
	if c.R != 255 || c.G != 0 || c.B != 128 {
		t.Errorf("Farbe = %v, erwartet {255 0 128}", c)
	}

	if _, err := FromTensor(ml.Zeros(1, 4, 1, 1)); !errors.Is(err, ml.ErrShapeMismatch) {
		t.Errorf("Erwartet ErrShapeMismatch bei 4 Kanaelen, bekommen %v", err)
	}
}
