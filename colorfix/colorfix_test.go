package colorfix

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/hkarakose/SUPIR/ml"
)

func randomImage(seed uint64, shape ...int) *ml.Tensor {
	return ml.RandomNormal(rand.New(rand.NewPCG(seed, seed)), shape...)
}

func planeStats(t *ml.Tensor, b, c int) (mean, std float64) {
	h, w := t.Dim(2), t.Dim(3)
	start := (b*t.Dim(1) + c) * h * w
	xs := make([]float64, h*w)
	for i := range xs {
		xs[i] = float64(t.Floats()[start+i])
	}
	return stat.MeanStdDev(xs, nil)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		err  bool
	}{
		{"Wavelet", Wavelet, false},
		{"wavelet", Wavelet, false},
		{"AdaIn", AdaIn, false},
		{"ADAIN", AdaIn, false},
		{"None", None, false},
		{"", None, false},
		{"histogram", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.err {
				require.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	require.ErrorIs(t, Mode("lab").Validate(), ErrInvalidMode)
}

func TestApplyNoneIsIdentity(t *testing.T) {
	content := randomImage(1, 2, 3, 8, 8)
	before := append([]float32(nil), content.Floats()...)

	out, err := Apply(context.Background(), None, content, randomImage(2, 2, 3, 8, 8))
	require.NoError(t, err)
	assert.Same(t, content, out)
	assert.Equal(t, before, out.Floats())
}

func TestApplyInvalidMode(t *testing.T) {
	_, err := Apply(context.Background(), Mode("lab"), randomImage(1, 1, 3, 4, 4), randomImage(2, 1, 3, 4, 4))
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestAdaINMatchesReferenceStats(t *testing.T) {
	content := randomImage(3, 2, 3, 16, 16)
	// Referenz mit anderem Mittelwert und Streuung pro Bild/Kanal
	style := randomImage(4, 2, 3, 16, 16)
	data := style.Floats()
	for i := range data {
		plane := i / 256
		data[i] = data[i]*float32(0.1*float64(plane+1)) + float32(plane)*0.2 - 0.5
	}

	out, err := Apply(context.Background(), AdaIn, content, style)
	require.NoError(t, err)
	require.Equal(t, content.Shape(), out.Shape())

	for b := range 2 {
		for c := range 3 {
			om, os := planeStats(out, b, c)
			sm, ss := planeStats(style, b, c)
			assert.InDelta(t, sm, om, 1e-4, "Mittelwert Bild %d Kanal %d", b, c)
			assert.InDelta(t, ss, os, 1e-3, "Std Bild %d Kanal %d", b, c)
		}
	}
}

func TestAdaINNearConstantChannel(t *testing.T) {
	content := ml.Full(0.3, 1, 3, 4, 4)
	style := ml.Full(-0.2, 1, 3, 4, 4)

	out, err := AdaptiveInstanceNormalization(content, style)
	require.NoError(t, err)
	for _, v := range out.Floats() {
		require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
		assert.InDelta(t, -0.2, v, 1e-6)
	}
}

func TestWaveletDecompositionSumsToInput(t *testing.T) {
	img := randomImage(5, 1, 3, 20, 24)
	high, low, err := WaveletDecomposition(img, DefaultLevels)
	require.NoError(t, err)

	sum, err := ml.Add(high, low)
	require.NoError(t, err)
	if diff := cmp.Diff(img.Floats(), sum.Floats(), cmpopts.EquateApprox(0, 1e-5)); diff != "" {
		t.Errorf("high + low != img (-want +got):\n%s", diff)
	}
}

func TestWaveletReconstruction(t *testing.T) {
	content := randomImage(6, 2, 3, 16, 16)
	style := randomImage(7, 2, 3, 16, 16).AddScalar(0.4)

	out, err := Apply(context.Background(), Wavelet, content, style)
	require.NoError(t, err)

	contentHigh, _, err := WaveletDecomposition(content, DefaultLevels)
	require.NoError(t, err)
	_, styleLow, err := WaveletDecomposition(style, DefaultLevels)
	require.NoError(t, err)

	// Ausgabe = Hochpass(content) + Tiefpass(style)
	highPart, err := ml.Sub(out, styleLow)
	require.NoError(t, err)
	if diff := cmp.Diff(contentHigh.Floats(), highPart.Floats(), cmpopts.EquateApprox(0, 1e-5)); diff != "" {
		t.Errorf("Hochpass-Band weicht ab (-want +got):\n%s", diff)
	}
	lowPart, err := ml.Sub(out, contentHigh)
	require.NoError(t, err)
	if diff := cmp.Diff(styleLow.Floats(), lowPart.Floats(), cmpopts.EquateApprox(0, 1e-5)); diff != "" {
		t.Errorf("Tiefpass-Band weicht ab (-want +got):\n%s", diff)
	}

	t.Run("gleiche Bilder", func(t *testing.T) {
		same, err := WaveletReconstruction(content.Batch(0), content.Batch(0))
		require.NoError(t, err)
		if diff := cmp.Diff(content.Batch(0).Floats(), same.Floats(), cmpopts.EquateApprox(0, 1e-5)); diff != "" {
			t.Errorf("Rekonstruktion mit sich selbst (-want +got):\n%s", diff)
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := Apply(context.Background(), Wavelet, content, randomImage(8, 2, 3, 8, 8))
		require.ErrorIs(t, err, ml.ErrShapeMismatch)
	})
}

func TestApplyPerImageIndependent(t *testing.T) {
	t.Setenv("SUPIR_COLORFIX_WORKERS", "2")

	content := randomImage(9, 3, 3, 8, 8)
	style := randomImage(10, 3, 3, 8, 8)

	batched, err := Apply(context.Background(), AdaIn, content, style)
	require.NoError(t, err)

	for i := range 3 {
		single, err := Apply(context.Background(), AdaIn, content.Batch(i), style.Batch(i))
		require.NoError(t, err)
		assert.Equal(t, single.Floats(), batched.Batch(i).Floats(), "Bild %d", i)
	}
}
