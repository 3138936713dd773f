package conditioner

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkarakose/SUPIR/ml"
)

const (
	suffix   = ", Cinematic, highly detailed"
	negative = "painting, blurring"
)

func TestBuild(t *testing.T) {
	control := ml.RandomNormal(rand.New(rand.NewPCG(1, 1)), 2, 4, 8, 8)
	cond, uncond, err := Build(2, []string{"a cat", "a dog"}, suffix, negative, control)
	require.NoError(t, err)

	assert.Equal(t, []string{"a cat" + suffix, "a dog" + suffix}, cond.Text)
	assert.Equal(t, []string{negative, negative}, uncond.Text)

	assert.Equal(t, []float32{1024, 1024, 1024, 1024}, cond.OriginalSize.Floats())
	assert.Equal(t, []int{2, 2}, cond.OriginalSize.Shape())
	assert.Equal(t, []float32{0, 0, 0, 0}, cond.CropCoords.Floats())
	assert.Equal(t, []float32{1024, 1024, 1024, 1024}, cond.TargetSize.Floats())
	assert.Equal(t, []float32{9, 9}, cond.AestheticScore.Floats())
	assert.Equal(t, []int{2, 1}, cond.AestheticScore.Shape())
	assert.Equal(t, control.Floats(), cond.Control.Floats())
}

func TestBuildBatchesDifferOnlyInText(t *testing.T) {
	control := ml.Full(0.5, 3, 4, 2, 2)
	cond, uncond, err := Build(3, []string{"x", "x", "x"}, suffix, negative, control)
	require.NoError(t, err)

	ct, ut := cond.Tensors(), uncond.Tensors()
	require.Len(t, ut, len(ct))
	for k, v := range ct {
		if diff := cmp.Diff(v.Floats(), ut[k].Floats()); diff != "" {
			t.Errorf("Feld %s weicht ab (-cond +uncond):\n%s", k, diff)
		}
		assert.Equal(t, v.Shape(), ut[k].Shape(), k)
	}

	// Deep Copy: Aenderungen am uncond-Batch duerfen cond nicht beruehren
	uncond.Control.Floats()[0] = 42
	uncond.Text[0] = "changed"
	assert.Equal(t, float32(0.5), cond.Control.Floats()[0])
	assert.Equal(t, "x"+suffix, cond.Text[0])
}

func TestBuildReplicatedPrompt(t *testing.T) {
	// Ein Bild, drei Samples: Prompt ist vor dem Suffix dreimal identisch
	image := ml.Full(0.1, 1, 4, 2, 2)
	control, err := image.Repeat(3)
	require.NoError(t, err)

	cond, uncond, err := Build(3, []string{"portrait", "portrait", "portrait"}, suffix, negative, control)
	require.NoError(t, err)
	assert.Equal(t, 3, cond.Len())
	assert.Equal(t, 3, uncond.Len())
	for _, txt := range cond.Text {
		assert.Equal(t, "portrait"+suffix, txt)
	}
	assert.Equal(t, 3, cond.Control.Dim(0))
}

func TestBuildErrors(t *testing.T) {
	control := ml.Zeros(2, 4, 2, 2)

	tests := []struct {
		name    string
		n       int
		prompts []string
		control *ml.Tensor
		want    error
	}{
		{"leer", 0, nil, control, ErrEmptyBatch},
		{"prompt-anzahl", 2, []string{"a", "b", "c"}, control, ErrPromptCount},
		{"ohne control", 2, []string{"a", "b"}, nil, ErrMissingControl},
		{"control-batch", 3, []string{"a", "b", "c"}, control, ErrControlBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Build(tt.n, tt.prompts, suffix, negative, tt.control)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
