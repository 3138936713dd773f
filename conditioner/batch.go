// MODUL: batch
// ZWECK: Conditioning Batch Builder - baut das konditionale und das
//        unkonditionale Eingabe-Batch fuer den Text/Size-Conditioner
// INPUT: Batch-Groesse N, Prompts, positiver Suffix, negativer Prompt, Control-Latent
// OUTPUT: zwei Batches, die sich ausschliesslich im Text unterscheiden
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml (Tensor)
// HINWEISE: Die Groessen-Metadaten beschreiben die Trainings-Leinwand (1024x1024)
//           und sind unabhaengig von der tatsaechlichen Bildgroesse.

package conditioner

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hkarakose/SUPIR/ml"
)

// Trainings-Leinwand des Backbones.
const (
	CanvasHeight   = 1024
	CanvasWidth    = 1024
	CropTop        = 0
	CropLeft       = 0
	AestheticScore = 9.0
)

// Feldnamen, unter denen der Conditioner die Eintraege erwartet.
const (
	KeyText           = "txt"
	KeyOriginalSize   = "original_size_as_tuple"
	KeyCropCoords     = "crop_coords_top_left"
	KeyTargetSize     = "target_size_as_tuple"
	KeyAestheticScore = "aesthetic_score"
	KeyControl        = "control"
)

var (
	ErrEmptyBatch     = errors.New("conditioner: empty batch")
	ErrPromptCount    = errors.New("conditioner: prompt count does not match batch size")
	ErrControlBatch   = errors.New("conditioner: control latent batch does not match batch size")
	ErrMissingControl = errors.New("conditioner: control latent is required")
)

// Batch is one conditioning input. Every tensor field has leading dimension N.
type Batch struct {
	Text           []string
	OriginalSize   *ml.Tensor // [N, 2] (height, width)
	CropCoords     *ml.Tensor // [N, 2] (top, left)
	TargetSize     *ml.Tensor // [N, 2] (height, width)
	AestheticScore *ml.Tensor // [N, 1]
	Control        *ml.Tensor // [N, C, h, w], shared by cond and uncond
}

// Len returns the batch size.
func (b Batch) Len() int { return len(b.Text) }

// Tensors returns the non-text fields keyed by conditioner field name.
func (b Batch) Tensors() map[string]*ml.Tensor {
	return map[string]*ml.Tensor{
		KeyOriginalSize:   b.OriginalSize,
		KeyCropCoords:     b.CropCoords,
		KeyTargetSize:     b.TargetSize,
		KeyAestheticScore: b.AestheticScore,
		KeyControl:        b.Control,
	}
}

// Clone returns a deep copy of b.
func (b Batch) Clone() Batch {
	return Batch{
		Text:           slices.Clone(b.Text),
		OriginalSize:   b.OriginalSize.Clone(),
		CropCoords:     b.CropCoords.Clone(),
		TargetSize:     b.TargetSize.Clone(),
		AestheticScore: b.AestheticScore.Clone(),
		Control:        b.Control.Clone(),
	}
}

// Build assembles the conditional and unconditional batches. The conditional
// text is prompt+suffix per image (no separator); the unconditional text is
// the negative prompt repeated n times. The uncond batch is a deep copy of the
// cond batch with only the text replaced.
func Build(n int, prompts []string, suffix, negative string, control *ml.Tensor) (cond, uncond Batch, err error) {
	if n <= 0 {
		return Batch{}, Batch{}, ErrEmptyBatch
	}
	if len(prompts) != n {
		return Batch{}, Batch{}, fmt.Errorf("%w: %d prompts, batch size %d", ErrPromptCount, len(prompts), n)
	}
	if control == nil {
		return Batch{}, Batch{}, ErrMissingControl
	}
	if control.Rank() == 0 || control.Dim(0) != n {
		return Batch{}, Batch{}, fmt.Errorf("%w: %v, batch size %d", ErrControlBatch, control.Shape(), n)
	}

	text := make([]string, n)
	for i, p := range prompts {
		text[i] = p + suffix
	}

	cond = Batch{
		Text:           text,
		OriginalSize:   pairs(n, CanvasHeight, CanvasWidth),
		CropCoords:     pairs(n, CropTop, CropLeft),
		TargetSize:     pairs(n, CanvasHeight, CanvasWidth),
		AestheticScore: ml.Full(AestheticScore, n, 1),
		Control:        control.Clone(),
	}

	uncond = cond.Clone()
	for i := range uncond.Text {
		uncond.Text[i] = negative
	}
	return cond, uncond, nil
}

func pairs(n int, a, b float32) *ml.Tensor {
	data := make([]float32, 0, 2*n)
	for range n {
		data = append(data, a, b)
	}
	t, _ := ml.New(data, n, 2)
	return t
}
