// MODUL: colorfix
// ZWECK: Color Corrector - korrigiert Farb-/Helligkeitsdrift der
//        Sampler-Ausgabe gegen die grobe Stage-1 Schaetzung
// INPUT: content (dekodierte Sampler-Ausgabe), style (Stage-1 Schaetzung), Modus
// OUTPUT: korrigiertes Bild-Batch [N, C, H, W]
// NEBENEFFEKTE: keine - reine Funktionen, parallel pro Bild
// ABHAENGIGKEITEN: ml, envconfig (Worker-Limit), errgroup
// HINWEISE: Jedes Bild im Batch wird unabhaengig korrigiert.

package colorfix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hkarakose/SUPIR/envconfig"
	"github.com/hkarakose/SUPIR/ml"
)

// Mode selects the color correction algorithm.
type Mode string

const (
	Wavelet Mode = "Wavelet"
	AdaIn   Mode = "AdaIn"
	None    Mode = "None"
)

var ErrInvalidMode = errors.New("colorfix: mode must be one of Wavelet, AdaIn, None")

// ParseMode accepts the mode names case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wavelet":
		return Wavelet, nil
	case "adain":
		return AdaIn, nil
	case "none", "":
		return None, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Validate reports whether m is a known mode.
func (m Mode) Validate() error {
	switch m {
	case Wavelet, AdaIn, None:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, string(m))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Apply corrects content against style. None returns content itself.
func Apply(ctx context.Context, mode Mode, content, style *ml.Tensor) (*ml.Tensor, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if mode == None {
		return content, nil
	}

	var fix func(c, s *ml.Tensor) (*ml.Tensor, error)
	switch mode {
	case Wavelet:
		if !content.SameShape(style) {
			return nil, fmt.Errorf("%w: content %v, style %v", ml.ErrShapeMismatch, content.Shape(), style.Shape())
		}
		fix = WaveletReconstruction
	case AdaIn:
		if content.Rank() != 4 || style.Rank() != 4 || content.Dim(0) != style.Dim(0) || content.Dim(1) != style.Dim(1) {
			return nil, fmt.Errorf("%w: content %v, style %v", ml.ErrShapeMismatch, content.Shape(), style.Shape())
		}
		fix = AdaptiveInstanceNormalization
	}

	start := time.Now()
	n := content.Dim(0)
	out := make([]*ml.Tensor, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(envconfig.ColorFixWorkers())
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := fix(content.Batch(i), style.Batch(i))
			if err != nil {
				return fmt.Errorf("color fix image %d: %w", i, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := ml.Concat(out...)
	if err != nil {
		return nil, err
	}
	slog.Debug("color fix", "mode", mode, "images", n, "elapsed", time.Since(start))
	return result, nil
}
