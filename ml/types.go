// types.go - Datentypen und Praezisionsgrenzen fuer Tensor-Operationen
// Dieses Modul definiert DType (fp32, fp16, bf16) und das Runden von
// Tensoren auf die Praezision eines Modell-Teils (Autocast-Grenze).
package ml

import (
	"errors"
	"fmt"
	"strings"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType represents the numeric precision a model component runs under.
type DType int

const (
	DTypeFloat32 DType = iota
	DTypeFloat16
	DTypeBFloat16
)

// ErrUnknownDType is returned for precision names outside {fp32, fp16, bf16}.
var ErrUnknownDType = errors.New("ml: unknown dtype")

// ParseDType parses the names used in model config files.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fp32", "float32", "f32":
		return DTypeFloat32, nil
	case "fp16", "float16", "f16":
		return DTypeFloat16, nil
	case "bf16", "bfloat16":
		return DTypeBFloat16, nil
	default:
		return DTypeFloat32, fmt.Errorf("%w: %q", ErrUnknownDType, s)
	}
}

func (d DType) String() string {
	switch d {
	case DTypeFloat32:
		return "fp32"
	case DTypeFloat16:
		return "fp16"
	case DTypeBFloat16:
		return "bf16"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d DType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Round returns a copy of t whose values are representable in d.
// Storage stays float32; only the precision is reduced.
func (t *Tensor) Round(d DType) *Tensor {
	switch d {
	case DTypeFloat16:
		out := t.Clone()
		for i, v := range out.data {
			out.data[i] = float16.Fromfloat32(v).Float32()
		}
		return out
	case DTypeBFloat16:
		return &Tensor{
			shape: cloneShape(t.shape),
			data:  bfloat16.DecodeFloat32(bfloat16.EncodeFloat32(t.data)),
		}
	default:
		return t.Clone()
	}
}
