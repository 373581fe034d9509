package terrain

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// StepMode selects how heights are quantized.
type StepMode int

const (
	// StepSharp floors each height to a multiple of the step.
	StepSharp StepMode = iota
	// StepSmooth replaces each height with the midpoint of its step interval.
	StepSmooth
)

func (m StepMode) String() string {
	switch m {
	case StepSharp:
		return "sharp"
	case StepSmooth:
		return "smooth"
	default:
		return fmt.Sprintf("StepMode(%d)", int(m))
	}
}

// ParseStepMode converts "sharp" or "smooth" to a StepMode.
func ParseStepMode(s string) (StepMode, error) {
	switch strings.ToLower(s) {
	case "sharp":
		return StepSharp, nil
	case "smooth":
		return StepSmooth, nil
	}
	return 0, fmt.Errorf("unknown step mode %q", s)
}

// stepSlack absorbs division error for values that sit exactly on a step.
const stepSlack = 1e-9

// StepHeights quantizes z into terraces of the given height, measured from
// the minimum of z. The input is not modified.
func StepHeights(z *mat.Dense, step float64, mode StepMode) (*mat.Dense, error) {
	if step <= 0 || math.IsNaN(step) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStep, step)
	}
	ref := mat.Min(z)
	rows, cols := z.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(i, j int, v float64) float64 {
		level := math.Floor((v-ref)/step + stepSlack)
		h := ref + level*step
		if mode == StepSmooth {
			h += step / 2
		}
		return h
	}, z)
	return out, nil
}

// StepGrid returns a copy of g with stepped heights.
func StepGrid(g *MetricGrid, step float64, mode StepMode) (*MetricGrid, error) {
	z, err := StepHeights(g.Z, step, mode)
	if err != nil {
		return nil, err
	}
	return g.WithZ(z), nil
}
