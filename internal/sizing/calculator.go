// Package sizing decides whether an image must shrink to fit a bounding box and
// by how much.
package sizing

import (
	"fmt"
	"math"

	"github.com/dunamismax/downsize/internal/domain"
)

type Kind int

const (
	KindNoOp Kind = iota
	KindResize
)

func (k Kind) String() string {
	if k == KindResize {
		return "resize"
	}
	return "noop"
}

// Plan is the outcome of Calculate: either NoOp or Resize with a target size.
type Plan struct {
	kind   Kind
	target domain.Dimensions
}

func NoOp() Plan {
	return Plan{kind: KindNoOp}
}

func Resize(target domain.Dimensions) Plan {
	return Plan{kind: KindResize, target: target}
}

func (p Plan) Kind() Kind {
	return p.kind
}

func (p Plan) NeedsResize() bool {
	return p.kind == KindResize
}

// Target returns the resize target; ok is false for a NoOp plan.
func (p Plan) Target() (domain.Dimensions, bool) {
	return p.target, p.kind == KindResize
}

func (p Plan) String() string {
	if p.kind == KindResize {
		return fmt.Sprintf("resize(%s)", p.target)
	}
	return "noop"
}

// Calculate scales source down uniformly so that it fits inside bound. Images
// that already fit are never upscaled. Target components are truncated, so a
// pathological aspect ratio may yield a zero-sized axis.
func Calculate(source, bound domain.Dimensions) (Plan, error) {
	if err := source.Validate(); err != nil {
		return Plan{}, err
	}
	if err := bound.ValidateBound(); err != nil {
		return Plan{}, err
	}

	scaleW := float64(bound.Width) / float64(source.Width)
	scaleH := float64(bound.Height) / float64(source.Height)
	scale := math.Min(scaleW, scaleH)
	if scale >= 1.0 {
		return NoOp(), nil
	}

	return Resize(domain.Dimensions{
		Width:  int(math.Floor(float64(source.Width) * scale)),
		Height: int(math.Floor(float64(source.Height) * scale)),
	}), nil
}
