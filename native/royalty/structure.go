package royalty

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when a royalty computation exceeds the 256-bit
// range. The whole call aborts; no partial royalty is ever charged.
var ErrOverflow = errors.New("royalty: arithmetic overflow")

// StepKind discriminates the supported fee-computation steps.
type StepKind uint8

const (
	// StepMinimum lifts the running payment to a floor without adding royalty.
	StepMinimum StepKind = iota
	// StepFlat adds a constant amount to the royalty.
	StepFlat
	// StepPercentage adds basis points of the original payment.
	StepPercentage
)

// Valid reports whether the kind is within the supported range.
func (k StepKind) Valid() bool {
	switch k {
	case StepMinimum, StepFlat, StepPercentage:
		return true
	default:
		return false
	}
}

func (k StepKind) String() string {
	switch k {
	case StepMinimum:
		return "minimum"
	case StepFlat:
		return "flat"
	case StepPercentage:
		return "percentage"
	default:
		return fmt.Sprintf("stepkind(%d)", uint8(k))
	}
}

// Step is one fee-computation step. Amount is the floor for Minimum steps,
// the constant for Flat steps and the basis points for Percentage steps.
type Step struct {
	Kind   StepKind
	Amount *uint256.Int
}

// MinimumStep builds a floor step.
func MinimumStep(floor *uint256.Int) Step {
	return Step{Kind: StepMinimum, Amount: cloneAmount(floor)}
}

// FlatStep builds a constant-fee step.
func FlatStep(amount *uint256.Int) Step {
	return Step{Kind: StepFlat, Amount: cloneAmount(amount)}
}

// PercentageStep builds a basis-point step. 10000 bps equal the full payment.
func PercentageStep(basisPoints *uint256.Int) Step {
	return Step{Kind: StepPercentage, Amount: cloneAmount(basisPoints)}
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	return Step{Kind: s.Kind, Amount: cloneAmount(s.Amount)}
}

// Structure is an ordered sequence of royalty steps, evaluated left to right
// over a payment amount. It is fixed at contract installation and never
// mutated afterwards.
type Structure struct {
	Steps []Step
}

// NewStructure builds a royalty structure from the given steps.
func NewStructure(steps ...Step) Structure {
	cloned := make([]Step, len(steps))
	for i, step := range steps {
		cloned[i] = step.Clone()
	}
	return Structure{Steps: cloned}
}

// Clone returns a deep copy of the structure.
func (s Structure) Clone() Structure {
	return NewStructure(s.Steps...)
}

// Validate checks every step kind and payload.
func (s Structure) Validate() error {
	for i, step := range s.Steps {
		if !step.Kind.Valid() {
			return fmt.Errorf("royalty: step %d has invalid kind %d", i, step.Kind)
		}
		if step.Amount == nil {
			return fmt.Errorf("royalty: step %d has nil amount", i)
		}
	}
	return nil
}

var basisPointDenominator = uint256.NewInt(10_000)

// CalculateTotalRoyalty folds the structure over the payment amount. Minimum
// steps lift the running payment to at least their floor, Flat steps add a
// constant and Percentage steps add basisPoints*originalPayment/10000. The
// computation is deterministic and monotonically non-decreasing in the
// payment amount.
func (s Structure) CalculateTotalRoyalty(totalPayment *uint256.Int) (*uint256.Int, error) {
	if totalPayment == nil {
		totalPayment = uint256.NewInt(0)
	}
	payment := new(uint256.Int).Set(totalPayment)
	totalRoyalty := new(uint256.Int)
	for _, step := range s.Steps {
		amount := step.Amount
		if amount == nil {
			amount = uint256.NewInt(0)
		}
		switch step.Kind {
		case StepMinimum:
			if payment.Lt(amount) {
				payment.Set(amount)
			}
		case StepFlat:
			if _, overflow := totalRoyalty.AddOverflow(totalRoyalty, amount); overflow {
				return nil, ErrOverflow
			}
		case StepPercentage:
			part := new(uint256.Int)
			if _, overflow := part.MulOverflow(totalPayment, amount); overflow {
				return nil, ErrOverflow
			}
			part.Div(part, basisPointDenominator)
			if _, overflow := totalRoyalty.AddOverflow(totalRoyalty, part); overflow {
				return nil, ErrOverflow
			}
		default:
			return nil, fmt.Errorf("royalty: unknown step kind %d", step.Kind)
		}
	}
	return totalRoyalty, nil
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(v)
}
