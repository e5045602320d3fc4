package royalty

import (
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"
)

// ErrDecode is returned when an encoded step or structure is malformed.
var ErrDecode = errors.New("royalty: malformed encoding")

// Step wire discriminants.
const (
	stepTagMinimum    byte = 0
	stepTagFlat       byte = 1
	stepTagPercentage byte = 2
)

// Bytes encodes a step as a one-byte discriminant followed by the
// length-prefixed big-endian amount.
func (s Step) Bytes() []byte {
	amount := s.Amount
	if amount == nil {
		amount = uint256.NewInt(0)
	}
	payload := amount.Bytes()
	buf := make([]byte, 0, 2+len(payload))
	switch s.Kind {
	case StepFlat:
		buf = append(buf, stepTagFlat)
	case StepPercentage:
		buf = append(buf, stepTagPercentage)
	default:
		buf = append(buf, stepTagMinimum)
	}
	buf = append(buf, byte(len(payload)))
	return append(buf, payload...)
}

// StepFromBytes decodes one step and returns the remaining bytes.
func StepFromBytes(b []byte) (Step, []byte, error) {
	if len(b) < 2 {
		return Step{}, nil, ErrDecode
	}
	var kind StepKind
	switch b[0] {
	case stepTagMinimum:
		kind = StepMinimum
	case stepTagFlat:
		kind = StepFlat
	case stepTagPercentage:
		kind = StepPercentage
	default:
		return Step{}, nil, ErrDecode
	}
	n := int(b[1])
	if n > 32 || len(b) < 2+n {
		return Step{}, nil, ErrDecode
	}
	amount := new(uint256.Int).SetBytes(b[2 : 2+n])
	return Step{Kind: kind, Amount: amount}, b[2+n:], nil
}

// Bytes encodes the structure as a big-endian u32 step count followed by the
// concatenated step encodings.
func (s Structure) Bytes() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(s.Steps)))
	for _, step := range s.Steps {
		buf = append(buf, step.Bytes()...)
	}
	return buf
}

// StructureFromBytes decodes a structure from its canonical encoding.
func StructureFromBytes(b []byte) (Structure, error) {
	if len(b) < 4 {
		return Structure{}, ErrDecode
	}
	count := binary.BigEndian.Uint32(b[:4])
	rest := b[4:]
	steps := make([]Step, 0, count)
	for i := uint32(0); i < count; i++ {
		step, remaining, err := StepFromBytes(rest)
		if err != nil {
			return Structure{}, err
		}
		steps = append(steps, step)
		rest = remaining
	}
	if len(rest) != 0 {
		return Structure{}, ErrDecode
	}
	return Structure{Steps: steps}, nil
}
