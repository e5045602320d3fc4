package custody

import (
	"errors"

	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

// ErrDecode is returned when an encoded payment record is malformed.
var ErrDecode = errors.New("custody: malformed encoding")

// Payment record wire discriminants.
const (
	paymentTagUnpaid byte = 0
	paymentTagPaid   byte = 1
)

// Bytes encodes the record as a one-byte discriminant, followed for paid
// records by payer, source and the length-prefixed big-endian amount.
func (r *PaymentRecord) Bytes() []byte {
	if r == nil || !r.Paid {
		return []byte{paymentTagUnpaid}
	}
	amount := r.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}
	payload := amount.Bytes()
	buf := make([]byte, 0, 1+2*types.AddressLength+1+len(payload))
	buf = append(buf, paymentTagPaid)
	buf = append(buf, r.Payer.Bytes()...)
	buf = append(buf, r.Source.Bytes()...)
	buf = append(buf, byte(len(payload)))
	return append(buf, payload...)
}

// PaymentRecordFromBytes decodes a record from its canonical encoding.
func PaymentRecordFromBytes(b []byte) (*PaymentRecord, error) {
	if len(b) == 0 {
		return nil, ErrDecode
	}
	switch b[0] {
	case paymentTagUnpaid:
		if len(b) != 1 {
			return nil, ErrDecode
		}
		return UnpaidRecord(), nil
	case paymentTagPaid:
		rest := b[1:]
		if len(rest) < 2*types.AddressLength+1 {
			return nil, ErrDecode
		}
		payer := types.BytesToAddress(rest[:types.AddressLength])
		rest = rest[types.AddressLength:]
		source := types.BytesToAddress(rest[:types.AddressLength])
		rest = rest[types.AddressLength:]
		n := int(rest[0])
		if n > 32 || len(rest) != 1+n {
			return nil, ErrDecode
		}
		amount := new(uint256.Int).SetBytes(rest[1:])
		return PaidRecord(payer, source, amount), nil
	default:
		return nil, ErrDecode
	}
}
