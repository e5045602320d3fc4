package custody

import (
	"fmt"

	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

// Asset is the custodial wrapper around one registry entry. RealOwner is the
// logical owner tracked here, independent of whichever contract the registry
// currently records as holder. At most one delegate is active at a time; the
// zero address means none.
type Asset struct {
	TokenID   types.TokenID
	RealOwner types.Address
	Delegate  types.Address
}

// Clone returns a copy callers can mutate safely.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Delegated reports whether a delegate is currently set.
func (a *Asset) Delegated() bool {
	return a != nil && !a.Delegate.IsZero()
}

// PaymentRecord is the per-asset royalty payment state machine. An unpaid
// record carries no payload. A paid record authorizes exactly one transfer
// from Source and is consumed when the transfer filter approves it.
type PaymentRecord struct {
	Paid   bool
	Payer  types.Address
	Source types.Address
	Amount *uint256.Int
}

// UnpaidRecord returns the empty state.
func UnpaidRecord() *PaymentRecord {
	return &PaymentRecord{}
}

// PaidRecord returns a consumed-once payment proof.
func PaidRecord(payer, source types.Address, amount *uint256.Int) *PaymentRecord {
	return &PaymentRecord{Paid: true, Payer: payer, Source: source, Amount: cloneAmount(amount)}
}

// Clone returns a deep copy of the record.
func (r *PaymentRecord) Clone() *PaymentRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Amount = cloneAmount(r.Amount)
	return &clone
}

// SanitizePaymentRecord normalises a record: unpaid records drop any payload,
// paid records must carry a payer and source.
func SanitizePaymentRecord(r *PaymentRecord) (*PaymentRecord, error) {
	if r == nil {
		return UnpaidRecord(), nil
	}
	if !r.Paid {
		return UnpaidRecord(), nil
	}
	if r.Payer.IsZero() || r.Source.IsZero() {
		return nil, fmt.Errorf("custody: paid record missing payer or source")
	}
	return r.Clone(), nil
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
