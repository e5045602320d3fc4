package custody

import (
	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

const (
	EventTypeClaimed     = "custody.claimed"
	EventTypeDelegated   = "custody.delegated"
	EventTypeUndelegated = "custody.undelegated"
	EventTypeTransferred = "custody.transferred"
	EventTypeRoyaltyPaid = "custody.royalty_paid"
)

type custodyEvent struct {
	evt *types.Event
}

func (e custodyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e custodyEvent) Event() *types.Event { return e.evt }

// NewClaimedEvent returns the canonical payload for a freshly claimed asset.
func NewClaimedEvent(asset *Asset) *types.Event {
	return newAssetEvent(EventTypeClaimed, asset, nil)
}

// NewDelegatedEvent returns the payload emitted when a delegate is granted.
func NewDelegatedEvent(asset *Asset) *types.Event {
	return newAssetEvent(EventTypeDelegated, asset, nil)
}

// NewUndelegatedEvent returns the payload emitted when a delegation is
// revoked with the delegate's consent.
func NewUndelegatedEvent(asset *Asset) *types.Event {
	return newAssetEvent(EventTypeUndelegated, asset, nil)
}

// NewTransferredEvent returns the payload emitted on a delegate-gated
// settlement, including the royalty charged.
func NewTransferredEvent(asset *Asset, royalty *uint256.Int) *types.Event {
	return newAssetEvent(EventTypeTransferred, asset, royalty)
}

// NewRoyaltyPaidEvent returns the payload emitted when a payment proof is
// recorded in the filter-enforced variant.
func NewRoyaltyPaidEvent(id types.TokenID, record *PaymentRecord) *types.Event {
	attrs := map[string]string{
		"tokenId": id.String(),
	}
	if record != nil {
		attrs["payer"] = record.Payer.Hex()
		attrs["source"] = record.Source.Hex()
		if record.Amount != nil {
			attrs["amount"] = record.Amount.Dec()
		}
	}
	return &types.Event{Type: EventTypeRoyaltyPaid, Attributes: attrs}
}

func newAssetEvent(eventType string, asset *Asset, royalty *uint256.Int) *types.Event {
	attrs := make(map[string]string)
	if asset != nil {
		attrs["tokenId"] = asset.TokenID.String()
		attrs["realOwner"] = asset.RealOwner.Hex()
		if asset.Delegated() {
			attrs["delegate"] = asset.Delegate.Hex()
		}
	}
	if royalty != nil {
		attrs["royalty"] = royalty.Dec()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
