package market

import (
	"strconv"

	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

const (
	EventTypePosted          = "market.posted"
	EventTypeSettled         = "market.settled"
	EventTypeCancelled       = "market.cancelled"
	EventTypeQuoteRegistered = "market.quote_registered"
	EventTypeAssetRegistered = "market.asset_registered"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// NewPostedEvent returns the canonical payload for a freshly recorded listing.
func NewPostedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypePosted, l, nil)
}

// NewSettledEvent returns the payload emitted when a bid settles a listing.
func NewSettledEvent(l *Listing, bidder types.Address, amount *uint256.Int) *types.Event {
	evt := newListingEvent(EventTypeSettled, l, amount)
	evt.Attributes["bidder"] = bidder.Hex()
	return evt
}

// NewCancelledEvent returns the payload emitted when the seller withdraws a
// listing.
func NewCancelledEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeCancelled, l, nil)
}

// NewQuoteRegisteredEvent returns the payload for a quote-currency
// registration.
func NewQuoteRegisteredEvent(id uint64, ref types.Address) *types.Event {
	return &types.Event{Type: EventTypeQuoteRegistered, Attributes: map[string]string{
		"contractId": strconv.FormatUint(id, 10),
		"ref":        ref.Hex(),
	}}
}

// NewAssetRegisteredEvent returns the payload for an NFT registry
// registration.
func NewAssetRegisteredEvent(id uint64, ref, custodial types.Address) *types.Event {
	attrs := map[string]string{
		"contractId": strconv.FormatUint(id, 10),
		"ref":        ref.Hex(),
	}
	if !custodial.IsZero() {
		attrs["custodial"] = custodial.Hex()
	}
	return &types.Event{Type: EventTypeAssetRegistered, Attributes: attrs}
}

func newListingEvent(eventType string, l *Listing, amount *uint256.Int) *types.Event {
	attrs := make(map[string]string)
	if l != nil {
		attrs["listingId"] = strconv.FormatUint(l.ID, 10)
		attrs["owner"] = l.Owner.Hex()
		attrs["tokenId"] = l.TokenID.String()
		if l.Price != nil {
			attrs["price"] = l.Price.Dec()
		}
	}
	if amount != nil {
		attrs["amount"] = amount.Dec()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
