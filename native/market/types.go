package market

import (
	"fmt"

	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

// Listing is one active sell offer: a token offered at a fixed price, quoted
// in a registered fungible token. A listing exists in storage exactly while
// the offer is open; settlement and cancellation delete it, and its id is
// never reused.
type Listing struct {
	ID              uint64
	Owner           types.Address
	AssetContractID uint64
	QuoteContractID uint64
	TokenID         types.TokenID
	Price           *uint256.Int
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(uint256.Int).Set(l.Price)
	} else {
		clone.Price = new(uint256.Int)
	}
	return &clone
}

// SanitizeListing validates a listing and returns a normalised copy with a
// non-nil price.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("market: nil listing")
	}
	if err := l.TokenID.Validate(); err != nil {
		return nil, err
	}
	if l.Owner.IsZero() {
		return nil, fmt.Errorf("market: listing owner must not be zero")
	}
	return l.Clone(), nil
}

// QuoteContract is a registered quote-currency contract reference with its
// dense id, stored bidirectionally for compact storage keys.
type QuoteContract struct {
	ID  uint64
	Ref types.Address
}

// Clone returns a copy of the metadata record.
func (q *QuoteContract) Clone() *QuoteContract {
	if q == nil {
		return nil
	}
	clone := *q
	return &clone
}

// AssetContract is a registered NFT registry reference. Custodial carries the
// custodial layer wrapping the registry, or the zero address when the
// registry is plain and listings settle by escrow transfer.
type AssetContract struct {
	ID        uint64
	Ref       types.Address
	Custodial types.Address
}

// Clone returns a copy of the metadata record.
func (a *AssetContract) Clone() *AssetContract {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Custodied reports whether the registry is wrapped by a custodial layer.
func (a *AssetContract) Custodied() bool {
	return a != nil && !a.Custodial.IsZero()
}

// Counters holds the monotonic id generators: one for listings, one for
// registered contract references. Mutated under read-modify-write within a
// single serialized call; assigned ids are never reused.
type Counters struct {
	NextListingID  uint64
	NextContractID uint64
}
