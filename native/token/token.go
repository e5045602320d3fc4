// Package token defines the call contracts of the external fungible token
// and NFT registry collaborators, plus in-memory reference implementations
// used by tests and the local daemon. The collaborators' internal logic is a
// black box to the engines; only these interfaces matter.
package token

import (
	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

// Fungible is the held-balance token contract the marketplace settles in.
type Fungible interface {
	Transfer(ctx types.CallContext, recipient types.Address, amount *uint256.Int) error
	TransferFrom(ctx types.CallContext, owner, recipient types.Address, amount *uint256.Int) error
	Approve(ctx types.CallContext, spender types.Address, amount *uint256.Int) error
	BalanceOf(owner types.Address) (*uint256.Int, error)
}

// Registry owns the canonical non-fungible asset records.
type Registry interface {
	OwnerOf(id types.TokenID) (types.Address, error)
	Transfer(ctx types.CallContext, id types.TokenID, source, target types.Address) error
	GetApproved(id types.TokenID) (types.Address, bool, error)
	Metadata(id types.TokenID) (string, error)
}

// Transfer filter verdicts.
const (
	Deny    uint8 = 0
	Proceed uint8 = 1
)

// TransferFilter is consulted by a royalty-enforcing registry immediately
// before it mutates ownership. Returning Deny vetoes the transfer.
type TransferFilter interface {
	CanTransfer(ctx types.CallContext, id types.TokenID, source, target types.Address) (uint8, error)
}
