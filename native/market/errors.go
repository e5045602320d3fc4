package market

import "errors"

var (
	ErrUnknownListing           = errors.New("market: unknown listing")
	ErrInvalidMethodAccess      = errors.New("market: invalid method access")
	ErrInvalidPaymentAmount     = errors.New("market: payment below asking price")
	ErrMustBeDelegated          = errors.New("market: marketplace must be the token delegate")
	ErrUnsupportedFungibleToken = errors.New("market: unsupported fungible token contract")
	ErrUnsupportedAssetContract = errors.New("market: unsupported NFT contract")
	ErrAlreadyListed            = errors.New("market: token already listed")
	ErrRoyaltyMismatch          = errors.New("market: charged royalty differs from quote")
	ErrArithmeticOverflow       = errors.New("market: arithmetic overflow")
)
