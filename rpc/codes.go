package rpc

import (
	"errors"
	"net/http"

	"nftmarket/core"
	"nftmarket/core/types"
	nativecommon "nftmarket/native/common"
	"nftmarket/native/custody"
	"nftmarket/native/market"
	"nftmarket/native/royalty"
	"nftmarket/native/token"
)

// Code is the stable numeric identifier a failure is reported under. Codes
// are part of the API surface and never renumbered.
type Code uint16

const (
	CodeOK Code = 0

	// Input validity.
	CodeInvalidToken    Code = 1
	CodeUnknownListing  Code = 2
	CodeUnknownContract Code = 3
	CodeUnknownAsset    Code = 4
	CodeBadRequest      Code = 5

	// Authorization.
	CodeUnauthorized   Code = 10
	CodeNotWhitelisted Code = 11
	CodeNotDelegated   Code = 12
	CodeNotApproved    Code = 13

	// Economic invariant violations.
	CodeInvalidPayment    Code = 20
	CodeRoyaltyMismatch   Code = 21
	CodeOverflow          Code = 22
	CodeInsufficientFunds Code = 23
	CodeSourceMustBeOwner Code = 24
	CodeSelfTransfer      Code = 25

	// Protocol state violations.
	CodeAlreadyClaimed     Code = 30
	CodeAlreadyDelegated   Code = 31
	CodeUndelegationDenied Code = 32
	CodeAlreadyPaid        Code = 33
	CodeAlreadyListed      Code = 34
	CodeTransferVetoed     Code = 35
	CodeModulePaused       Code = 36

	CodeInternal Code = 99
)

var codeTable = []struct {
	err  error
	code Code
}{
	{types.ErrInvalidTokenIdentifier, CodeInvalidToken},
	{market.ErrUnknownListing, CodeUnknownListing},
	{market.ErrUnsupportedFungibleToken, CodeUnknownContract},
	{market.ErrUnsupportedAssetContract, CodeUnknownContract},
	{core.ErrUnknownContract, CodeUnknownContract},
	{custody.ErrUnknownToken, CodeUnknownAsset},
	{token.ErrUnknownToken, CodeUnknownAsset},

	{market.ErrInvalidMethodAccess, CodeUnauthorized},
	{custody.ErrInvalidMethodAccess, CodeUnauthorized},
	{token.ErrTransferNotAllowed, CodeUnauthorized},
	{custody.ErrMarketplaceNotWhitelisted, CodeNotWhitelisted},
	{custody.ErrPaymentTokenNotWhitelisted, CodeNotWhitelisted},
	{market.ErrMustBeDelegated, CodeNotDelegated},
	{custody.ErrCallerMustBeApproved, CodeNotApproved},

	{market.ErrInvalidPaymentAmount, CodeInvalidPayment},
	{market.ErrRoyaltyMismatch, CodeRoyaltyMismatch},
	{market.ErrArithmeticOverflow, CodeOverflow},
	{royalty.ErrOverflow, CodeOverflow},
	{token.ErrBalanceOverflow, CodeOverflow},
	{token.ErrInsufficientBalance, CodeInsufficientFunds},
	{token.ErrInsufficientAllowance, CodeInsufficientFunds},
	{custody.ErrSourceMustBeOwner, CodeSourceMustBeOwner},
	{token.ErrNotOwner, CodeSourceMustBeOwner},
	{custody.ErrSelfTransferForbidden, CodeSelfTransfer},

	{custody.ErrAlreadyClaimed, CodeAlreadyClaimed},
	{custody.ErrAlreadyDelegated, CodeAlreadyDelegated},
	{custody.ErrUndelegationNotAllowed, CodeUndelegationDenied},
	{custody.ErrAlreadyPaid, CodeAlreadyPaid},
	{market.ErrAlreadyListed, CodeAlreadyListed},
	{token.ErrTransferVetoed, CodeTransferVetoed},
	{nativecommon.ErrModulePaused, CodeModulePaused},
}

// CodeFor maps an engine error to its stable numeric code.
func CodeFor(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// httpStatus picks the HTTP status class for a code.
func httpStatus(code Code) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidToken, CodeBadRequest, CodeInvalidPayment, CodeSelfTransfer:
		return http.StatusBadRequest
	case CodeUnknownListing, CodeUnknownContract, CodeUnknownAsset:
		return http.StatusNotFound
	case CodeUnauthorized, CodeNotWhitelisted, CodeNotDelegated, CodeNotApproved, CodeSourceMustBeOwner, CodeTransferVetoed:
		return http.StatusForbidden
	case CodeAlreadyClaimed, CodeAlreadyDelegated, CodeUndelegationDenied, CodeAlreadyPaid, CodeAlreadyListed:
		return http.StatusConflict
	case CodeRoyaltyMismatch, CodeOverflow, CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case CodeModulePaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
