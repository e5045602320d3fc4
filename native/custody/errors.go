package custody

import "errors"

var (
	ErrUnknownToken               = errors.New("custody: unknown token")
	ErrInvalidMethodAccess        = errors.New("custody: invalid method access")
	ErrAlreadyClaimed             = errors.New("custody: token already claimed")
	ErrAlreadyDelegated           = errors.New("custody: token already delegated")
	ErrUndelegationNotAllowed     = errors.New("custody: undelegation not allowed")
	ErrMarketplaceNotWhitelisted  = errors.New("custody: marketplace not whitelisted")
	ErrPaymentTokenNotWhitelisted = errors.New("custody: payment token not whitelisted")
	ErrCallerMustBeApproved       = errors.New("custody: caller must be the approved operator")
	ErrSourceMustBeOwner          = errors.New("custody: source must be the current owner")
	ErrSelfTransferForbidden      = errors.New("custody: self transfer forbidden")
	ErrAlreadyPaid                = errors.New("custody: royalty already paid")
)
