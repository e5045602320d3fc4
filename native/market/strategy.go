package market

import (
	"nftmarket/core/types"
	"nftmarket/native/token"
)

// custodyEnv bundles the resolved collaborators a strategy operates against.
type custodyEnv struct {
	registry  token.Registry
	custodial Custodial
	assetRef  types.Address
}

// custodyStrategy abstracts how a listing's asset is secured while the offer
// is open. The escrow strategy physically moves the asset into marketplace
// custody; the delegate strategy leaves it with the custodial wrapper and
// relies on a one-time transfer delegation verified at settlement time.
type custodyStrategy interface {
	VerifyAuthorization(ctx types.CallContext, env custodyEnv, id types.TokenID, seller types.Address) error
	TakeCustody(ctx types.CallContext, env custodyEnv, id types.TokenID, seller types.Address) error
	ReleaseCustody(ctx types.CallContext, env custodyEnv, id types.TokenID, seller types.Address) error
}

// escrowCustody pulls the asset into the marketplace on post and returns it
// on cancel. The seller must have approved the marketplace as operator.
type escrowCustody struct {
	self types.Address
}

func (s escrowCustody) VerifyAuthorization(ctx types.CallContext, env custodyEnv, id types.TokenID, seller types.Address) error {
	owner, err := env.registry.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != seller {
		return ErrInvalidMethodAccess
	}
	return nil
}

func (s escrowCustody) TakeCustody(ctx types.CallContext, env custodyEnv, id types.TokenID, seller types.Address) error {
	return env.registry.Transfer(ctx.Nest(env.assetRef), id, seller, s.self)
}

func (s escrowCustody) ReleaseCustody(ctx types.CallContext, env custodyEnv, id types.TokenID, seller types.Address) error {
	return env.registry.Transfer(ctx.Nest(env.assetRef), id, s.self, seller)
}

// delegateCustody never moves the asset: posting requires the custodial
// layer to name this marketplace as the token's active delegate and the
// seller to be the tracked real owner.
type delegateCustody struct {
	self types.Address
}

func (s delegateCustody) VerifyAuthorization(ctx types.CallContext, env custodyEnv, id types.TokenID, seller types.Address) error {
	delegate, ok, err := env.custodial.Delegate(id)
	if err != nil {
		return err
	}
	if !ok || delegate != s.self {
		return ErrMustBeDelegated
	}
	realOwner, err := env.custodial.RealOwner(id)
	if err != nil {
		return err
	}
	if realOwner != seller {
		return ErrInvalidMethodAccess
	}
	return nil
}

func (s delegateCustody) TakeCustody(types.CallContext, custodyEnv, types.TokenID, types.Address) error {
	return nil
}

func (s delegateCustody) ReleaseCustody(types.CallContext, custodyEnv, types.TokenID, types.Address) error {
	return nil
}
